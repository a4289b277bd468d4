package job

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/handle"
	"github.com/wippyai/wasm-hostbridge/protocol"
	"github.com/wippyai/wasm-hostbridge/script"
)

type fakeSender struct {
	active map[handle.Handle]bool
	sent   []protocol.Message
	err    error
}

func (s *fakeSender) IsActive(h handle.Handle) bool { return s.active[h] }

func (s *fakeSender) Send(_ handle.Handle, m protocol.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func newTestDispatcher() (*Dispatcher, *fakeSender) {
	s := &fakeSender{active: map[handle.Handle]bool{1: true, 2: true}}
	d := NewDispatcher(Options{Sender: s, Local: script.NewContext(script.Options{})})
	return d, s
}

func TestSubmit_Worker(t *testing.T) {
	d, s := newTestDispatcher()

	h, err := d.Submit(1, "21*2")
	require.NoError(t, err)
	assert.Equal(t, handle.Handle(1), h)
	require.Len(t, s.sent, 1)
	assert.Equal(t, protocol.Eval(1, "21*2"), s.sent[0])

	st, _ := d.Poll(h)
	assert.Equal(t, StatusPending, st)

	d.Receive(1, protocol.EvalResult(1, "42"))
	st, v := d.Poll(h)
	assert.Equal(t, StatusReady, st)
	assert.Equal(t, "42", v)

	st, _ = d.Poll(h)
	assert.Equal(t, StatusNotFound, st, "result is delivered at most once")
}

func TestSubmit_UnknownWorker(t *testing.T) {
	d, s := newTestDispatcher()
	h, err := d.Submit(7, "1")
	assert.Equal(t, handle.Invalid, h)
	assert.True(t, errors.HasKind(err, errors.KindNotFound))
	assert.Empty(t, s.sent)
	assert.Equal(t, 0, d.Len())
}

func TestSubmit_SendFails(t *testing.T) {
	d, s := newTestDispatcher()
	s.err = errors.Overloaded(errors.PhaseEval, "worker inbox", 1)
	h, err := d.Submit(1, "1")
	assert.Equal(t, handle.Invalid, h)
	assert.True(t, errors.HasKind(err, errors.KindOverloaded))
	assert.Equal(t, 0, d.Len())
}

func TestSubmit_Local(t *testing.T) {
	d, s := newTestDispatcher()

	tests := []struct {
		code string
		want string
	}{
		{"21*2", "42"},
		{"throw new Error('nope')", "Error: nope"},
		{"'x'.repeat(3)", "xxx"},
	}
	for _, tt := range tests {
		h, err := d.Submit(handle.Invalid, tt.code)
		require.NoError(t, err)
		require.NotEqual(t, handle.Invalid, h)
		st, v := d.Poll(h)
		assert.Equal(t, StatusReady, st, tt.code)
		assert.Equal(t, tt.want, v, tt.code)
	}
	assert.Empty(t, s.sent)
}

func TestSubmit_NoLocalContext(t *testing.T) {
	d := NewDispatcher(Options{})
	_, err := d.Submit(handle.Invalid, "1")
	assert.Error(t, err)
}

func TestReceive_IgnoresStale(t *testing.T) {
	d, _ := newTestDispatcher()
	h, err := d.Submit(1, "1")
	require.NoError(t, err)

	d.Receive(2, protocol.EvalResult(uint32(h), "wrong owner"))
	d.Receive(1, protocol.EvalResult(99, "unknown job"))
	d.Receive(1, protocol.TextResponse("hello"))
	d.Receive(1, protocol.Message{Kind: protocol.KindUnknown, JobID: uint32(h)})
	st, _ := d.Peek(h)
	assert.Equal(t, StatusPending, st)

	d.Receive(1, protocol.EvalResult(uint32(h), "first"))
	d.Receive(1, protocol.EvalResult(uint32(h), "duplicate"))
	st, v := d.Poll(h)
	assert.Equal(t, StatusReady, st)
	assert.Equal(t, "first", v)
}

func TestDeliver_Retain(t *testing.T) {
	d, _ := newTestDispatcher()
	h, _ := d.Submit(1, "1")
	d.Receive(1, protocol.EvalResult(uint32(h), "hello"))

	st := d.Deliver(h, func(string) bool { return false })
	assert.Equal(t, StatusReady, st)
	st, n := d.Peek(h)
	assert.Equal(t, StatusReady, st)
	assert.Equal(t, 5, n)

	st = d.Deliver(h, func(string) bool { return true })
	assert.Equal(t, StatusReady, st)
	st, _ = d.Peek(h)
	assert.Equal(t, StatusNotFound, st)
}

func TestAbandon(t *testing.T) {
	d, _ := newTestDispatcher()
	pending, _ := d.Submit(1, "1")
	done, _ := d.Submit(1, "2")
	other, _ := d.Submit(2, "3")
	d.Receive(1, protocol.EvalResult(uint32(done), "2"))

	assert.Equal(t, 1, d.Abandon(1))

	d.Receive(1, protocol.EvalResult(uint32(pending), "late"))
	st, _ := d.Poll(pending)
	assert.Equal(t, StatusAbandoned, st)
	st, _ = d.Poll(pending)
	assert.Equal(t, StatusNotFound, st, "abandonment is reported once")

	st, v := d.Poll(done)
	assert.Equal(t, StatusReady, st, "results that arrived before stop survive")
	assert.Equal(t, "2", v)

	st, _ = d.Poll(other)
	assert.Equal(t, StatusPending, st)
}

func TestAbandonOnDrop(t *testing.T) {
	d, _ := newTestDispatcher()
	workers := handle.NewTable[string]()
	workers.Subscribe(AbandonOnDrop[string](d))
	w := workers.Insert("worker")
	require.Equal(t, handle.Handle(1), w)

	h, err := d.Submit(w, "1")
	require.NoError(t, err)

	workers.Remove(w)
	st, _ := d.Poll(h)
	assert.Equal(t, StatusAbandoned, st)
}

func TestCancel(t *testing.T) {
	d, _ := newTestDispatcher()
	h, _ := d.Submit(1, "1")
	assert.True(t, d.Cancel(h))
	assert.False(t, d.Cancel(h))

	d.Receive(1, protocol.EvalResult(uint32(h), "late"))
	st, _ := d.Poll(h)
	assert.Equal(t, StatusNotFound, st)

	local, _ := d.Submit(handle.Invalid, "1")
	assert.False(t, d.Cancel(local), "only pending jobs can be cancelled")
}

func TestObserverSeesOutcome(t *testing.T) {
	d, _ := newTestDispatcher()
	outcomes := map[Status]int{}
	d.Subscribe(handle.ObserverFunc[*Job](func(e handle.Event[*Job]) {
		if e.Type == handle.EventDropped {
			outcomes[e.Value.Status()]++
		}
	}))

	a, _ := d.Submit(1, "1")
	b, _ := d.Submit(1, "1")
	c, _ := d.Submit(2, "1")
	d.Receive(1, protocol.EvalResult(uint32(a), "ok"))
	d.Poll(a)
	d.Cancel(b)
	d.Abandon(2)
	d.Poll(c)

	assert.Equal(t, map[Status]int{StatusReady: 1, StatusPending: 1, StatusAbandoned: 1}, outcomes)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "ready", StatusReady.String())
	assert.Equal(t, "abandoned", StatusAbandoned.String())
	assert.Equal(t, "not_found", StatusNotFound.String())
}

func TestStats(t *testing.T) {
	d, _ := newTestDispatcher()

	a, _ := d.Submit(1, "1")
	_, _ = d.Submit(2, "2")
	_, _ = d.Submit(handle.Invalid, "3")
	d.Receive(1, protocol.EvalResult(uint32(a), "1"))
	d.Abandon(2)

	assert.Equal(t, Stats{Ready: 2, Abandoned: 1}, d.Stats())
}

func TestJobAccessors(t *testing.T) {
	mock := clock.NewMock()
	s := &fakeSender{active: map[handle.Handle]bool{1: true}}
	d := NewDispatcher(Options{Sender: s, Local: script.NewContext(script.Options{}), Clock: mock})

	var jobs []*Job
	d.Subscribe(handle.ObserverFunc[*Job](func(e handle.Event[*Job]) {
		if e.Type == handle.EventCreated {
			jobs = append(jobs, e.Value)
		}
	}))

	w, _ := d.Submit(1, "1")
	_, _ = d.Submit(handle.Invalid, "'local'")
	require.Len(t, jobs, 2)

	assert.Equal(t, handle.Handle(1), jobs[0].Owner())
	assert.False(t, jobs[0].Local())
	assert.Equal(t, mock.Now(), jobs[0].Submitted())
	assert.Empty(t, jobs[0].Value())

	d.Receive(1, protocol.EvalResult(uint32(w), "done"))
	assert.Equal(t, StatusReady, jobs[0].Status())
	assert.Equal(t, "done", jobs[0].Value())

	assert.True(t, jobs[1].Local())
	assert.Equal(t, "local", jobs[1].Value())
}
