package job

import (
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/handle"
	"github.com/wippyai/wasm-hostbridge/protocol"
)

// Sender delivers evaluation requests to workers.
type Sender interface {
	IsActive(h handle.Handle) bool
	Send(h handle.Handle, m protocol.Message) error
}

// Evaluator runs code synchronously and always yields text.
type Evaluator interface {
	EvalResult(code string) string
}

// Options configures a Dispatcher.
type Options struct {
	Logger *zap.Logger
	Sender Sender
	Local  Evaluator
	Clock  clock.Clock
}

// Dispatcher is the job table and result store.
type Dispatcher struct {
	jobs   *handle.Table[*Job]
	sender Sender
	local  Evaluator
	clock  clock.Clock
	log    *zap.Logger
	mu     sync.Mutex
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Dispatcher{
		jobs:   handle.NewTable[*Job](),
		sender: opts.Sender,
		local:  opts.Local,
		clock:  opts.Clock,
		log:    opts.Logger.Named("jobs"),
	}
}

// Subscribe observes job creation and removal. At removal, Job.Status tells
// how the job ended: ready (delivered), abandoned, or pending (cancelled).
func (d *Dispatcher) Subscribe(o handle.Observer[*Job]) {
	d.jobs.Subscribe(o)
}

// Submit creates a job. With owner Invalid the code runs now in the local
// context and the job is ready on return; a thrown exception becomes the
// result text "Error: <message>". Otherwise the code is sent to the owner
// and Submit returns without waiting.
func (d *Dispatcher) Submit(owner handle.Handle, code string) (handle.Handle, error) {
	if owner == handle.Invalid {
		if d.local == nil {
			return handle.Invalid, errors.InvalidInput(errors.PhaseEval, "no local context")
		}
		result := d.local.EvalResult(code)
		h := d.jobs.Insert(&Job{submitted: d.clock.Now(), status: StatusReady, value: result})
		if h == handle.Invalid {
			return h, errors.Closed(errors.PhaseEval, "job table")
		}
		return h, nil
	}

	if d.sender == nil || !d.sender.IsActive(owner) {
		return handle.Invalid, errors.NotFound(errors.PhaseEval, "worker", uint32(owner))
	}
	h := d.jobs.Insert(&Job{submitted: d.clock.Now(), owner: owner, status: StatusPending})
	if h == handle.Invalid {
		return h, errors.Closed(errors.PhaseEval, "job table")
	}
	if err := d.sender.Send(owner, protocol.Eval(uint32(h), code)); err != nil {
		d.mu.Lock()
		d.jobs.Remove(h)
		d.mu.Unlock()
		return handle.Invalid, err
	}
	return h, nil
}

// Poll consumes the job's result if it is ready.
func (d *Dispatcher) Poll(h handle.Handle) (Status, string) {
	var out string
	st := d.Deliver(h, func(v string) bool {
		out = v
		return true
	})
	return st, out
}

// Deliver hands a ready result to accept. The result is removed only if
// accept returns true, so a caller whose buffer is too small can retry.
// Abandoned jobs are removed when reported.
func (d *Dispatcher) Deliver(h handle.Handle, accept func(value string) bool) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	j, ok := d.jobs.Get(h)
	if !ok {
		return StatusNotFound
	}
	switch j.status {
	case StatusPending:
		return StatusPending
	case StatusReady:
		if accept(j.value) {
			d.jobs.Remove(h)
		}
		return StatusReady
	case StatusAbandoned:
		d.jobs.Remove(h)
		return StatusAbandoned
	case StatusNotFound:
	}
	return StatusNotFound
}

// Peek reports the job's status and, when ready, the result's byte length,
// without consuming it.
func (d *Dispatcher) Peek(h handle.Handle) (Status, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	j, ok := d.jobs.Get(h)
	if !ok {
		return StatusNotFound, 0
	}
	return j.status, len(j.value)
}

// Cancel forgets a pending job; a later reply for it is ignored. It reports
// whether a pending job was removed.
func (d *Dispatcher) Cancel(h handle.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	j, ok := d.jobs.Get(h)
	if !ok || j.status != StatusPending {
		return false
	}
	d.jobs.Remove(h)
	return true
}

// Receive applies a message from a worker. Results for jobs the sender does
// not own, or that are unknown or no longer pending, are ignored.
func (d *Dispatcher) Receive(from handle.Handle, m protocol.Message) {
	switch m.Kind {
	case protocol.KindEvalResult:
		d.complete(from, handle.Handle(m.JobID), m.Result)
	case protocol.KindMessageResponse:
		d.log.Info("worker response", zap.Uint32("worker", uint32(from)), zap.String("text", m.Text))
	case protocol.KindEval, protocol.KindMessage, protocol.KindUnknown:
		d.log.Debug("ignoring message", zap.Uint32("worker", uint32(from)), zap.Stringer("kind", m.Kind))
	}
}

func (d *Dispatcher) complete(from, h handle.Handle, result string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	j, ok := d.jobs.Get(h)
	if !ok || j.owner != from || j.status != StatusPending {
		d.log.Debug("ignoring stale result",
			zap.Uint32("worker", uint32(from)),
			zap.Uint32("job", uint32(h)))
		return
	}
	j.status = StatusReady
	j.value = result
}

// Abandon marks every pending job of owner as abandoned. Results that
// already arrived stay deliverable.
func (d *Dispatcher) Abandon(owner handle.Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	d.jobs.Each(func(_ handle.Handle, j *Job) bool {
		if j.owner == owner && j.status == StatusPending {
			j.status = StatusAbandoned
			n++
		}
		return true
	})
	if n > 0 {
		d.log.Debug("abandoned jobs", zap.Uint32("worker", uint32(owner)), zap.Int("count", n))
	}
	return n
}

// AbandonOnDrop returns an observer for a worker table that abandons a
// worker's pending jobs when its record is dropped.
func AbandonOnDrop[T any](d *Dispatcher) handle.Observer[T] {
	return handle.ObserverFunc[T](func(e handle.Event[T]) {
		if e.Type == handle.EventDropped {
			d.Abandon(e.Handle)
		}
	})
}

// Stats counts unconsumed jobs by status.
type Stats struct {
	Pending   int
	Ready     int
	Abandoned int
}

// Stats returns a snapshot of the job table.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	var st Stats
	d.jobs.Each(func(_ handle.Handle, j *Job) bool {
		switch j.status {
		case StatusPending:
			st.Pending++
		case StatusReady:
			st.Ready++
		case StatusAbandoned:
			st.Abandoned++
		case StatusNotFound:
		}
		return true
	})
	return st
}

// Len returns the number of jobs not yet consumed.
func (d *Dispatcher) Len() int {
	return d.jobs.Len()
}

// Close drops every job.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs.Close()
}
