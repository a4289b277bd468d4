package hostapi

import (
	"context"
	"math"

	"go.uber.org/zap"

	hostbridge "github.com/wippyai/wasm-hostbridge"
	"github.com/wippyai/wasm-hostbridge/codec"
	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/handle"
	"github.com/wippyai/wasm-hostbridge/job"
	"github.com/wippyai/wasm-hostbridge/protocol"
	"github.com/wippyai/wasm-hostbridge/worker"
)

// Poll status codes returned by worker_poll_status.
const (
	PollNotFound  int32 = 0
	PollPending   int32 = 1
	PollReady     int32 = 2
	PollAbandoned int32 = 3
)

// worker_poll failure codes. A short buffer is reported as the negated
// required length, which is always below PollMissing and above
// PollBadBuffer.
const (
	PollMissing   int32 = -1
	PollBadBuffer int32 = math.MinInt32
)

// WorkerSpawn starts a worker from the payload at (ptr, n) and returns its
// handle, or 0. The payload is inline script text when it starts with
// "function" or mentions self.onmessage, otherwise a script reference.
func (b *Bridge) WorkerSpawn(ctx context.Context, mem hostbridge.Memory, ptr, n uint32) uint32 {
	const op = "worker_spawn"
	b.call(ModuleWorkers, op)

	payload, ok := b.text(mem, ModuleWorkers, op, ptr, n)
	if !ok {
		return 0
	}
	src := worker.ParseSource(payload)
	h, err := b.pool.Spawn(ctx, src)
	if err != nil {
		b.fail(ModuleWorkers, op, err, zap.String("script", src.Name()))
		return 0
	}
	return uint32(h)
}

// WorkerIsActive returns 1 if h is a live worker.
func (b *Bridge) WorkerIsActive(h uint32) uint32 {
	b.call(ModuleWorkers, "worker_is_active")
	return bool32(b.pool.IsActive(handle.Handle(h)))
}

// WorkerStop terminates h. Unknown handles are ignored.
func (b *Bridge) WorkerStop(h uint32) {
	b.call(ModuleWorkers, "worker_stop")
	b.pool.Stop(handle.Handle(h))
}

// WorkerStopAll terminates every worker.
func (b *Bridge) WorkerStopAll() {
	b.call(ModuleWorkers, "worker_stop_all")
	b.pool.StopAll()
}

// WorkerListLen returns the number of live workers.
func (b *Bridge) WorkerListLen() uint32 {
	b.call(ModuleWorkers, "worker_list_len")
	return uint32(b.pool.Count())
}

// WorkerList writes up to capacity worker handles as u32s at ptr and
// returns how many were written. Extra workers are left out.
func (b *Bridge) WorkerList(mem hostbridge.Memory, ptr, capacity uint32) uint32 {
	const op = "worker_list"
	b.call(ModuleWorkers, op)

	hs := b.pool.List(int(capacity))
	values := make([]uint32, len(hs))
	for i, h := range hs {
		values[i] = uint32(h)
	}
	n, err := codec.EncodeU32s(mem, values, ptr, capacity)
	if err != nil {
		b.fail(ModuleWorkers, op, err, zap.Uint32("ptr", ptr), zap.Uint32("capacity", capacity))
		return 0
	}
	return n
}

// WorkerSendMessage sends the text at (ptr, n) to worker h as a message.
func (b *Bridge) WorkerSendMessage(mem hostbridge.Memory, h, ptr, n uint32) {
	const op = "worker_send_message"
	b.call(ModuleWorkers, op)

	text, ok := b.text(mem, ModuleWorkers, op, ptr, n)
	if !ok {
		return
	}
	if err := b.pool.Send(handle.Handle(h), protocol.Text(text)); err != nil {
		b.fail(ModuleWorkers, op, err, zap.Uint32("worker", h))
	}
}

// WorkerEval submits the code at (ptr, n) to worker h, or evaluates it
// now when h is 0, and returns the job handle, or 0.
func (b *Bridge) WorkerEval(mem hostbridge.Memory, h, ptr, n uint32) uint32 {
	const op = "worker_eval"
	b.call(ModuleWorkers, op)

	code, ok := b.text(mem, ModuleWorkers, op, ptr, n)
	if !ok {
		return 0
	}
	j, err := b.jobs.Submit(handle.Handle(h), code)
	if err != nil {
		b.fail(ModuleWorkers, op, err, zap.Uint32("worker", h))
		return 0
	}
	return uint32(j)
}

// WorkerPoll copies a ready result into (ptr, capacity) and consumes it.
//
//	n > 0          bytes written
//	0              pending, or a ready empty result
//	-1             unknown, already consumed, or abandoned job
//	-n             result needs at least n bytes (n >= 2); it stays available
//	math.MinInt32  (ptr, capacity) is outside guest memory; the result stays
//
// A one-byte result polled with capacity 0 reports -2, so a short buffer
// is never mistaken for an unknown job.
func (b *Bridge) WorkerPoll(mem hostbridge.Memory, jobID, ptr, capacity uint32) int32 {
	const op = "worker_poll"
	b.call(ModuleWorkers, op)

	var (
		written int32
		encErr  error
	)
	st := b.jobs.Deliver(handle.Handle(jobID), func(v string) bool {
		written, encErr = codec.Encode(mem, v, ptr, capacity)
		return encErr == nil && written >= 0
	})

	switch st {
	case job.StatusPending:
		return 0
	case job.StatusReady:
		if encErr != nil {
			b.fail(ModuleWorkers, op, encErr, zap.Uint32("job", jobID))
			return PollBadBuffer
		}
		if written < 0 {
			b.fail(ModuleWorkers, op,
				errors.CapacityExceeded(errors.PhasePoll, int(-written), int(capacity)),
				zap.Uint32("job", jobID))
			if written == PollMissing {
				written = -2
			}
		}
		return written
	case job.StatusAbandoned:
		b.fail(ModuleWorkers, op,
			errors.New(errors.PhasePoll, errors.KindNotFound).
				Value(jobID).
				Detail("job %d abandoned: its worker was stopped", jobID).
				Build(),
			zap.Uint32("job", jobID))
		return PollMissing
	case job.StatusNotFound:
	}
	b.fail(ModuleWorkers, op, errors.NotFound(errors.PhasePoll, "job", jobID), zap.Uint32("job", jobID))
	return PollMissing
}

// WorkerPollStatus reports a job's state without consuming it.
func (b *Bridge) WorkerPollStatus(jobID uint32) int32 {
	b.call(ModuleWorkers, "worker_poll_status")

	st, _ := b.jobs.Peek(handle.Handle(jobID))
	switch st {
	case job.StatusPending:
		return PollPending
	case job.StatusReady:
		return PollReady
	case job.StatusAbandoned:
		return PollAbandoned
	case job.StatusNotFound:
	}
	return PollNotFound
}

// WorkerPollLen returns the byte length of a ready result, 0 while
// pending, or -1 for an unknown or abandoned job.
func (b *Bridge) WorkerPollLen(jobID uint32) int32 {
	b.call(ModuleWorkers, "worker_poll_len")

	st, n := b.jobs.Peek(handle.Handle(jobID))
	switch st {
	case job.StatusPending:
		return 0
	case job.StatusReady:
		return int32(n)
	case job.StatusAbandoned, job.StatusNotFound:
	}
	return -1
}

// WorkerCancelEval forgets a pending job; its result, if one arrives, is
// dropped.
func (b *Bridge) WorkerCancelEval(jobID uint32) {
	b.call(ModuleWorkers, "worker_cancel_eval")
	if !b.jobs.Cancel(handle.Handle(jobID)) {
		b.log.Debug("cancel: job not pending", zap.Uint32("job", jobID))
	}
}
