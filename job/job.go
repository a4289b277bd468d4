// Package job dispatches script evaluations to workers or the local context
// and buffers their results until the guest polls them.
//
// Each result is delivered at most once: the poll that first sees it ready
// removes it. A job whose worker is stopped before replying is abandoned;
// the next poll reports StatusAbandoned once and later polls report
// StatusNotFound.
package job

import (
	"time"

	"github.com/wippyai/wasm-hostbridge/handle"
)

// Status is the outcome of a poll.
type Status uint8

const (
	StatusNotFound Status = iota
	StatusPending
	StatusReady
	StatusAbandoned
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "not_found"
	}
}

// Job is one evaluation request. It is owned by the Dispatcher; table
// observers may read it during the notification.
type Job struct {
	submitted time.Time
	value     string
	owner     handle.Handle
	status    Status
}

// Submitted returns when the job was created.
func (j *Job) Submitted() time.Time { return j.submitted }

// Value returns the result text once the job is ready.
func (j *Job) Value() string { return j.value }

// Owner returns the worker the job was sent to, Invalid for local jobs.
func (j *Job) Owner() handle.Handle { return j.owner }

// Status returns the job's state.
func (j *Job) Status() Status { return j.status }

// Local reports whether the job ran in the local context.
func (j *Job) Local() bool { return j.owner == handle.Invalid }
