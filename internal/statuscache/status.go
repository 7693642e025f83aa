package statuscache

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of a background generation job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// FailureKind classifies why a job failed.
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
)

// ErrorDetail carries structured failure information for a failed job.
type ErrorDetail struct {
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
	Attempts int         `json:"attempts"`
}

// JobStatus is the unit of truth for one background job. The orchestrator is
// the only writer; stream sessions and the polling endpoint read copies.
type JobStatus struct {
	JobID           string          `json:"jobId"`
	State           State           `json:"state"`
	Phase           string          `json:"phase,omitempty"`
	ProgressPercent int             `json:"progressPercent"`
	Message         string          `json:"message,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorDetail     *ErrorDetail    `json:"errorDetail,omitempty"`
	StartedAt       time.Time       `json:"startedAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	EndedAt         *time.Time      `json:"endedAt,omitempty"`

	// Version increases on every mutation. Readers use it to detect stale
	// snapshots without wall-clock comparisons.
	Version uint64 `json:"version"`
}

// clone returns a deep copy so a reader can never observe a later mutation
// through shared pointers.
func (j JobStatus) clone() JobStatus {
	out := j
	if j.Result != nil {
		out.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.ErrorDetail != nil {
		detail := *j.ErrorDetail
		out.ErrorDetail = &detail
	}
	if j.EndedAt != nil {
		t := *j.EndedAt
		out.EndedAt = &t
	}
	return out
}
