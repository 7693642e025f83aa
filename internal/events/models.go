package events

// JobEvent is the payload published on job lifecycle transitions. Downstream
// consumers (durable storage, notifications) subscribe to these instead of
// reading the volatile status cache.
type JobEvent struct {
	JobID    string `json:"job_id"`
	State    string `json:"state"`
	Message  string `json:"message,omitempty"`
	ErrorMsg string `json:"error,omitempty"`
}
