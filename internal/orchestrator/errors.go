package orchestrator

import (
	"fmt"
)

type ErrUnknownJob struct {
	error
}

func NewErrUnknownJob(jobID string) *ErrUnknownJob {
	return &ErrUnknownJob{fmt.Errorf("job %s not found", jobID)}
}

type ErrInvalidCallback struct {
	error
}

func NewErrInvalidCallback(reason string) *ErrInvalidCallback {
	return &ErrInvalidCallback{fmt.Errorf("invalid generation callback: %s", reason)}
}
