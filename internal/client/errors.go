package client

import (
	"fmt"
)

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(jobID string) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("job %s not found", jobID)}
}

type ErrConnectionLost struct {
	error
}

func NewErrConnectionLost(attempts int, cause error) *ErrConnectionLost {
	return &ErrConnectionLost{fmt.Errorf("connection lost after %d reconnect attempts: %w", attempts, cause)}
}
