package evaluation

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks caller mistakes: bad enums, non-positive
	// beta, missing required fields. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTimeout marks a deadline exceeded at any stage. Callers may retry.
	ErrTimeout = errors.New("evaluation timed out")
)

// SimulationError is a simulator process that exited non-zero. It carries
// the captured stderr for diagnosis.
type SimulationError struct {
	Stderr string
}

func (e *SimulationError) Error() string {
	if e.Stderr == "" {
		return "simulation failed"
	}
	return fmt.Sprintf("simulation failed: %s", e.Stderr)
}

// Error kinds used in sweep error records and trace entries.
const (
	KindInvalidArgument  = "invalid_argument"
	KindSimulationFailed = "simulation_failed"
	KindTimeout          = "timeout"
	KindInternal         = "internal"
)

// Kind classifies err into the error taxonomy.
func Kind(err error) string {
	var simErr *SimulationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.As(err, &simErr):
		return KindSimulationFailed
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}
