package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrVersionConflict    = errors.New("version conflict")
	ErrAgentNotIdle       = errors.New("agent is not idle")
	ErrAgentOffline       = errors.New("agent is offline")
	ErrRegionMismatch     = errors.New("job region does not match agent region")
	ErrNotOwner           = errors.New("agent does not own this job")
	ErrJobTerminal        = errors.New("job is in a terminal state")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrRateLimited        = errors.New("rate limited")
)

// IsConflict reports whether err is one of the expected claim-race outcomes.
// Callers should re-poll and pick another job rather than treat these as
// failures; they are never surfaced to the operator as errors.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrAgentNotIdle) ||
		errors.Is(err, ErrAgentOffline) ||
		errors.Is(err, ErrRegionMismatch) ||
		errors.Is(err, ErrJobTerminal)
}
