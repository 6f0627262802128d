package domain

import "errors"

var (
	// Sync tracker errors
	ErrNotFound            = errors.New("entity not found")
	ErrDuplicateID         = errors.New("entity with this id already exists")
	ErrInvalidTransition   = errors.New("transition not allowed from current state")
	ErrRetryBudgetExceeded = errors.New("retry budget exceeded")
	ErrInvariantViolation  = errors.New("invariant violation")
	ErrInvalidArgument     = errors.New("invalid argument")

	// Storage errors
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context for query")
	ErrLockNotAcquired    = errors.New("could not acquire job lock")
)
