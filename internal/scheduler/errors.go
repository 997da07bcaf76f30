package scheduler

import "errors"

// Sentinel errors.
var (
	ErrInvalidJob     = errors.New("invalid job")
	ErrInvalidTrigger = errors.New("invalid trigger")
	ErrDuplicateJob   = errors.New("duplicate job id")
	ErrJobNotFound    = errors.New("job not found")
	ErrNoHandler      = errors.New("no handler for job kind")
	ErrJobPanic       = errors.New("job panicked")
)
