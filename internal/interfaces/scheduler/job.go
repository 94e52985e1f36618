package scheduler

import "context"

// Job represents a unit of work that can be executed by the worker pool.
// This interface allows for extensibility - different types of jobs can be
// implemented (e.g., sync jobs, cleanup jobs, notification jobs).
type Job interface {
	// Execute runs the job with the given context.
	// Context should be respected for cancellation and timeouts.
	Execute(ctx context.Context) error

	// ConnectionID returns the connection this job operates on. It doubles
	// as the unit of job uniqueness and shows up in logs and traces.
	ConnectionID() string

	// Description returns a human-readable description of the job.
	// Used for logging purposes.
	Description() string
}
