package job

import (
	"context"
	"errors"
	"net/http"
)

// JobState defines the lifecycle state of a job
type JobState string

const (
	JobStateUnknown    JobState = "unknown"
	JobStateInProgress JobState = "in_progress"
	JobStateCompleted  JobState = "completed"
)

// Job is a tracked background operation identified by a caller-chosen id.
type Job interface {
	ID() string

	// Progress returns the current completion estimate between 0 and 100.
	Progress() int

	// Run performs the operation and returns the result to persist.
	Run(ctx context.Context) (interface{}, error)
}

// Status is a point-in-time view of a job.
type Status struct {
	ID       string
	State    JobState
	Progress int
}

var (
	// ErrRegistryClosed is returned by Begin after the registry was closed.
	ErrRegistryClosed = errors.New("job registry closed")

	// ErrNotInProgress is returned when completing a job that is not running.
	ErrNotInProgress = errors.New("job not in progress")
)

// NotFoundError is returned for ids that were never started.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "Job not found"
}

func (e *NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

// InvalidIDError is returned for ids the result store cannot key.
type InvalidIDError struct {
	ID string
}

func (e *InvalidIDError) Error() string {
	return "Job id must be 1 to 128 letters, digits, '-' or '_'"
}

func (e *InvalidIDError) StatusCode() int {
	return http.StatusBadRequest
}

// Outcome is the persisted result of a job that failed without producing
// its own result.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
