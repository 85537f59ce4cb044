package jobs

import (
	"database/sql"
	"errors"
	"time"

	"github.com/fortuna/clio/internal/scrape"
	"github.com/lib/pq"
)

// ErrInvalidRequest marks a scrape request rejected before it is stored.
var ErrInvalidRequest = errors.New("invalid scrape request")

// JobStatus represents the lifecycle state for a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job models the database representation of a scrape job.
type Job struct {
	JobID           string
	Letters         pq.StringArray
	CutoffYear      int
	PerLetterLimit  int
	DryRun          bool
	Status          JobStatus
	StatusMessage   sql.NullString
	ProgressCurrent int
	ProgressTotal   int
	Processed       int
	Skipped         int
	Failed          int
	LastError       sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
}

// Copy returns a shallow copy to prevent external mutation.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	cpy.Letters = append(pq.StringArray(nil), j.Letters...)
	return &cpy
}

// Spec converts the stored job back into a runnable spec.
func (j *Job) Spec() scrape.RunSpec {
	return scrape.RunSpec{
		Letters:        []string(j.Letters),
		CutoffYear:     j.CutoffYear,
		PerLetterLimit: j.PerLetterLimit,
		DryRun:         j.DryRun,
	}
}

// Request represents a scrape invocation request. Nil fields take the
// service defaults.
type Request struct {
	Letters        []string
	CutoffYear     *int
	PerLetterLimit *int
	DryRun         bool
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job   `json:"active_job,omitempty"`
	History   []*Job `json:"recent_jobs,omitempty"`
}

// Event types broadcast while a job runs.
const (
	EventJobQueued     = "job_queued"
	EventRunStart      = "run_start"
	EventLetterStart   = "letter_start"
	EventPlayerScraped = "player_scraped"
	EventPlayerSkipped = "player_skipped"
	EventPlayerFailed  = "player_failed"
	EventProgress      = "progress"
	EventRunComplete   = "run_complete"
	EventJobFailed     = "job_failed"
)

// Event is a progress notification for live subscribers.
type Event struct {
	Type      string          `json:"type"`
	JobID     string          `json:"job_id,omitempty"`
	Letter    string          `json:"letter,omitempty"`
	PlayerID  string          `json:"player_id,omitempty"`
	Message   string          `json:"message,omitempty"`
	Current   int             `json:"current"`
	Total     int             `json:"total"`
	Summary   *scrape.Summary `json:"summary,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventSink receives job events on the worker goroutine. Implementations
// should return quickly.
type EventSink interface {
	Publish(e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(e Event)

// Publish implements EventSink.
func (f EventSinkFunc) Publish(e Event) { f(e) }
