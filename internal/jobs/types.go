package jobs

import (
	"context"
	"time"
)

// JobType represents the kind of console write a job tracks.
type JobType string

const (
	// JobTypeReplayRecord tracks the replay of one derived tax record.
	JobTypeReplayRecord JobType = "replay_record"
	// JobTypeProvisionPlayer tracks the creation of one player.
	JobTypeProvisionPlayer JobType = "provision_player"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the console accepted the record.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the record was abandoned.
	JobStatusFailed JobStatus = "failed"
	// JobStatusSkipped indicates the record was not attempted, e.g. already replayed.
	JobStatusSkipped JobStatus = "skipped"
)

// Job is the status of one record within a batch.
type Job struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	Type JobType `json:"type"`

	// RunID groups the jobs of one batch.
	RunID string `json:"run_id"`

	// Key is the natural key of the record: an orderIdTag or a phone number.
	Key string `json:"key"`

	Gateway string `json:"gateway,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Verified is true when the post-submit check confirmed the write.
	Verified bool `json:"verified"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success, failure or skip).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed or was skipped.
	Error string `json:"error,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusSkipped:
		return true
	}
	return false
}

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// ListJobs retrieves jobs in creation order with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)

	// UpdateJobStatus updates the status of a job. Terminal statuses stamp CompletedAt.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	RunID  string
	Type   JobType
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Summary counts jobs per status.
type Summary map[JobStatus]int

// Summarize counts jobs per status.
func Summarize(list []*Job) Summary {
	s := Summary{}
	for _, j := range list {
		s[j.Status]++
	}
	return s
}
