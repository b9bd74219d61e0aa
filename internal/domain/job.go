package domain

import "time"

// JobType enumerates orchestration job categories.
type JobType string

const (
	JobTypeEmptyRoom JobType = "empty_room"
	JobTypeStaging   JobType = "staging"
)

// JobStatus enumerates job lifecycle states. Completed and failed are
// terminal and written exactly once.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status permits no further transition.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed:
		return true
	case JobStatusPending, JobStatusProcessing:
		return false
	}
	return false
}

// Progress maps a status to the coarse value surfaced to clients. It is a
// UI hint, not a true percentage.
func (s JobStatus) Progress() int {
	switch s {
	case JobStatusProcessing:
		return 50
	case JobStatusCompleted:
		return 100
	case JobStatusPending, JobStatusFailed:
		return 0
	}
	return 0
}

// Job is the operational unit the orchestration core drives to a terminal
// state. A job may belong to a session but does not have to.
type Job struct {
	ID             string
	UserID         string
	SessionID      string
	Type           JobType
	Status         JobStatus
	InputImageURL  string
	ResultURLs     []string
	CreditsUsed    int
	ProviderJobIDs []string
	ErrorMessage   string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}
