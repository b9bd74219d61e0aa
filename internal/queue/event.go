// Package queue publishes job lifecycle events to the message broker so
// downstream consumers (notifications, analytics) can react without
// querying the primary database.
package queue

// JobFinishedEvent is published when a job reaches a terminal state.
type JobFinishedEvent struct {
	JobID       string   `json:"job_id"`
	UserID      string   `json:"user_id"`
	SessionID   string   `json:"session_id,omitempty"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	ResultURLs  []string `json:"result_urls,omitempty"`
	CreditsUsed int      `json:"credits_used"`
	FinishedAt  string   `json:"finished_at"`
}

// JobFinishedQueue is the durable queue the event is routed to.
const JobFinishedQueue = "generation.job.finished"
