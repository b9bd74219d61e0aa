package domain

import (
	"context"
	"time"
)

// UserRepository defines access methods for users.
type UserRepository interface {
	// UpsertBySubject inserts or refreshes a user keyed by external
	// subject. The bool reports whether the row was newly created.
	UpsertBySubject(ctx context.Context, user *User) (*User, bool, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// CreditRepository owns credit accounts and the transaction log. Both are
// mutated exclusively through these methods.
type CreditRepository interface {
	// ReserveDebit checks balance >= amount and appends the debit in a
	// single atomic unit, never as a separate read-then-write. It returns
	// *InsufficientCreditsError when the balance is too low.
	ReserveDebit(ctx context.Context, txID, userID string, amount int, description, jobID string) error
	// AppendCredit appends a purchase or refund transaction and adds the
	// amount to the balance in the same atomic unit.
	AppendCredit(ctx context.Context, txID, userID string, amount int, kind CreditTxKind, description, jobID string) error
	// RefundJobOnce appends a refund tied to a job unless one already
	// exists for that job. It reports whether the refund was applied, so
	// the failure path and reconciliation can both call it without ever
	// refunding a job twice.
	RefundJobOnce(ctx context.Context, txID, userID string, amount int, reason, jobID string) (bool, error)
	Balance(ctx context.Context, userID string) (int, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error)
}

// JobRepository defines persistence for jobs. Terminal transitions are
// guarded so a completed or failed job is never rewritten.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByIDForUser(ctx context.Context, jobID, userID string) (*Job, error)
	MarkCompleted(ctx context.Context, jobID string, resultURLs, providerJobIDs []string, at time.Time) error
	MarkFailed(ctx context.Context, jobID, errMsg string, at time.Time) error
	// SweepStale terminalizes jobs still non-terminal at cutoff and
	// returns the number of rows affected.
	SweepStale(ctx context.Context, cutoff time.Time, errMsg string, at time.Time) (int64, error)
	// ListFailedUnrefunded returns failed jobs with credits_used > 0 that
	// have no refund transaction referencing their id.
	ListFailedUnrefunded(ctx context.Context, limit int) ([]Job, error)
}

// SessionRepository defines persistence for staging sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByIDForUser(ctx context.Context, sessionID, userID string) (*Session, error)
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	SetSelectedEmptyRoom(ctx context.Context, sessionID, url string) error
	// DeleteOlderThan removes sessions created before cutoff, cascading to
	// their generations.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// GenerationRepository defines persistence for generation attempts.
type GenerationRepository interface {
	// AppendAttempt assigns the next per (session, type) number and
	// inserts the record. Allocation is serialized against concurrent
	// attempts on the same session.
	AppendAttempt(ctx context.Context, gen *Generation) (*Generation, error)
	ListBySession(ctx context.Context, sessionID string) ([]Generation, error)
	DeleteFailedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteOrphans removes generations whose session no longer exists.
	DeleteOrphans(ctx context.Context) (int64, error)
}
