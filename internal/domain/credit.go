package domain

import "time"

// CreditTxKind enumerates ledger transaction categories.
type CreditTxKind string

const (
	CreditTxPurchase CreditTxKind = "purchase"
	CreditTxDebit    CreditTxKind = "debit"
	CreditTxRefund   CreditTxKind = "refund"
)

// CreditAccount holds a user's spendable balance. The balance is a
// denormalized counter kept equal to the running sum of the user's
// transactions by the ledger; nothing else writes it.
type CreditAccount struct {
	UserID    string
	Balance   int
	UpdatedAt time.Time
}

// CreditTransaction is one immutable, append-only ledger entry. Amount is
// signed: debits are negative, purchases and refunds positive. JobID links
// debits and refunds to the job that caused them so reconciliation can
// match a failed job against its compensating refund.
type CreditTransaction struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Amount      int          `json:"amount"`
	Kind        CreditTxKind `json:"kind"`
	Description string       `json:"description,omitempty"`
	JobID       string       `json:"job_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
