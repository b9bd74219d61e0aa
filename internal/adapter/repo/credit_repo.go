package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// CreditRepositoryPG implements domain.CreditRepository. The balance
// counter and the transaction log are always mutated by the same
// statement, so balance == sum(transactions) holds at every commit point.
type CreditRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a new credit repository backed by PostgreSQL.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepositoryPG {
	return &CreditRepositoryPG{pool: pool}
}

// ReserveDebit performs the conditional decrement and the debit insert in
// one statement. The WHERE balance >= amount guard is what serializes
// concurrent reservations on the same account: of two simultaneous calls
// against a balance that covers only one, exactly one updates a row.
func (r *CreditRepositoryPG) ReserveDebit(ctx context.Context, txID, userID string, amount int, description, jobID string) error {
	query := `
WITH spend AS (
    UPDATE credit_accounts
    SET balance = balance - $3,
        updated_at = NOW()
    WHERE user_id = $2 AND balance >= $3
    RETURNING balance
), entry AS (
    INSERT INTO credit_transactions (id, user_id, amount, kind, description, job_id)
    SELECT $1, $2, -$3, 'debit', $4, NULLIF($5, '')::uuid
    FROM spend
)
SELECT balance FROM spend;
`
	var remaining int
	err := r.pool.QueryRow(ctx, query, txID, userID, amount, description, jobID).Scan(&remaining)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("reserve debit: %w", err)
	}

	available, balErr := r.Balance(ctx, userID)
	if balErr != nil {
		return fmt.Errorf("reserve debit: read balance: %w", balErr)
	}
	return &domain.InsufficientCreditsError{Required: amount, Available: available}
}

// AppendCredit appends a purchase or refund entry and adds the amount to
// the balance, creating the account row on first use.
func (r *CreditRepositoryPG) AppendCredit(ctx context.Context, txID, userID string, amount int, kind domain.CreditTxKind, description, jobID string) error {
	query := `
WITH entry AS (
    INSERT INTO credit_transactions (id, user_id, amount, kind, description, job_id)
    VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid)
)
INSERT INTO credit_accounts (user_id, balance)
VALUES ($2, $3)
ON CONFLICT (user_id) DO UPDATE
SET balance = credit_accounts.balance + EXCLUDED.balance,
    updated_at = NOW();
`
	if _, err := r.pool.Exec(ctx, query, txID, userID, amount, kind, description, jobID); err != nil {
		return fmt.Errorf("append %s: %w", kind, err)
	}
	return nil
}

// RefundJobOnce appends a refund for the job unless one exists already.
// The partial unique index on (job_id) WHERE kind = 'refund' backs the
// ON CONFLICT clause, so concurrent callers cannot both apply.
func (r *CreditRepositoryPG) RefundJobOnce(ctx context.Context, txID, userID string, amount int, reason, jobID string) (bool, error) {
	query := `
WITH entry AS (
    INSERT INTO credit_transactions (id, user_id, amount, kind, description, job_id)
    VALUES ($1, $2, $3, 'refund', $4, $5)
    ON CONFLICT (job_id) WHERE kind = 'refund' DO NOTHING
    RETURNING amount
)
INSERT INTO credit_accounts (user_id, balance)
SELECT $2, amount FROM entry
ON CONFLICT (user_id) DO UPDATE
SET balance = credit_accounts.balance + EXCLUDED.balance,
    updated_at = NOW()
RETURNING balance;
`
	var balance int
	err := r.pool.QueryRow(ctx, query, txID, userID, amount, reason, jobID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("refund job: %w", err)
	}
	return true, nil
}

// Balance returns the denormalized counter; absent accounts read as zero.
func (r *CreditRepositoryPG) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `SELECT balance FROM credit_accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

// ListTransactions returns the most recent ledger entries for a user.
func (r *CreditRepositoryPG) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	query := `
SELECT id, user_id, amount, kind, description, COALESCE(job_id::text, ''), created_at
FROM credit_transactions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CreditTransaction
	for rows.Next() {
		var tx domain.CreditTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Kind, &tx.Description, &tx.JobID, &tx.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, tx)
	}
	return entries, rows.Err()
}

var _ domain.CreditRepository = (*CreditRepositoryPG)(nil)
