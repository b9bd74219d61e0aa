// Package credits owns the spendable balance and the append-only
// transaction log behind it. Every mutation flows through the Ledger;
// nothing else writes credit state.
package credits

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Ledger provides atomic reserve, refund and grant operations over a
// user's credit account.
type Ledger struct {
	repo   domain.CreditRepository
	logger zerolog.Logger
}

// NewLedger constructs a Ledger.
func NewLedger(repo domain.CreditRepository, logger zerolog.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger.With().Str("component", "credits").Logger()}
}

// Reserve debits amount from the user's balance, failing with
// *domain.InsufficientCreditsError when the balance does not cover it.
// The check and the debit happen in one atomic unit, so two concurrent
// reservations can never both succeed past the available amount.
func (l *Ledger) Reserve(ctx context.Context, userID string, amount int, description, jobID string) error {
	if amount <= 0 {
		return fmt.Errorf("reserve: amount must be positive, got %d", amount)
	}
	if err := l.repo.ReserveDebit(ctx, uuid.NewString(), userID, amount, description, jobID); err != nil {
		return err
	}
	l.logger.Debug().Str("user_id", userID).Int("amount", amount).Str("job_id", jobID).Msg("credits reserved")
	return nil
}

// Refund returns amount to the user's balance. It is a compensating
// action and performs no sufficiency check. When jobID is set, the refund
// is applied at most once per job no matter how often it is retried.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int, reason, jobID string) error {
	if amount <= 0 {
		return fmt.Errorf("refund: amount must be positive, got %d", amount)
	}
	if jobID == "" {
		return l.repo.AppendCredit(ctx, uuid.NewString(), userID, amount, domain.CreditTxRefund, reason, "")
	}
	applied, err := l.repo.RefundJobOnce(ctx, uuid.NewString(), userID, amount, reason, jobID)
	if err != nil {
		return err
	}
	if !applied {
		l.logger.Debug().Str("job_id", jobID).Msg("refund already applied, skipping")
		return nil
	}
	l.logger.Info().Str("user_id", userID).Int("amount", amount).Str("job_id", jobID).Str("reason", reason).Msg("credits refunded")
	return nil
}

// Grant appends a purchase transaction, topping up the balance.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int, description string) error {
	if amount <= 0 {
		return fmt.Errorf("grant: amount must be positive, got %d", amount)
	}
	if err := l.repo.AppendCredit(ctx, uuid.NewString(), userID, amount, domain.CreditTxPurchase, description, ""); err != nil {
		return err
	}
	l.logger.Info().Str("user_id", userID).Int("amount", amount).Msg("credits granted")
	return nil
}

// Balance returns the user's spendable balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	return l.repo.Balance(ctx, userID)
}

// Transactions returns the most recent ledger entries for the user.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.repo.ListTransactions(ctx, userID, limit)
}
