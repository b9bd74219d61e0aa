package credits

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

const reconcileBatchSize = 100

// RefundReconciler repairs the gap between "job marked failed" and
// "credits refunded". A crash between the two, or a stuck-job sweep that
// terminalizes a job without knowing whether credits were consumed,
// leaves failed jobs with credits_used > 0 and no matching refund; each
// pass refunds exactly those, exactly once.
type RefundReconciler struct {
	jobs   domain.JobRepository
	ledger *Ledger
	logger zerolog.Logger
}

// NewRefundReconciler constructs a RefundReconciler.
func NewRefundReconciler(jobs domain.JobRepository, ledger *Ledger, logger zerolog.Logger) *RefundReconciler {
	return &RefundReconciler{
		jobs:   jobs,
		ledger: ledger,
		logger: logger.With().Str("component", "refund_reconciler").Logger(),
	}
}

// Reconcile refunds every failed job that consumed credits and has no
// refund yet. It is idempotent: re-running after a partial pass only
// touches jobs still missing their refund.
func (r *RefundReconciler) Reconcile(ctx context.Context) (int64, error) {
	var refunded int64
	for {
		jobs, err := r.jobs.ListFailedUnrefunded(ctx, reconcileBatchSize)
		if err != nil {
			return refunded, fmt.Errorf("list failed unrefunded jobs: %w", err)
		}
		if len(jobs) == 0 {
			return refunded, nil
		}
		for _, job := range jobs {
			reason := fmt.Sprintf("refund for failed job %s", job.ID)
			if err := r.ledger.Refund(ctx, job.UserID, job.CreditsUsed, reason, job.ID); err != nil {
				return refunded, fmt.Errorf("refund job %s: %w", job.ID, err)
			}
			refunded++
		}
		if len(jobs) < reconcileBatchSize {
			return refunded, nil
		}
	}
}
