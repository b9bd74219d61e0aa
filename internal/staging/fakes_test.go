package staging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"server/internal/domain"
	"server/internal/providers/generation"
)

type fakeCreditRepo struct {
	mu       sync.Mutex
	balances map[string]int
	txs      []domain.CreditTransaction
}

func newFakeCreditRepo() *fakeCreditRepo {
	return &fakeCreditRepo{balances: map[string]int{}}
}

func (f *fakeCreditRepo) ReserveDebit(_ context.Context, txID, userID string, amount int, description, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[userID] < amount {
		return &domain.InsufficientCreditsError{Required: amount, Available: f.balances[userID]}
	}
	f.balances[userID] -= amount
	f.txs = append(f.txs, domain.CreditTransaction{ID: txID, UserID: userID, Amount: -amount, Kind: domain.CreditTxDebit, Description: description, JobID: jobID})
	return nil
}

func (f *fakeCreditRepo) AppendCredit(_ context.Context, txID, userID string, amount int, kind domain.CreditTxKind, description, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] += amount
	f.txs = append(f.txs, domain.CreditTransaction{ID: txID, UserID: userID, Amount: amount, Kind: kind, Description: description, JobID: jobID})
	return nil
}

func (f *fakeCreditRepo) RefundJobOnce(_ context.Context, txID, userID string, amount int, reason, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.Kind == domain.CreditTxRefund && tx.JobID == jobID {
			return false, nil
		}
	}
	f.balances[userID] += amount
	f.txs = append(f.txs, domain.CreditTransaction{ID: txID, UserID: userID, Amount: amount, Kind: domain.CreditTxRefund, Description: reason, JobID: jobID})
	return true, nil
}

func (f *fakeCreditRepo) Balance(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID], nil
}

func (f *fakeCreditRepo) ListTransactions(_ context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CreditTransaction
	for i := len(f.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if f.txs[i].UserID == userID {
			out = append(out, f.txs[i])
		}
	}
	return out, nil
}

type fakeJobRepo struct {
	mu            sync.Mutex
	jobs          map[string]*domain.Job
	createErr     error
	markFailedErr error
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]*domain.Job{}}
}

func (f *fakeJobRepo) Create(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	// The real columns are text[] NOT NULL and a nil slice arrives there
	// as SQL NULL, so the fake enforces the same constraint.
	if job.ResultURLs == nil || job.ProviderJobIDs == nil {
		return fmt.Errorf("job %s: result_urls and provider_job_ids must not be null", job.ID)
	}
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeJobRepo) GetByIDForUser(_ context.Context, jobID, userID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobRepo) MarkCompleted(_ context.Context, jobID string, resultURLs, providerJobIDs []string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusCompleted
	job.ResultURLs = resultURLs
	job.ProviderJobIDs = providerJobIDs
	job.CompletedAt = &at
	return nil
}

func (f *fakeJobRepo) MarkFailed(_ context.Context, jobID, errMsg string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markFailedErr != nil {
		return f.markFailedErr
	}
	job, ok := f.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errMsg
	job.CompletedAt = &at
	return nil
}

func (f *fakeJobRepo) SweepStale(_ context.Context, cutoff time.Time, errMsg string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var swept int64
	for _, job := range f.jobs {
		if !job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			job.Status = domain.JobStatusFailed
			job.ErrorMessage = errMsg
			job.CompletedAt = &at
			swept++
		}
	}
	return swept, nil
}

func (f *fakeJobRepo) ListFailedUnrefunded(_ context.Context, limit int) ([]domain.Job, error) {
	return nil, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*domain.Session{}}
}

func (f *fakeSessionRepo) Create(_ context.Context, session *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	clone := *session
	f.sessions[session.ID] = &clone
	return nil
}

func (f *fakeSessionRepo) GetByIDForUser(_ context.Context, sessionID, userID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, domain.ErrNotFound
	}
	clone := *session
	return &clone, nil
}

func (f *fakeSessionRepo) ListByUser(_ context.Context, userID string) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, session := range f.sessions {
		if session.UserID == userID {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) SetSelectedEmptyRoom(_ context.Context, sessionID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	session.SelectedEmptyRoomURL = url
	session.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeSessionRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, session := range f.sessions {
		if session.CreatedAt.Before(cutoff) {
			delete(f.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeGenerationRepo struct {
	mu   sync.Mutex
	gens []domain.Generation
}

func newFakeGenerationRepo() *fakeGenerationRepo {
	return &fakeGenerationRepo{}
}

func (f *fakeGenerationRepo) AppendAttempt(_ context.Context, gen *domain.Generation) (*domain.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen.OutputImageURLs == nil {
		return nil, fmt.Errorf("generation %s: output_image_urls must not be null", gen.ID)
	}
	next := 1
	for _, g := range f.gens {
		if g.SessionID == gen.SessionID && g.Type == gen.Type && g.Number >= next {
			next = g.Number + 1
		}
	}
	gen.Number = next
	gen.CreatedAt = time.Now().UTC()
	f.gens = append(f.gens, *gen)
	clone := *gen
	return &clone, nil
}

func (f *fakeGenerationRepo) ListBySession(_ context.Context, sessionID string) ([]domain.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Generation
	// Newest attempt first, matching the repository ordering.
	for i := len(f.gens) - 1; i >= 0; i-- {
		if f.gens[i].SessionID == sessionID {
			out = append(out, f.gens[i])
		}
	}
	return out, nil
}

func (f *fakeGenerationRepo) DeleteFailedOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []domain.Generation
	var deleted int64
	for _, g := range f.gens {
		if g.Status == domain.GenerationStatusFailed && g.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, g)
	}
	f.gens = kept
	return deleted, nil
}

func (f *fakeGenerationRepo) DeleteOrphans(_ context.Context) (int64, error) {
	return 0, nil
}

// stubSubmitter scripts provider behavior. Request ids end in the call
// index, so failSuffix can fail one variant of a fan-out while its
// siblings succeed.
type stubSubmitter struct {
	mu         sync.Mutex
	calls      []generation.SubmitRequest
	failAll    bool
	failSuffix string
	delay      time.Duration
}

func (s *stubSubmitter) Submit(ctx context.Context, req generation.SubmitRequest) (*generation.SubmitResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	failAll, failSuffix, delay := s.failAll, s.failSuffix, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, ctx.Err())
		}
	}
	if failAll || (failSuffix != "" && strings.HasSuffix(req.RequestID, failSuffix)) {
		return nil, fmt.Errorf("%w: upstream rejected request", domain.ErrProviderFailure)
	}
	return &generation.SubmitResult{
		ResultURLs:    []string{"https://cdn.example.com/results/" + req.RequestID + ".png"},
		ProviderJobID: "prov-" + req.RequestID,
	}, nil
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
