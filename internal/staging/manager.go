// Package staging contains the orchestration core: the job state machine,
// the session/generation history services and the prompt derivation that
// feeds the external provider.
package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/providers/generation"
	"server/internal/queue"
)

// failedJobMessage is what clients see for provider failures; the full
// cause is logged server-side keyed by job id.
const failedJobMessage = "generation failed"

// GenerationRequest is the normalized input to StartGeneration.
type GenerationRequest struct {
	Type      domain.JobType
	ImageURL  string
	Style     string
	RoomType  string
	SessionID string
}

// Options tunes orchestration behavior.
type Options struct {
	EmptyRoomCost   int
	StagingCost     int
	Variants        int
	ProviderTimeout time.Duration
}

// Manager drives a generation job from credit reservation through the
// provider fan-out to a terminal state, recording history and refunding
// on failure.
type Manager struct {
	jobs        domain.JobRepository
	sessions    domain.SessionRepository
	generations domain.GenerationRepository
	ledger      *credits.Ledger
	provider    generation.Submitter
	events      *queue.Publisher
	opts        Options
	logger      zerolog.Logger
}

// NewManager constructs a Manager. events may be nil.
func NewManager(
	jobs domain.JobRepository,
	sessions domain.SessionRepository,
	generations domain.GenerationRepository,
	ledger *credits.Ledger,
	provider generation.Submitter,
	events *queue.Publisher,
	opts Options,
	logger zerolog.Logger,
) *Manager {
	if opts.Variants < 1 {
		opts.Variants = 2
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 90 * time.Second
	}
	return &Manager{
		jobs:        jobs,
		sessions:    sessions,
		generations: generations,
		ledger:      ledger,
		provider:    provider,
		events:      events,
		opts:        opts,
		logger:      logger.With().Str("component", "job_manager").Logger(),
	}
}

// StartGeneration runs one orchestration call to a terminal job. The
// ordering is deliberate: validation fails before any side effect, the
// reservation fails before any side effect, and the provider is only
// called once the debit and the processing job row are durable. On
// failure the job is returned with status failed rather than an error;
// only pre-side-effect rejections surface as errors.
func (m *Manager) StartGeneration(ctx context.Context, userID string, req GenerationRequest) (*domain.Job, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	if req.SessionID != "" {
		if _, err := m.sessions.GetByIDForUser(ctx, req.SessionID, userID); err != nil {
			return nil, err
		}
	}

	cost := m.cost(req.Type)
	jobID := uuid.NewString()
	if err := m.ledger.Reserve(ctx, userID, cost, fmt.Sprintf("%s generation", req.Type), jobID); err != nil {
		return nil, err
	}

	// Credits are consumed before the provider call: charge first, refund
	// on failure, so a crash mid-call never leaves credits silently free.
	job := &domain.Job{
		ID:             jobID,
		UserID:         userID,
		SessionID:      req.SessionID,
		Type:           req.Type,
		Status:         domain.JobStatusProcessing,
		InputImageURL:  req.ImageURL,
		ResultURLs:     []string{},
		ProviderJobIDs: []string{},
		CreditsUsed:    cost,
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		m.logger.Error().Err(err).Str("job_id", jobID).Msg("create job row failed, refunding reservation")
		if refundErr := m.ledger.Refund(ctx, userID, cost, "job creation failed", jobID); refundErr != nil {
			m.logger.Error().Err(refundErr).Str("job_id", jobID).Msg("refund after create failure failed")
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("user_id", userID).
		Str("type", string(req.Type)).
		Int("credits", cost).
		Msg("job started")

	results, err := m.fanOut(ctx, jobID, req)
	if err != nil {
		return m.failJob(ctx, job, req, err), nil
	}
	return m.completeJob(ctx, job, req, results), nil
}

// JobStatus returns the user-scoped job projection.
func (m *Manager) JobStatus(ctx context.Context, jobID, userID string) (*JobStatusView, error) {
	job, err := m.jobs.GetByIDForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	view := newJobStatusView(job)
	return &view, nil
}

// JobStatusView projects a job for the status endpoint. Progress is a
// coarse UI hint, not a true percentage.
type JobStatusView struct {
	ID           string           `json:"id"`
	Type         domain.JobType   `json:"type"`
	Status       domain.JobStatus `json:"status"`
	Progress     int              `json:"progress"`
	ResultURLs   []string         `json:"result_urls"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreditsUsed  int              `json:"credits_used"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

func newJobStatusView(job *domain.Job) JobStatusView {
	return JobStatusView{
		ID:           job.ID,
		Type:         job.Type,
		Status:       job.Status,
		Progress:     job.Status.Progress(),
		ResultURLs:   job.ResultURLs,
		ErrorMessage: job.ErrorMessage,
		CreditsUsed:  job.CreditsUsed,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

func validateRequest(req *GenerationRequest) error {
	if req.Type == "" {
		req.Type = domain.JobTypeStaging
	}
	switch req.Type {
	case domain.JobTypeEmptyRoom, domain.JobTypeStaging:
	default:
		return &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unsupported value %q", req.Type)}
	}

	url := strings.TrimSpace(req.ImageURL)
	if url == "" {
		return &domain.ValidationError{Field: "image_url", Reason: "required"}
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return &domain.ValidationError{Field: "image_url", Reason: "must be an http(s) url"}
	}
	req.ImageURL = url

	if req.Type == domain.JobTypeStaging {
		if req.Style == "" {
			return &domain.ValidationError{Field: "style", Reason: "required for staging"}
		}
		if !ValidStyle(req.Style) {
			return &domain.ValidationError{Field: "style", Reason: fmt.Sprintf("unsupported value %q", req.Style)}
		}
	}
	if req.RoomType != "" && !ValidRoomType(req.RoomType) {
		return &domain.ValidationError{Field: "room_type", Reason: fmt.Sprintf("unsupported value %q", req.RoomType)}
	}
	return nil
}

func (m *Manager) cost(jobType domain.JobType) int {
	switch jobType {
	case domain.JobTypeEmptyRoom:
		return m.opts.EmptyRoomCost
	case domain.JobTypeStaging:
		return m.opts.StagingCost
	}
	return m.opts.StagingCost
}

func (m *Manager) prompts(req GenerationRequest) []string {
	switch req.Type {
	case domain.JobTypeEmptyRoom:
		return []string{emptyRoomPrompt(req.RoomType)}
	case domain.JobTypeStaging:
		return stagingVariantPrompts(req.Style, req.RoomType, m.opts.Variants)
	}
	return nil
}

// fanOut runs every provider call concurrently and joins on all of them.
// The commit is all-or-nothing: the first failing call cancels the
// siblings and fails the whole fan-out, and a call returning zero URLs
// counts as failed.
func (m *Manager) fanOut(ctx context.Context, jobID string, req GenerationRequest) ([]*generation.SubmitResult, error) {
	prompts := m.prompts(req)
	results := make([]*generation.SubmitResult, len(prompts))

	g, groupCtx := errgroup.WithContext(ctx)
	for i, prompt := range prompts {
		i, prompt := i, prompt
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(groupCtx, m.opts.ProviderTimeout)
			defer cancel()
			res, err := m.provider.Submit(callCtx, generation.SubmitRequest{
				Prompt:    prompt,
				ImageURL:  req.ImageURL,
				Style:     req.Style,
				RoomType:  req.RoomType,
				RequestID: fmt.Sprintf("%s-%d", jobID, i+1),
			})
			if err != nil {
				return fmt.Errorf("call %d: %w", i+1, err)
			}
			if res == nil || len(res.ResultURLs) == 0 {
				return fmt.Errorf("call %d: %w: empty result", i+1, domain.ErrProviderFailure)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (m *Manager) completeJob(ctx context.Context, job *domain.Job, req GenerationRequest, results []*generation.SubmitResult) *domain.Job {
	now := time.Now().UTC()
	resultURLs := make([]string, 0, len(results))
	providerIDs := make([]string, 0, len(results))
	for _, res := range results {
		// First URL of each call, in call order.
		resultURLs = append(resultURLs, res.ResultURLs[0])
		if res.ProviderJobID != "" {
			providerIDs = append(providerIDs, res.ProviderJobID)
		}
	}

	if err := m.jobs.MarkCompleted(ctx, job.ID, resultURLs, providerIDs, now); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("persist completed job failed")
	}
	job.Status = domain.JobStatusCompleted
	job.ResultURLs = resultURLs
	job.ProviderJobIDs = providerIDs
	job.CompletedAt = &now

	m.appendGeneration(ctx, job, req, domain.GenerationStatusCompleted, "", resultURLs, &now)
	m.publishFinished(ctx, job)

	m.logger.Info().
		Str("job_id", job.ID).
		Int("results", len(resultURLs)).
		Msg("job completed")
	return job
}

// failJob drives the compensating path: the failure is made durable
// before the refund, so a crash in between is repaired by the refund
// reconciler rather than lost. When the failure itself cannot be
// persisted, the refund is skipped too: the reconciler issues it once
// the job row reaches failed (directly or via the stuck sweep).
func (m *Manager) failJob(ctx context.Context, job *domain.Job, req GenerationRequest, cause error) *domain.Job {
	now := time.Now().UTC()
	m.logger.Error().Err(cause).Str("job_id", job.ID).Msg("job failed")

	markErr := m.jobs.MarkFailed(ctx, job.ID, failedJobMessage, now)
	if markErr != nil {
		m.logger.Error().Err(markErr).Str("job_id", job.ID).Msg("persist failed job failed, refund left to reconciliation")
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = failedJobMessage
	job.CompletedAt = &now

	// A failed attempt still consumes its generation number slot.
	m.appendGeneration(ctx, job, req, domain.GenerationStatusFailed, failedJobMessage, nil, &now)

	if markErr == nil {
		if err := m.ledger.Refund(ctx, job.UserID, job.CreditsUsed, failedJobMessage, job.ID); err != nil {
			m.logger.Error().Err(err).Str("job_id", job.ID).Msg("refund failed, reconciliation will repair")
		}
	}
	m.publishFinished(ctx, job)
	return job
}

func (m *Manager) appendGeneration(ctx context.Context, job *domain.Job, req GenerationRequest, status domain.GenerationStatus, errMsg string, outputURLs []string, completedAt *time.Time) {
	if job.SessionID == "" {
		return
	}
	if outputURLs == nil {
		outputURLs = []string{}
	}
	gen := &domain.Generation{
		ID:              uuid.NewString(),
		SessionID:       job.SessionID,
		Type:            generationTypeFor(job.Type),
		InputImageURL:   job.InputImageURL,
		OutputImageURLs: outputURLs,
		Style:           req.Style,
		RoomType:        req.RoomType,
		CreditsCost:     job.CreditsUsed,
		Status:          status,
		ErrorMessage:    errMsg,
		CompletedAt:     completedAt,
	}
	if _, err := m.generations.AppendAttempt(ctx, gen); err != nil {
		m.logger.Error().Err(err).
			Str("job_id", job.ID).
			Str("session_id", job.SessionID).
			Msg("append generation record failed")
	}
}

func (m *Manager) publishFinished(ctx context.Context, job *domain.Job) {
	if m.events == nil {
		return
	}
	finishedAt := ""
	if job.CompletedAt != nil {
		finishedAt = job.CompletedAt.Format(time.RFC3339)
	}
	err := m.events.PublishJobFinished(ctx, queue.JobFinishedEvent{
		JobID:       job.ID,
		UserID:      job.UserID,
		SessionID:   job.SessionID,
		Type:        string(job.Type),
		Status:      string(job.Status),
		ResultURLs:  job.ResultURLs,
		CreditsUsed: job.CreditsUsed,
		FinishedAt:  finishedAt,
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("publish job finished event failed")
	}
}

func generationTypeFor(jobType domain.JobType) domain.GenerationType {
	switch jobType {
	case domain.JobTypeEmptyRoom:
		return domain.GenerationTypeEmptyRoom
	case domain.JobTypeStaging:
		return domain.GenerationTypeStaging
	}
	return domain.GenerationTypeStaging
}

// IsInsufficientCredits reports whether err is a credit shortfall, for
// callers that only need the distinction, not the amounts.
func IsInsufficientCredits(err error) bool {
	var target *domain.InsufficientCreditsError
	return errors.As(err, &target)
}
