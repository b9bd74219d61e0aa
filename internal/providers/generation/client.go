// Package generation wraps the external image-generation provider. The
// orchestration core only depends on the Submitter contract; the HTTP
// details live here.
package generation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

// SubmitRequest describes one generation call. No partial-result semantics
// are assumed: either the provider returns at least one URL or the call is
// treated as a failure.
type SubmitRequest struct {
	Prompt    string
	ImageURL  string
	Style     string
	RoomType  string
	RequestID string
}

// SubmitResult is the provider's answer to a single call.
type SubmitResult struct {
	ResultURLs    []string
	ProviderJobID string
}

// Submitter is the contract the orchestration core consumes.
type Submitter interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// Options controls how the provider client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the staging provider over HTTP. Without an API key it
// produces deterministic synthetic results instead, which keeps the whole
// pipeline operational in local and CI environments.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient constructs a provider client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.virtualstaging.dev/v1"
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

type submitPayload struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"image_url"`
	Style    string `json:"style,omitempty"`
	RoomType string `json:"room_type,omitempty"`
}

type submitResponse struct {
	ID         string   `json:"id"`
	ResultURLs []string `json:"result_urls"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// Submit runs one generation call. All failure modes (network, quota,
// invalid input, empty result) surface wrapped in domain.ErrProviderFailure.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderFailure, err)
	}

	if c.apiKey == "" {
		return c.synthetic(req), nil
	}

	body, err := json.Marshal(submitPayload{
		Prompt:   req.Prompt,
		ImageURL: req.ImageURL,
		Style:    req.Style,
		RoomType: req.RoomType,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal submit payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%w: status %d: %s", domain.ErrProviderFailure, resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrProviderFailure, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %s", domain.ErrProviderFailure, err)
	}
	if len(out.ResultURLs) == 0 {
		return nil, fmt.Errorf("%w: no result urls", domain.ErrProviderFailure)
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("provider_job_id", out.ID).
		Int("results", len(out.ResultURLs)).
		Msg("generation: provider call succeeded")

	return &SubmitResult{ResultURLs: out.ResultURLs, ProviderJobID: out.ID}, nil
}

func (c *Client) synthetic(req SubmitRequest) *SubmitResult {
	seed := deterministicSeed(req.RequestID, req.Prompt, req.ImageURL)
	c.logger.Debug().
		Str("request_id", req.RequestID).
		Msg("generation: produced synthetic result")
	return &SubmitResult{
		ResultURLs:    []string{fmt.Sprintf("%s/synthetic/%s.png", c.baseURL, seed)},
		ProviderJobID: "synthetic-" + seed,
	}
}

func deterministicSeed(parts ...string) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(part))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ Submitter = (*Client)(nil)
