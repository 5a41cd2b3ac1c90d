// Package executor calls a remote trial executor over HTTP.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	domain "gosplit/domain/experiment"
	"gosplit/internal/errors"
	"gosplit/ports"
)

// DefaultTimeout bounds one trial request
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps the response body read from the executor
const maxResponseBytes = 1 << 20

// TrialRequest is the JSON body sent per trial
type TrialRequest struct {
	Variant domain.Variant     `json:"variant"`
	Task    domain.TaskContext `json:"task"`
}

// HTTPExecutor posts each trial to a URL. Requests are throttled by a token
// bucket so a batch never floods the executor.
type HTTPExecutor struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

var _ ports.TrialExecutor = (*HTTPExecutor)(nil)

// NewHTTPExecutor creates an executor. rps <= 0 disables throttling.
func NewHTTPExecutor(url string, rps float64, timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &HTTPExecutor{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// Execute runs one trial remotely
func (e *HTTPExecutor) Execute(ctx context.Context, variant domain.Variant, task domain.TaskContext) (domain.TrialOutcome, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return domain.TrialOutcome{}, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(TrialRequest{Variant: variant, Task: task})
	if err != nil {
		return domain.TrialOutcome{}, fmt.Errorf("encode trial request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return domain.TrialOutcome{}, fmt.Errorf("build trial request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.TrialOutcome{}, errors.ExternalServiceError("trial executor", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.TrialOutcome{}, errors.ExternalServiceError("trial executor", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.TrialOutcome{}, errors.ExternalServiceError("trial executor",
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(payload)))
	}

	var outcome domain.TrialOutcome
	if err := json.Unmarshal(payload, &outcome); err != nil {
		return domain.TrialOutcome{}, errors.ExternalServiceError("trial executor", fmt.Errorf("decode outcome: %w", err))
	}
	return outcome, nil
}
