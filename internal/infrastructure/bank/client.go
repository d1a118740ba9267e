package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/config"
)

// HTTPBankGateway implements application.BankGateway against the outbound
// transfer API described in spec.md §6, grounded structurally on the
// teacher's HTTPBankClient (generic sendRequest helper, baseURL + timeout
// http.Client) but reshaped around the transfer/query-status contract and
// the tri-state outcome classifier, whose attempt loop follows
// original_source's bank_client.py BankGateway.transfer/query_transfer_status
// almost line for line.
type HTTPBankGateway struct {
	baseURL           string
	statusURLTemplate string
	httpClient        *http.Client
	limiter           application.RateLimiter
	maxAttempts       int
	baseDelay         time.Duration
	maxDelay          time.Duration
	logger            *slog.Logger
}

func NewHTTPBankGateway(cfg config.BankConfig, limiter application.RateLimiter, logger *slog.Logger) *HTTPBankGateway {
	return &HTTPBankGateway{
		baseURL:           cfg.BaseURL,
		statusURLTemplate: cfg.StatusURLTemplate,
		httpClient:        &http.Client{Timeout: cfg.TimeoutSeconds},
		limiter:           limiter,
		maxAttempts:       cfg.RetryMaxAttempts,
		baseDelay:         cfg.RetryBaseDelay,
		maxDelay:          cfg.RetryMaxDelay,
		logger:            logger,
	}
}

func (g *HTTPBankGateway) CanQueryStatus() bool {
	return g.statusURLTemplate != ""
}

// Transfer posts a withdrawal to the bank, retrying network errors and 429s
// up to maxAttempts times with full-jitter backoff, grounded on
// original_source's transfer().
func (g *HTTPBankGateway) Transfer(ctx context.Context, req application.TransferRequest) (*application.TransferResult, error) {
	body := transferRequestBody{
		IdempotencyKey: req.IdempotencyKey,
		WalletOwnerRef: req.WalletID,
		Amount:         req.Amount,
	}
	return g.attemptLoop(ctx, req.IdempotencyKey, req.IdempotencyKey, func(ctx context.Context) (*application.TransferResult, error) {
		return g.doRequest(ctx, http.MethodPost, g.baseURL, &body, req.IdempotencyKey)
	})
}

// QueryStatus asks the bank for the current outcome of a previously
// submitted transfer, used by the reconciler for UNKNOWN transactions.
func (g *HTTPBankGateway) QueryStatus(ctx context.Context, idempotencyKey string) (*application.TransferResult, error) {
	if !g.CanQueryStatus() {
		return nil, fmt.Errorf("bank gateway: status endpoint not configured")
	}
	url := fmt.Sprintf(g.statusURLTemplate, idempotencyKey)
	return g.attemptLoop(ctx, idempotencyKey, idempotencyKey, func(ctx context.Context) (*application.TransferResult, error) {
		return g.doRequest(ctx, http.MethodGet, url, nil, idempotencyKey)
	})
}

// attemptLoop performs one bank round trip per attempt, retrying only on
// network errors and HTTP 429. Any classified outcome (SUCCESS,
// FINAL_FAILURE, or UNKNOWN) short-circuits the loop immediately, per
// original_source's transfer(): a 5xx or unparseable response is reported
// as UNKNOWN rather than retried, since the bank may have already applied
// the transfer and a second attempt would risk a duplicate live call.
func (g *HTTPBankGateway) attemptLoop(ctx context.Context, idempotencyKey, fallbackReference string, do func(ctx context.Context) (*application.TransferResult, error)) (*application.TransferResult, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if g.limiter != nil {
			if _, err := g.limiter.Acquire(ctx, 1); err != nil {
				g.logger.WarnContext(ctx, "event=bank_rate_limiter_unavailable", "error", err)
			}
		}

		g.logger.InfoContext(ctx, "event=bank_transfer_request", "idempotency_key", idempotencyKey, "attempt", attempt)

		result, retryAfter, err := g.classifyAttempt(ctx, do)
		if err != nil {
			var netErr *NetworkError
			if errors.As(err, &netErr) {
				if attempt < g.maxAttempts {
					g.sleepBeforeRetry(ctx, attempt, 0)
					g.logger.WarnContext(ctx, "event=bank_transfer_retry", "reason", "network_error", "attempt", attempt)
					continue
				}
				return &application.TransferResult{Outcome: application.OutcomeUnknown, FailureReason: "network_error"}, nil
			}
			return nil, err
		}

		if retryAfter != nil {
			if attempt < g.maxAttempts {
				g.sleepBeforeRetry(ctx, attempt, *retryAfter)
				g.logger.WarnContext(ctx, "event=bank_transfer_retry", "reason", "rate_limited", "attempt", attempt)
				continue
			}
			g.logger.WarnContext(ctx, "event=bank_transfer_failed", "reason", "rate_limited_exhausted")
			return &application.TransferResult{Outcome: application.OutcomeFinalFailure, FailureReason: "rate_limited"}, nil
		}

		switch result.Outcome {
		case application.OutcomeSuccess:
			g.logger.InfoContext(ctx, "event=bank_transfer_success", "idempotency_key", idempotencyKey, "reference", result.BankReference)
		case application.OutcomeUnknown:
			g.logger.WarnContext(ctx, "event=bank_transfer_unknown", "idempotency_key", idempotencyKey, "reason", result.FailureReason)
		default:
			g.logger.WarnContext(ctx, "event=bank_transfer_failed", "idempotency_key", idempotencyKey, "reason", result.FailureReason)
		}
		return result, nil
	}

	return nil, fmt.Errorf("bank gateway: attempt loop exited without a result")
}

func (g *HTTPBankGateway) sleepBeforeRetry(ctx context.Context, attempt int, retryAfterSeconds float64) {
	delay, err := fullJitterDelay(attempt, g.baseDelay, g.maxDelay)
	if err != nil {
		delay = g.baseDelay
	}
	if retryAfterSeconds > 0 {
		retryDelay := time.Duration(retryAfterSeconds * float64(time.Second))
		if retryDelay > delay {
			delay = retryDelay
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// classifyAttempt performs one HTTP round trip and returns either a
// classified result, a non-nil retryAfter (429 case), or a *NetworkError.
func (g *HTTPBankGateway) classifyAttempt(ctx context.Context, do func(ctx context.Context) (*application.TransferResult, error)) (*application.TransferResult, *float64, error) {
	result, err := do(ctx)
	if err != nil {
		var rl *RateLimitedError
		if errors.As(err, &rl) {
			ra := rl.RetryAfterSeconds
			return nil, &ra, nil
		}
		return nil, nil, err
	}
	return result, nil, nil
}

func (g *HTTPBankGateway) doRequest(ctx context.Context, method, url string, body *transferRequestBody, idempotencyKey string) (*application.TransferResult, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal transfer request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build bank request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfterSeconds(resp.Header.Get("Retry-After"), time.Now())
		return nil, &RateLimitedError{RetryAfterSeconds: retryAfter}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	var parsed transferResponseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return classifyInvalidJSON(resp.StatusCode), nil
	}

	return classifyResponse(resp.StatusCode, &parsed, idempotencyKey), nil
}
