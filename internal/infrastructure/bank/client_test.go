package bank

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/config"
	"github.com/stretchr/testify/require"
)

func testGatewayConfig(baseURL string) config.BankConfig {
	return config.BankConfig{
		BaseURL:          baseURL,
		TimeoutSeconds:   5 * time.Second,
		RetryMaxAttempts: 4,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    10 * time.Millisecond,
	}
}

func testGatewayLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestHTTPBankGateway_Transfer_RetriesAfterRateLimitThenSucceeds covers
// scenario 8 from spec.md §8: the bank replies HTTP 429 with
// Retry-After: 0 on the first attempt, then 200/success on the retry. The
// gateway must retry exactly once and return the eventual success.
func TestHTTPBankGateway_Transfer_RetriesAfterRateLimitThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         200,
			"data":           "success",
			"bank_reference": "bank-ref-429-retry",
		})
	}))
	defer server.Close()

	gw := NewHTTPBankGateway(testGatewayConfig(server.URL), nil, testGatewayLogger())

	result, err := gw.Transfer(context.Background(), application.TransferRequest{
		IdempotencyKey: "idem-429",
		WalletID:       "1",
		Amount:         1_000,
	})
	require.NoError(t, err)
	require.Equal(t, application.OutcomeSuccess, result.Outcome)
	require.Equal(t, "bank-ref-429-retry", result.BankReference)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls), "a 429 followed by success must take exactly two attempts")
}

// TestHTTPBankGateway_Transfer_ClassifiedUnknownIsNotRetried guards the
// attempt loop's single most important safety property: a classified 5xx
// response (UNKNOWN, not a network error or a 429) must short-circuit
// immediately rather than trigger a second live call, since the bank may
// already have applied the transfer server-side.
func TestHTTPBankGateway_Transfer_ClassifiedUnknownIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": 500,
			"data":   "processing_error",
		})
	}))
	defer server.Close()

	gw := NewHTTPBankGateway(testGatewayConfig(server.URL), nil, testGatewayLogger())

	result, err := gw.Transfer(context.Background(), application.TransferRequest{
		IdempotencyKey: "idem-500",
		WalletID:       "1",
		Amount:         1_000,
	})
	require.NoError(t, err)
	require.Equal(t, application.OutcomeUnknown, result.Outcome)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "a single classified UNKNOWN response must never be retried")
}

// TestHTTPBankGateway_Transfer_FinalFailureIsNotRetried covers the other
// classified-outcome case: a 4xx response is a FINAL_FAILURE and must also
// return on the first attempt.
func TestHTTPBankGateway_Transfer_FinalFailureIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       400,
			"error_reason": "account_closed",
		})
	}))
	defer server.Close()

	gw := NewHTTPBankGateway(testGatewayConfig(server.URL), nil, testGatewayLogger())

	result, err := gw.Transfer(context.Background(), application.TransferRequest{
		IdempotencyKey: "idem-400",
		WalletID:       "1",
		Amount:         1_000,
	})
	require.NoError(t, err)
	require.Equal(t, application.OutcomeFinalFailure, result.Outcome)
	require.Equal(t, "account_closed", result.FailureReason)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

// TestHTTPBankGateway_Transfer_NetworkErrorRetriesThenReportsUnknown covers
// the one case that IS retried on its own terms: connection-level failures,
// which exhaust maxAttempts and surface as UNKNOWN rather than blocking
// forever.
func TestHTTPBankGateway_Transfer_NetworkErrorRetriesThenReportsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	unreachableURL := server.URL
	server.Close() // closed immediately: every request now fails at transport level

	cfg := testGatewayConfig(unreachableURL)
	cfg.RetryMaxAttempts = 2
	gw := NewHTTPBankGateway(cfg, nil, testGatewayLogger())

	result, err := gw.Transfer(context.Background(), application.TransferRequest{
		IdempotencyKey: "idem-network",
		WalletID:       "1",
		Amount:         1_000,
	})
	require.NoError(t, err)
	require.Equal(t, application.OutcomeUnknown, result.Outcome)
	require.Equal(t, "network_error", result.FailureReason)
}

// TestHTTPBankGateway_QueryStatus_SendsIdempotencyKeyInURL exercises the
// reconciler's status-query path against a templated status URL.
func TestHTTPBankGateway_QueryStatus_SendsIdempotencyKeyInURL(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         200,
			"data":           "success",
			"bank_reference": "bank-ref-query",
		})
	}))
	defer server.Close()

	cfg := testGatewayConfig(server.URL)
	cfg.StatusURLTemplate = server.URL + "/transfers/%s/status"
	gw := NewHTTPBankGateway(cfg, nil, testGatewayLogger())

	require.True(t, gw.CanQueryStatus())

	result, err := gw.QueryStatus(context.Background(), "idem-query-1")
	require.NoError(t, err)
	require.Equal(t, application.OutcomeSuccess, result.Outcome)
	require.Equal(t, "/transfers/idem-query-1/status", gotPath)
}

