package bank

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// fullJitterDelay ports original_source's wallets/integrations/retry.py
// full_jitter_delay: uniform(0, min(max_delay, base_delay*2^(attempt-1))).
// attempt is 1-indexed, matching the Python source.
func fullJitterDelay(attempt int, baseDelay, maxDelay time.Duration) (time.Duration, error) {
	if attempt < 1 {
		return 0, fmt.Errorf("attempt must be >= 1, got %d", attempt)
	}
	if baseDelay < 0 || maxDelay < 0 {
		return 0, fmt.Errorf("delays must be non-negative")
	}
	cap := baseDelay << (attempt - 1)
	if cap > maxDelay {
		cap = maxDelay
	}
	if cap <= 0 {
		return 0, nil
	}
	return time.Duration(rand.Int63n(int64(cap) + 1)), nil
}

// parseRetryAfterSeconds ports original_source's
// parse_retry_after_seconds: accepts either an integer/float seconds value
// or an HTTP-date, clamped to >= 0.
func parseRetryAfterSeconds(value string, now time.Time) float64 {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 {
			return 0
		}
		return seconds
	}
	if at, err := http.ParseTime(value); err == nil {
		remaining := at.Sub(now).Seconds()
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	return 0
}
