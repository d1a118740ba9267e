package bank

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullJitterDelay_BoundedByMaxDelay(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d, err := fullJitterDelay(attempt, 100*time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestFullJitterDelay_RejectsNonPositiveAttempt(t *testing.T) {
	_, err := fullJitterDelay(0, time.Second, time.Second)
	assert.Error(t, err)
}

func TestParseRetryAfterSeconds_IntegerSeconds(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 30.0, parseRetryAfterSeconds("30", now))
}

func TestParseRetryAfterSeconds_HTTPDate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(10 * time.Second).UTC().Format(http.TimeFormat)
	seconds := parseRetryAfterSeconds(future, now)
	assert.InDelta(t, 10.0, seconds, 1.0)
}

func TestParseRetryAfterSeconds_EmptyOrInvalid(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0.0, parseRetryAfterSeconds("", now))
	assert.Equal(t, 0.0, parseRetryAfterSeconds("not-a-date", now))
}

func TestParseRetryAfterSeconds_ClampsNegative(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0.0, parseRetryAfterSeconds("-5", now))
}
