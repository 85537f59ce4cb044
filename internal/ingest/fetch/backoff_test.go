package fetch

import (
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		base    time.Duration
		max     time.Duration
		want    time.Duration
	}{
		{"first attempt", 0, time.Second, time.Minute, time.Second},
		{"doubles", 1, time.Second, time.Minute, 2 * time.Second},
		{"doubles again", 3, time.Second, time.Minute, 8 * time.Second},
		{"capped", 10, time.Second, 30 * time.Second, 30 * time.Second},
		{"huge attempt capped", 200, time.Second, time.Minute, time.Minute},
		{"negative attempt", -2, time.Second, time.Minute, time.Second},
		{"uncapped saturates", 200, time.Second, 0, time.Duration(math.MaxInt64)},
		{"uncapped doubles", 2, time.Second, 0, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.attempt, tt.base, tt.max))
		})
	}
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 12*time.Second, RetryDelay(0, "12", time.Second, 5*time.Second))
	assert.Equal(t, 4*time.Second, RetryDelay(2, "", time.Second, 5*time.Second))
	assert.Equal(t, 4*time.Second, RetryDelay(2, "Wed, 21 Oct 2015 07:28:00 GMT", time.Second, 5*time.Second))
	assert.Equal(t, 4*time.Second, RetryDelay(2, "-3", time.Second, 5*time.Second))
	assert.Equal(t, time.Duration(0), RetryDelay(2, "0", time.Second, 5*time.Second))
}

func TestStep(t *testing.T) {
	p := policy{maxRetries: 3, baseBackoff: time.Second, maxBackoff: 10 * time.Second}

	tr := step("u", 1, outcome{status: http.StatusOK}, p)
	assert.Equal(t, StateSucceeded, tr.next)
	assert.Nil(t, tr.failure)

	tr = step("u", 1, outcome{status: http.StatusTooManyRequests, retryAfter: "3"}, p)
	assert.Equal(t, StateBackoff, tr.next)
	assert.Equal(t, 3*time.Second, tr.delay)

	tr = step("u", 2, outcome{status: http.StatusBadGateway, retryAfter: "30"}, p)
	assert.Equal(t, StateBackoff, tr.next)
	assert.Equal(t, 2*time.Second, tr.delay, "retry-after only applies to 429")

	tr = step("u", 3, outcome{status: http.StatusTooManyRequests}, p)
	assert.Equal(t, StateFailed, tr.next)
	assert.True(t, tr.failure.Exhausted)
	assert.Equal(t, KindRateLimited, tr.failure.Kind)

	tr = step("u", 1, outcome{status: http.StatusForbidden}, p)
	assert.Equal(t, StateFailed, tr.next)
	assert.False(t, tr.failure.Exhausted)
	assert.Equal(t, KindStatus, tr.failure.Kind)

	tr = step("u", 1, outcome{canceled: true}, p)
	assert.Equal(t, StateFailed, tr.next)
	assert.Equal(t, KindCanceled, tr.failure.Kind)
}
