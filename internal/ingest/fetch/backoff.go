package fetch

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Backoff returns base*2^attempt capped at max. attempt is zero-based.
// Without a cap the result saturates at the largest duration.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// RetryAfter parses a numeric Retry-After header value in seconds.
// HTTP-date values are not honoured and report ok=false.
func RetryAfter(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// RetryDelay picks the sleep before the next attempt: the server hint when
// present, otherwise the exponential backoff.
func RetryDelay(attempt int, retryAfter string, base, max time.Duration) time.Duration {
	if d, ok := RetryAfter(retryAfter); ok {
		return d
	}
	return Backoff(attempt, base, max)
}
