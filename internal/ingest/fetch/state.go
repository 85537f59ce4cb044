package fetch

import (
	"fmt"
	"net/http"
	"time"
)

// State is a position in the retry state machine:
// Idle → Requesting → (Backoff → Requesting)* → Succeeded | Failed.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateBackoff
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateBackoff:
		return "backoff"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// outcome is what one round trip produced.
type outcome struct {
	status     int
	body       string
	retryAfter string
	err        error
	// canceled is set when the caller's context ended the round trip.
	canceled bool
}

// policy is the retry budget used by step.
type policy struct {
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// transition is the result of feeding an outcome to the state machine.
type transition struct {
	next    State
	delay   time.Duration
	failure *Error
}

// step decides what follows the attempt-th request (1-based) for url.
func step(url string, attempt int, o outcome, p policy) transition {
	kind, ok := classify(o)
	if ok {
		return transition{next: StateSucceeded}
	}

	failure := &Error{
		URL:        url,
		Kind:       kind,
		StatusCode: o.status,
		Attempts:   attempt,
		Err:        o.err,
	}
	if failure.Err == nil && o.status > 0 {
		failure.Err = fmt.Errorf("unexpected status %d %s", o.status, http.StatusText(o.status))
	}

	if !kind.Transient() {
		return transition{next: StateFailed, failure: failure}
	}
	if attempt >= p.maxRetries {
		failure.Exhausted = true
		return transition{next: StateFailed, failure: failure}
	}

	hint := ""
	if kind == KindRateLimited {
		hint = o.retryAfter
	}
	return transition{
		next:  StateBackoff,
		delay: RetryDelay(attempt-1, hint, p.baseBackoff, p.maxBackoff),
	}
}

func classify(o outcome) (Kind, bool) {
	if o.canceled {
		return KindCanceled, false
	}
	if o.err != nil {
		return KindNetwork, false
	}
	switch {
	case o.status >= 200 && o.status < 300:
		return 0, true
	case o.status == http.StatusTooManyRequests:
		return KindRateLimited, false
	case o.status >= 500:
		return KindServer, false
	default:
		return KindStatus, false
	}
}
