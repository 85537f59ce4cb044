package fetch

import (
	"errors"
	"fmt"
)

// ErrExhausted matches any fetch error raised after the retry budget ran out.
var ErrExhausted = errors.New("retries exhausted")

// Kind classifies the cause of a fetch failure.
type Kind int

const (
	// KindNetwork covers connection failures and timeouts.
	KindNetwork Kind = iota
	// KindRateLimited is an HTTP 429 from the origin.
	KindRateLimited
	// KindServer is a 5xx response.
	KindServer
	// KindStatus is any other non-2xx response. Never retried.
	KindStatus
	// KindCanceled means the caller's context ended the fetch.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindStatus:
		return "status"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Transient reports whether failures of this kind are retried.
func (k Kind) Transient() bool {
	return k == KindNetwork || k == KindRateLimited || k == KindServer
}

// Error is the failure half of a Result.
type Error struct {
	URL        string
	Kind       Kind
	StatusCode int
	Attempts   int
	Exhausted  bool
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.StatusCode)
	}
	if e.Exhausted {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrExhausted) match exhausted failures.
func (e *Error) Is(target error) bool {
	return target == ErrExhausted && e.Exhausted
}

// AsError unwraps err into a fetch *Error.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Result is either page content or a failure. Exactly one of Body/Err is meaningful.
type Result struct {
	URL        string
	Body       string
	StatusCode int
	Attempts   int
	FromCache  bool
	Err        *Error
}

// OK reports whether the result carries content.
func (r Result) OK() bool {
	return r.Err == nil
}

// Failure returns the failure as an error value, or nil for content.
func (r Result) Failure() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}
