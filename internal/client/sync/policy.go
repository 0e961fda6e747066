package sync

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Outcome classifies one delivery attempt.
type Outcome int

const (
	// OutcomeSuccess: 2xx, the item is removed.
	OutcomeSuccess Outcome = iota
	// OutcomeIdempotentSuccess: 409, the server already applied the effect.
	OutcomeIdempotentSuccess
	// OutcomePermanent: a 4xx the server will never accept; the item is dead-lettered.
	OutcomePermanent
	// OutcomeTransient: network error, 5xx or a retryable 4xx; retried with backoff.
	OutcomeTransient
	// OutcomeUnauthorized: 401, the credential was rejected; the item is left untouched.
	OutcomeUnauthorized
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeIdempotentSuccess:
		return "idempotent_success"
	case OutcomePermanent:
		return "permanent"
	case OutcomeTransient:
		return "transient"
	case OutcomeUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// DefaultRetryableStatuses are the 4xx codes retried instead of dead-lettered.
var DefaultRetryableStatuses = []int{http.StatusRequestTimeout, http.StatusTooManyRequests}

// RetryPolicy maps a response to an Outcome.
type RetryPolicy struct {
	retryable map[int]struct{}
}

// NewRetryPolicy returns a policy treating the given 4xx codes as transient.
func NewRetryPolicy(retryable []int) RetryPolicy {
	p := RetryPolicy{retryable: make(map[int]struct{}, len(retryable))}
	for _, code := range retryable {
		p.retryable[code] = struct{}{}
	}
	return p
}

// DefaultRetryPolicy retries 408 and 429.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(DefaultRetryableStatuses)
}

// ParseStatuses parses a comma separated list such as "408,429".
func ParseStatuses(s string) ([]int, error) {
	var codes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil || code < 400 || code > 499 {
			return nil, &invalidStatusError{value: part}
		}
		codes = append(codes, code)
	}
	return codes, nil
}

type invalidStatusError struct {
	value string
}

func (e *invalidStatusError) Error() string {
	return "invalid retryable status " + strconv.Quote(e.value) + ": must be a 4xx code"
}

// Classify returns the outcome of a delivery that failed with err or
// completed with status.
func (p RetryPolicy) Classify(status int, err error) Outcome {
	if err != nil {
		return OutcomeTransient
	}

	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusConflict:
		return OutcomeIdempotentSuccess
	case status == http.StatusUnauthorized:
		return OutcomeUnauthorized
	case status >= 400 && status < 500:
		if _, ok := p.retryable[status]; ok {
			return OutcomeTransient
		}
		return OutcomePermanent
	case status >= 500:
		return OutcomeTransient
	default:
		// 1xx/3xx после редиректов http.Client: запрос не будет принят
		return OutcomePermanent
	}
}

// Backoff computes retry delays: min(Base * 2^(n-1), Max) for the n-th failure.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff starts at one second and caps at five minutes.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 5 * time.Minute}
}

// Delay returns the wait after retryCount failed attempts (retryCount >= 1).
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := b.Base
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= b.Max || delay <= 0 {
			return b.Max
		}
	}
	if delay > b.Max {
		return b.Max
	}
	return delay
}
