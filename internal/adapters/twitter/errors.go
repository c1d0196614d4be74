package twitter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Failure classes. Every error returned by Client wraps exactly one of these
// (or a context error when the caller gave up).
var (
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrDuplicate    = errors.New("duplicate content")
	ErrBadRequest   = errors.New("bad request")
	ErrTransient    = errors.New("transient failure")
)

// APIError is a classified failure from the posting API.
type APIError struct {
	Kind   error
	Status int    // HTTP status, 0 for transport failures
	Detail string // server-provided explanation, if any

	// RetryAfter is the server's hint for rate limits (0 if absent).
	RetryAfter time.Duration

	Err error // underlying transport error, if any
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		b.WriteString(" (http ")
		b.WriteString(strconv.Itoa(e.Status))
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// IsAuth reports failures that need operator action on credentials or app permissions.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// Legacy v1.1 error codes still surfaced by some v2 endpoints.
const (
	codeRateLimit      = 88
	codeInvalidToken   = 89
	codeDuplicate      = 187
	codeWriteForbidden = 261
)

type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (p problem) text() string {
	parts := make([]string, 0, 2+len(p.Errors))
	if p.Detail != "" {
		parts = append(parts, p.Detail)
	} else if p.Title != "" {
		parts = append(parts, p.Title)
	}
	for _, e := range p.Errors {
		if e.Message != "" {
			parts = append(parts, e.Message)
		}
	}
	return strings.Join(parts, "; ")
}

func (p problem) hasCode(code int) bool {
	for _, e := range p.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// classify maps a non-2xx response to a failure class.
//
// Mapping:
//   - body mentions "duplicate" (or code 187), any status -> ErrDuplicate
//   - 429 (or code 88)                                    -> ErrRateLimited
//   - 401 (or code 89)                                    -> ErrUnauthorized
//   - 403 (or code 261)                                   -> ErrForbidden
//   - 408, 5xx                                            -> ErrTransient
//   - other 4xx                                           -> ErrBadRequest
//   - anything else                                       -> ErrTransient
//
// The duplicate check is the only text match; the API has no stable code for it in v2.
func classify(status int, header http.Header, body []byte) *APIError {
	var p problem
	_ = json.Unmarshal(body, &p)
	detail := p.text()
	if detail == "" {
		detail = truncate(strings.TrimSpace(string(body)), 200)
	}
	e := &APIError{Status: status, Detail: detail}

	switch {
	case p.hasCode(codeDuplicate) || strings.Contains(strings.ToLower(detail), "duplicate"):
		e.Kind = ErrDuplicate
	case status == http.StatusTooManyRequests || p.hasCode(codeRateLimit):
		e.Kind = ErrRateLimited
		e.RetryAfter = retryAfter(header, time.Now())
	case status == http.StatusUnauthorized || p.hasCode(codeInvalidToken):
		e.Kind = ErrUnauthorized
	case status == http.StatusForbidden || p.hasCode(codeWriteForbidden):
		e.Kind = ErrForbidden
	case status == http.StatusRequestTimeout || status >= 500:
		e.Kind = ErrTransient
	case status >= 400 && status < 500:
		e.Kind = ErrBadRequest
	default:
		e.Kind = ErrTransient
	}
	return e
}

// retryAfter reads x-rate-limit-reset (unix seconds) or Retry-After (seconds).
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(h.Get("x-rate-limit-reset")); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(sec, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return 0
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, &APIError{Kind: ErrTransient, Err: err})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
