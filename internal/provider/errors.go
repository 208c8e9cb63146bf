package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindRateLimited        Kind = "rate_limited"
	KindAuthFailed         Kind = "auth_failed"
	KindModelNotFound      Kind = "model_not_found"
	KindContextTooLong     Kind = "context_too_long"
	KindContentFiltered    Kind = "content_filtered"
	KindConnectionFailed   Kind = "connection_failed"
	KindTimeout            Kind = "timeout"
	KindQuotaExhausted     Kind = "quota_exhausted"
	KindServiceUnavailable Kind = "service_unavailable"
	KindUnknown            Kind = "unknown"
)

// Error is returned by every provider call that fails.
type Error struct {
	Kind       Kind
	Provider   string
	Model      string
	Status     int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Model != "" {
		b.WriteString(" (" + e.Model + ")")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is likely transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindConnectionFailed, KindTimeout, KindServiceUnavailable:
		return true
	}
	return false
}

// IsKind reports whether err is a provider Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// classifyHTTP maps a non-2xx response to an Error.
func classifyHTTP(providerName, model string, status int, header http.Header, body string) *Error {
	msg := strings.TrimSpace(body)
	if len(msg) > 500 {
		msg = msg[:500]
	}
	lower := strings.ToLower(msg)

	e := &Error{Provider: providerName, Model: model, Status: status, Message: fmt.Sprintf("HTTP %d: %s", status, msg)}
	switch {
	case status == http.StatusTooManyRequests:
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") || strings.Contains(lower, "insufficient") {
			e.Kind = KindQuotaExhausted
		} else {
			e.Kind = KindRateLimited
			e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuthFailed
	case status == http.StatusNotFound:
		e.Kind = KindModelNotFound
	case status == http.StatusPaymentRequired:
		e.Kind = KindQuotaExhausted
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway || status == 529:
		e.Kind = KindServiceUnavailable
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		switch {
		case strings.Contains(lower, "context") || strings.Contains(lower, "too long") || (strings.Contains(lower, "maximum") && strings.Contains(lower, "token")):
			e.Kind = KindContextTooLong
		case strings.Contains(lower, "safety") || strings.Contains(lower, "content_filter") || strings.Contains(lower, "content policy"):
			e.Kind = KindContentFiltered
		case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
			e.Kind = KindModelNotFound
		default:
			e.Kind = KindUnknown
		}
	case status >= 500:
		e.Kind = KindServiceUnavailable
	default:
		e.Kind = KindUnknown
	}
	return e
}

// classifyTransport wraps a failure that happened before or during the HTTP exchange.
func classifyTransport(providerName, model string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := KindConnectionFailed
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Provider: providerName, Model: model, Message: err.Error(), Err: err}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
