// Package apierr classifies failures from the upstream metrics and
// text-generation APIs into a closed set of kinds that callers can match
// with errors.Is.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MaxBodyExcerpt bounds the upstream body carried in an Error.
const MaxBodyExcerpt = 300

// Kinds of upstream failure.
var (
	ErrNotConfigured = errors.New("not configured")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrServer        = errors.New("server error")
	ErrDecode        = errors.New("decode error")
	ErrNetwork       = errors.New("network error")
)

// Error is an upstream failure tagged with its kind.
type Error struct {
	Service    string // "revenuecat", "appsflyer", "openai", ...
	Kind       error
	StatusCode int
	Body       string
	Identifier string // the resource a not-found refers to
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrNotConfigured:
		return fmt.Sprintf("%s: not configured: add the API key and project id in settings", e.Service)
	case ErrUnauthorized:
		return fmt.Sprintf("%s: invalid API key: check your credentials", e.Service)
	case ErrForbidden:
		return fmt.Sprintf("%s: access denied: the API key lacks permission for this project", e.Service)
	case ErrNotFound:
		if e.Identifier != "" {
			return fmt.Sprintf("%s: %s not found: check the identifier", e.Service, e.Identifier)
		}
		return fmt.Sprintf("%s: resource not found", e.Service)
	case ErrRateLimited:
		return fmt.Sprintf("%s: rate limited: try again shortly", e.Service)
	case ErrServer:
		return fmt.Sprintf("%s: server error (status %d): %s", e.Service, e.StatusCode, e.Body)
	case ErrDecode:
		return fmt.Sprintf("%s: unexpected response: %v", e.Service, e.Err)
	case ErrNetwork:
		return fmt.Sprintf("%s: network error: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Kind)
}

// Is matches the error against its kind sentinel.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotConfigured reports missing credentials or identifiers.
func NotConfigured(service string) *Error {
	return &Error{Service: service, Kind: ErrNotConfigured}
}

// Network wraps a transport failure.
func Network(service string, err error) *Error {
	return &Error{Service: service, Kind: ErrNetwork, Err: err}
}

// Decode wraps a response that could not be parsed.
func Decode(service string, err error) *Error {
	return &Error{Service: service, Kind: ErrDecode, Err: err}
}

// FromStatus classifies a non-2xx response. Returns nil for 2xx.
func FromStatus(service string, status int, body []byte, identifier string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	e := &Error{Service: service, StatusCode: status, Body: Excerpt(body), Identifier: identifier}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = ErrUnauthorized
	case status == http.StatusForbidden:
		e.Kind = ErrForbidden
	case status == http.StatusNotFound:
		e.Kind = ErrNotFound
	case status == http.StatusTooManyRequests:
		e.Kind = ErrRateLimited
	default:
		e.Kind = ErrServer
	}
	return e
}

// Excerpt trims body to at most MaxBodyExcerpt characters.
func Excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	r := []rune(s)
	if len(r) > MaxBodyExcerpt {
		return string(r[:MaxBodyExcerpt])
	}
	return s
}

// KindOf returns the kind sentinel of err, or nil if err is not an *Error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
