// Package gateway is the HTTP boundary of the scraper: a transport-agnostic Client contract,
// a shared cookie jar, and Gateway, which knows how each portal page must be requested.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Request is a single HTTP exchange. Form is sent url-encoded when non-nil.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Form    map[string]string
}

// Response is the result of a Request after redirects have been followed.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// BodyString returns the body as text.
func (r Response) BodyString() string {
	return string(r.Body)
}

// Client executes requests against a cookie jar shared by every call.
// Implementations must be safe for concurrent use.
type Client interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Response, error)

// Do implements Client.
func (f ClientFunc) Do(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Error kinds, matched with errors.Is.
var (
	// ErrTransport means no usable response was received: a network failure or an HTTP error status.
	ErrTransport = errors.New("gateway transport error")
	// ErrEmptyResponse means the server answered with an empty body.
	ErrEmptyResponse = errors.New("gateway empty response")
)

// Error describes a failed gateway call.
type Error struct {
	Kind       error
	When       string
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s %s", e.Kind, e.When, e.Method, e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
