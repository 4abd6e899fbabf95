package resource

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
)

// Error kinds delivered to Handler.OnError, matched with errors.Is.
var (
	// ErrDownload is a rejection that is not a transport failure, such as a recovered panic.
	ErrDownload = errors.New("resource download error")
	// ErrRequest means the request never produced a response.
	ErrRequest = errors.New("resource request error")
	// ErrResponse is the parent of every kind raised after a response was received.
	ErrResponse = errors.New("resource response error")

	ErrInvalidStatus   = fmt.Errorf("%w: invalid status code", ErrResponse)
	ErrEmptyContent    = fmt.Errorf("%w: empty content", ErrResponse)
	ErrContentMismatch = fmt.Errorf("%w: content mismatch", ErrResponse)
	ErrHandler         = fmt.Errorf("%w: success handler failed", ErrResponse)
)

// ErrInvalidResourceType is returned when a download batch cannot be built.
var ErrInvalidResourceType = errors.New("invalid resource type")

// DownloadError describes the failure of a single item. Response is nil for request errors.
type DownloadError struct {
	UUID     string
	Kind     error
	Reason   Reason
	Response *gateway.Response
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: uuid %s: %s", e.Kind, e.UUID, e.Reason)
}

// Unwrap exposes the kind and, when the reason is an error, the cause.
func (e *DownloadError) Unwrap() []error {
	if e.Reason.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Reason.Err}
}

// ReasonKind classifies the value a failure was raised with.
type ReasonKind int

// Reason kinds, in the order they are tried.
const (
	ReasonError ReasonKind = iota + 1
	ReasonScalar
	ReasonStringer
	ReasonStructural
)

// Reason is the printable cause of a DownloadError.
type Reason struct {
	Kind ReasonKind
	Text string
	Err  error
}

func (r Reason) String() string {
	return r.Text
}

// ReasonOf describes any failure value: errors by type and message, scalars by value,
// fmt.Stringer by its string and anything else by a Go-syntax dump.
func ReasonOf(v any) Reason {
	if err, ok := v.(error); ok {
		return Reason{Kind: ReasonError, Text: fmt.Sprintf("%T: %v", err, err), Err: err}
	}
	if v != nil {
		switch reflect.TypeOf(v).Kind() {
		case reflect.Bool, reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return Reason{Kind: ReasonScalar, Text: fmt.Sprint(v)}
		}
	}
	if s, ok := v.(fmt.Stringer); ok {
		return Reason{Kind: ReasonStringer, Text: s.String()}
	}
	return Reason{Kind: ReasonStructural, Text: strings.TrimSpace(fmt.Sprintf("%#v", v))}
}

func reasonf(format string, args ...any) Reason {
	return Reason{Kind: ReasonScalar, Text: fmt.Sprintf(format, args...)}
}
