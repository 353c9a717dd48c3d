// Package geoerr classifies failures of the lookup and update paths.
package geoerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind is the failure class.
type Kind string

// Failure classes.
const (
	KindIO      Kind = "io"
	KindFetch   Kind = "fetch"
	KindParse   Kind = "parse"
	KindArchive Kind = "archive"
)

// Reason codes carried by classified errors.
const (
	ReasonNotFound        = "not_found"
	ReasonOpenFailed      = "open_failed"
	ReasonMkdirFailed     = "mkdir_failed"
	ReasonWriteFailed     = "write_failed"
	ReasonReadFailed      = "read_failed"
	ReasonTransport       = "transport"
	ReasonTimeout         = "timeout"
	ReasonTooSmall        = "too_small"
	ReasonNoLinkFound     = "no_link_found"
	ReasonNoTableFound    = "no_table_found"
	ReasonEntryOpenFailed = "entry_open_failed"
	ReasonExtractFailed   = "extract_failed"
)

// Exit codes returned by the command-line entry points.
const (
	ExitFailure = 1
	ExitUsage   = 2
	ExitIO      = 3
	ExitFetch   = 4
	ExitParse   = 5
	ExitArchive = 6
)

// Error is a classified failure. Err holds the underlying eris chain.
type Error struct {
	Kind       Kind
	Reason     string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Kind, e.Reason, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New classifies err under kind and reason.
func New(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// IO returns an io-class error.
func IO(reason string, err error) *Error { return New(KindIO, reason, err) }

// Fetch returns a fetch-class error.
func Fetch(reason string, err error) *Error { return New(KindFetch, reason, err) }

// Parse returns a parse-class error.
func Parse(reason string, err error) *Error { return New(KindParse, reason, err) }

// Archive returns an archive-class error.
func Archive(reason string, err error) *Error { return New(KindArchive, reason, err) }

// FetchStatus returns a transport error for a non-success HTTP response.
func FetchStatus(statusCode int, err error) *Error {
	e := New(KindFetch, ReasonTransport, err)
	e.StatusCode = statusCode
	return e
}

// FetchFromTransport classifies a transport failure as timeout or transport.
func FetchFromTransport(err error) *Error {
	if IsTimeout(err) {
		return Fetch(ReasonTimeout, err)
	}
	return Fetch(ReasonTransport, err)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the failure class of err, or "" when unclassified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the reason code of err, or "" when unclassified.
func ReasonOf(err error) string {
	if e, ok := As(err); ok {
		return e.Reason
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindIO:
		return ExitIO
	case KindFetch:
		return ExitFetch
	case KindParse:
		return ExitParse
	case KindArchive:
		return ExitArchive
	default:
		return ExitFailure
	}
}

// HTTPStatus maps err to a response status for the HTTP surface.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindFetch:
		if ReasonOf(err) == ReasonTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case KindParse, KindArchive:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
