package fetch

import (
	"context"
	"errors"
	"net"
)

// Kind discriminates fetch failures.
type Kind int

const (
	// KindRenderFault is an unexpected browser, navigation or transport fault.
	KindRenderFault Kind = iota
	// KindHTTPError is a main-document status >= 400 other than 401/403.
	KindHTTPError
	// KindRenderTimeout means no ranking marker appeared before the timeout.
	KindRenderTimeout
	// KindBlocked means the source denied automated access.
	KindBlocked
)

func (k Kind) String() string {
	switch k {
	case KindRenderFault:
		return "render_fault"
	case KindHTTPError:
		return "http_error"
	case KindRenderTimeout:
		return "render_timeout"
	case KindBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// bodyPrefixLimit bounds Error.BodyPrefix, in runes.
const bodyPrefixLimit = 2048

// Error is a structured fetch failure. Status is 0 and ContentType, Title
// and BodyPrefix are empty when unknown.
type Error struct {
	Kind        Kind
	Message     string
	URL         string
	Status      int
	ContentType string
	Title       string
	BodyPrefix  string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Blocked reports whether the source rejected automated access.
func (e *Error) Blocked() bool { return e.Kind == KindBlocked }

// Timeout reports whether the failure was caused by a render or navigation timeout.
func (e *Error) Timeout() bool {
	return e.Kind == KindRenderTimeout || isTimeout(e.Err)
}

// HasMetadata reports whether any structured response metadata was captured.
func (e *Error) HasMetadata() bool {
	return e.Status != 0 || e.ContentType != "" || e.Title != "" || e.BodyPrefix != ""
}

// IsBlocked reports whether err carries a blocked fetch error.
func IsBlocked(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Blocked()
}

// AsError extracts the structured fetch error from err, if any.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func newError(kind Kind, msg, url string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, URL: url, Err: cause}
}

// trimPrefix keeps the first bodyPrefixLimit runes of s.
func trimPrefix(s string) string {
	n := 0
	for i := range s {
		if n == bodyPrefixLimit {
			return s[:i]
		}
		n++
	}
	return s
}
