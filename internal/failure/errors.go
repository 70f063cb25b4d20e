// Package failure classifies pipeline errors into the kinds the HTTP layer
// turns into responses.
package failure

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind identifies the class of a failure.
type Kind int

const (
	// KindUnknown is any error not produced through this package.
	KindUnknown Kind = iota
	// KindValidation marks bad caller input (missing place, bad buffer).
	KindValidation
	// KindRemote marks a failure reaching or parsing an external service.
	KindRemote
	// KindNotFound marks a lookup with no result (geocoder miss, missing file).
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRemote:
		return "remote"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the stage that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a validation error with the given message.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Err: errors.New(msg)}
}

// Remote wraps err as a remote failure of op.
func Remote(op string, err error) *Error {
	if err == nil {
		err = errors.New("unknown remote failure")
	}
	return &Error{Kind: KindRemote, Op: op, Err: err}
}

// Remotef builds a remote failure of op from a format string.
func Remotef(op, format string, args ...any) *Error {
	return &Error{Kind: KindRemote, Op: op, Err: eris.Errorf(format, args...)}
}

// NotFound returns a not-found error of op with the given message.
func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: errors.New(msg)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTimeout reports whether err (or any error in its chain) is a network
// timeout, including expired context deadlines on outbound requests.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"context deadline exceeded",
		"i/o timeout",
		"tls handshake timeout",
		"client.timeout exceeded",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// HTTPStatus maps err to the response status for endpoints that honour
// the full taxonomy.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
