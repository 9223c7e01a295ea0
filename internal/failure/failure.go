// Package failure is the closed set of ways a comparison can fail.
package failure

import (
	"errors"
	"fmt"

	"github.com/snapp-incubator/conformer/internal/jsonvalue"
	"github.com/snapp-incubator/conformer/internal/shape"
)

// Kind identifies the step that failed.
type Kind uint8

const (
	// KindNone is returned by KindOf for nil or unclassified errors.
	KindNone Kind = iota
	// KindTransport covers connection errors, timeouts and unparseable response bodies.
	KindTransport
	// KindSerialization means a request body could not be encoded into a query string.
	KindSerialization
	// KindShapeMismatch means the two responses diverge structurally.
	KindShapeMismatch
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport failure"
	case KindSerialization:
		return "serialization failure"
	case KindShapeMismatch:
		return "shape mismatch"
	default:
		return "unknown failure"
	}
}

// Label is the lower-case token used in metrics and stored reports.
func (k Kind) Label() string {
	switch k {
	case KindTransport:
		return "transport_error"
	case KindSerialization:
		return "serialization_error"
	case KindShapeMismatch:
		return "shape_diff"
	default:
		return "unknown"
	}
}

// Error is a failed comparison step.
type Error struct {
	Kind     Kind
	Method   string
	Endpoint string
	// Upstream names the backend for transport and serialization failures.
	Upstream string
	// Mismatch is set for KindShapeMismatch only.
	Mismatch *shape.Mismatch
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindShapeMismatch:
		if e.Mismatch == nil {
			return fmt.Sprintf("%s on %s %s", e.Kind, e.Method, e.Endpoint)
		}
		m := e.Mismatch
		return fmt.Sprintf("%s on %s %s at path %s: client %s %s, reference %s %s",
			e.Kind, e.Method, e.Endpoint, m.Path,
			kindOf(m.Client), jsonvalue.Encode(m.Client),
			kindOf(m.Reference), jsonvalue.Encode(m.Reference),
		)
	default:
		msg := fmt.Sprintf("%s on %s %s", e.Kind, e.Method, e.Endpoint)
		if e.Upstream != "" {
			msg += " (" + e.Upstream + ")"
		}
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(v jsonvalue.Value) jsonvalue.Kind {
	if v == nil {
		return jsonvalue.KindNull
	}
	return v.Kind()
}

// Transport wraps a network or response decoding error.
func Transport(upstream, method, endpoint string, err error) *Error {
	return &Error{Kind: KindTransport, Upstream: upstream, Method: method, Endpoint: endpoint, Err: err}
}

// Serialization wraps a query string encoding error.
func Serialization(upstream, method, endpoint string, err error) *Error {
	return &Error{Kind: KindSerialization, Upstream: upstream, Method: method, Endpoint: endpoint, Err: err}
}

// ShapeMismatch wraps the first structural divergence of a comparison.
func ShapeMismatch(method string, m *shape.Mismatch) *Error {
	return &Error{Kind: KindShapeMismatch, Method: method, Endpoint: m.Endpoint, Mismatch: m}
}

// KindOf classifies err. Errors that are not an *Error report KindNone.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// AsMismatch returns the structural divergence carried by err, if any.
func AsMismatch(err error) (*shape.Mismatch, bool) {
	var e *Error
	if errors.As(err, &e) && e.Mismatch != nil {
		return e.Mismatch, true
	}
	return nil, false
}
