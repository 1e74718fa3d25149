package smartpay

import (
	"errors"
	"fmt"
)

// Outcome classifies how a call ended.
type Outcome int

const (
	// Success means the service answered with code 0.
	Success Outcome = iota
	// ValidationError means required fields were missing; nothing was sent.
	ValidationError
	// TransportError covers connection failures, timeouts and non-2xx replies.
	TransportError
	// MalformedResponse means the body was not a JSON object.
	MalformedResponse
	// Rejected means the service declined the request.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ValidationError:
		return "validation_error"
	case TransportError:
		return "transport_error"
	case MalformedResponse:
		return "malformed_response"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ErrMalformedResponse is returned for bodies that are not a JSON object.
var ErrMalformedResponse = errors.New("smartpay: malformed response")

// TransportFailure wraps a network or HTTP status failure.
type TransportFailure struct {
	Service string
	Err     error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("smartpay: %s transport failure: %v", e.Service, e.Err)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// RejectedError carries the service's refusal.
type RejectedError struct {
	Service string
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("smartpay: %s rejected (code %s): %s", e.Service, e.Code, e.Message)
}

// Result is the outcome of one operation. Exactly one outcome applies.
type Result struct {
	Outcome   Outcome
	Service   string
	RequestID string
	// Payload is the decoded response object. Numbers are json.Number.
	Payload map[string]any
	// Raw is the response body as received.
	Raw []byte
	// Missing lists absent required fields for ValidationError.
	Missing []string
	// Code is the literal response code for Rejected.
	Code    string
	Message string
	// Err is the underlying cause for TransportError and MalformedResponse.
	Err error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Outcome == Success }

// AsError converts a non-successful result into a typed error, nil on success.
func (r Result) AsError() error {
	switch r.Outcome {
	case Success:
		return nil
	case ValidationError:
		return &MissingFieldsError{Fields: append([]string(nil), r.Missing...)}
	case TransportError:
		return &TransportFailure{Service: r.Service, Err: r.Err}
	case MalformedResponse:
		if r.Err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, r.Err)
		}
		return ErrMalformedResponse
	case Rejected:
		return &RejectedError{Service: r.Service, Code: r.Code, Message: r.Message}
	default:
		return fmt.Errorf("smartpay: unknown outcome %d", int(r.Outcome))
	}
}
