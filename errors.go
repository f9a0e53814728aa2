package fortune

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed fortune request
type ErrorKind string

// Error kinds surfaced by the controller and the teller
const (
	KindNotConfigured       ErrorKind = "not_configured"
	KindPaymentNotProcessed ErrorKind = "payment_not_processed"
	KindRequestFailed       ErrorKind = "request_failed"
	KindUnexpected          ErrorKind = "unexpected"
	KindServerFault         ErrorKind = "server_fault"
)

// Error is a fortune-specific error
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotConfigured) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Hint is the user-facing suggestion for this failure.
func (e *Error) Hint() string {
	switch e.Kind {
	case KindNotConfigured:
		return "Configure your wallet to peek into destiny: set PRIVATE_KEY."
	case KindPaymentNotProcessed:
		return "Payment not processed. Check the wallet holds USDC on the expected network."
	case KindRequestFailed:
		return fmt.Sprintf("Request failed: %d", e.Status)
	default:
		return e.Message
	}
}

// Sentinel values for errors.Is comparisons
var (
	ErrNotConfigured       = &Error{Kind: KindNotConfigured, Message: "wallet not initialized"}
	ErrPaymentNotProcessed = &Error{Kind: KindPaymentNotProcessed, Message: "payment not processed"}
	ErrRequestFailed       = &Error{Kind: KindRequestFailed, Message: "request failed"}
	ErrUnexpected          = &Error{Kind: KindUnexpected, Message: "something went wrong"}
	ErrServerFault         = &Error{Kind: KindServerFault, Message: "server fault"}
)

// ErrNoCandidates is returned when a teller is built without fortunes.
var ErrNoCandidates = errors.New("fortune: candidate list is empty")

// NewRequestFailed creates a RequestFailed error carrying the HTTP status.
func NewRequestFailed(status int) *Error {
	return &Error{
		Kind:    KindRequestFailed,
		Status:  status,
		Message: fmt.Sprintf("request failed: %d", status),
	}
}

// NewUnexpected wraps an arbitrary failure into an Unexpected error.
func NewUnexpected(err error) *Error {
	msg := "something went wrong"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Error{Kind: KindUnexpected, Message: msg}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
