package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies why an attempt stopped
type ErrorKind int

const (
	KindNetwork     ErrorKind = iota // transport: connect, DNS, TLS, reset
	KindProtocol                     // unexpected status, no range support
	KindIO                           // local write failure
	KindProgramming                  // invalid transition, bad numeric input
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindIO:
		return "io"
	case KindProgramming:
		return "programming"
	default:
		return "unknown"
	}
}

var (
	// ErrCancelled is carried by a Cancelled result. It is not a failure.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrProgramming marks defects: callers should fix the call site, not retry
	ErrProgramming = errors.New("programming error")

	ErrInvalidTransition = fmt.Errorf("%w: invalid state transition", ErrProgramming)
	ErrRangeNotSupported = errors.New("server does not support byte ranges")
	ErrOffsetBeyondSize  = errors.New("resume offset is past the end of the resource")
)

// TransferError is the typed cause attached to a failed attempt
type TransferError struct {
	Kind       ErrorKind
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewNetworkError(op, url string, err error) *TransferError {
	return &TransferError{Kind: KindNetwork, Op: op, URL: url, Err: err}
}

func NewProtocolError(op, url string, err error) *TransferError {
	return &TransferError{Kind: KindProtocol, Op: op, URL: url, Err: err}
}

func NewIOError(op string, err error) *TransferError {
	return &TransferError{Kind: KindIO, Op: op, Err: err}
}

// NewHTTPError wraps an unexpected status code as a protocol error
func NewHTTPError(op, url string, statusCode int) *TransferError {
	return &TransferError{
		Kind:       KindProtocol,
		Op:         op,
		URL:        url,
		StatusCode: statusCode,
		Err:        errors.New(http.StatusText(statusCode)),
	}
}

// ClassifyError maps an error from the HTTP client onto the taxonomy.
// Context cancellation maps to ErrCancelled so it never reads as a failure.
func ClassifyError(op, url string, err error) error {
	if err == nil {
		return nil
	}

	var te *TransferError
	if errors.As(err, &te) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return ErrCancelled
	}

	// Anything else out of the client is transport level: dial, DNS, TLS, reset, timeout
	return NewNetworkError(op, url, err)
}

func kindOf(err error) (ErrorKind, bool) {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

func IsNetworkError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNetwork
}

func IsProtocolError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindProtocol
}

func IsIOError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindIO
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// TransitionError reports a trigger that the current state does not accept
type TransitionError struct {
	From    string
	Trigger string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s has no transition on %s", e.From, e.Trigger)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
