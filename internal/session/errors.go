package session

import (
	"errors"
	"fmt"
)

// Kind classifies why a session ended.
type Kind string

// Error kinds. Encode errors never end a session; they are counted per frame.
const (
	KindValidation Kind = "validation"
	KindConnect    Kind = "connect"
	KindEncode     Kind = "encode"
	KindTransport  Kind = "transport"
	KindDevice     Kind = "device"
)

var (
	// ErrValidation is returned by Start and UpdateSettings for unusable requests.
	ErrValidation = errors.New("invalid session request")
	// ErrActive is returned by Start when a session is already running.
	ErrActive = errors.New("session already active")
	// ErrNotStreaming is returned when an operation needs a streaming session.
	ErrNotStreaming = errors.New("no streaming session")
)

// Error carries the kind of a session failure. It is the error published in
// the terminal notification.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// asError returns err as a session Error, classifying anything untyped as a
// transport failure.
func asError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return newError(KindTransport, "stream failed", err)
}
