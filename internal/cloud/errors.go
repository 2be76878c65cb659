package cloud

import (
	"errors"
	"fmt"
)

// Sentinels for the cloud error taxonomy. Match with errors.Is.
var (
	ErrAuth  = errors.New("cloud: credential exchange failed")
	ErrRead  = errors.New("cloud: property read failed")
	ErrWrite = errors.New("cloud: property write failed")
	ErrParse = errors.New("cloud: malformed property value")
)

// AuthError reports a failed client-credentials exchange.
// StatusCode is zero when the identity endpoint was unreachable.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: http %d: %v", ErrAuth, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrAuth, e.Err)
}

func (e *AuthError) Unwrap() error        { return e.Err }
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// ReadError reports a failed property read.
type ReadError struct {
	Thing      string
	Property   string
	StatusCode int
	Err        error
}

func (e *ReadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: %s/%s: http %d: %v", ErrRead, e.Thing, e.Property, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v: %s/%s: %v", ErrRead, e.Thing, e.Property, e.Err)
}

func (e *ReadError) Unwrap() error        { return e.Err }
func (e *ReadError) Is(target error) bool { return target == ErrRead }

// WriteError reports a failed property publish.
type WriteError struct {
	Thing      string
	Property   string
	StatusCode int
	Err        error
}

func (e *WriteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: %s/%s: http %d: %v", ErrWrite, e.Thing, e.Property, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v: %s/%s: %v", ErrWrite, e.Thing, e.Property, e.Err)
}

func (e *WriteError) Unwrap() error        { return e.Err }
func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// ParseError reports a property payload that is not a well-formed "r,g,b" triple.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %q: %v", ErrParse, e.Payload, e.Err)
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }
