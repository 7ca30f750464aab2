// Package errors provides an error type that carries a stacktrace, a gRPC
// status code, and an optional public message. It implements the standard
// error interface and the Is/As/Unwrap conventions, so it can be used
// interchangeably with code expecting ordinary errors.
//
// Sentinel errors are declared with NewC and matched with errors.Is:
//
//	var ErrInvalidToken = errors.NewC("token is invalid", codes.Unauthenticated)
//
//	if errors.Is(err, ErrInvalidToken) { ... }
//
// The public message is what gets surfaced to clients; the raw error text
// stays in logs.
package errors

import (
	"bytes"
	goerrors "errors"
	"fmt"
	"net/http"
	"runtime"

	"google.golang.org/grpc/codes"
)

// MaxStackDepth is the maximum number of stackframes captured per error.
var MaxStackDepth = 50

// Error is an error with an attached stacktrace, gRPC code, and optional
// public message.
type Error struct {
	Err    error
	stack  []uintptr
	prefix string

	// gRPC status code classifying the error.
	code codes.Code

	// Message that is safe to return to clients.
	publicMessage string
}

// New makes an Error from the given value. If the value is already an error
// it is used directly, otherwise it is passed through fmt.Errorf("%v"). The
// stacktrace points at the caller of New.
func New(e interface{}) *Error {
	return newE(e, codes.Unknown, 1)
}

// NewC makes an Error with a status code attached.
func NewC(e interface{}, code codes.Code) *Error {
	return newE(e, code, 1)
}

// Codef makes an Error with a status code and a formatted message.
func Codef(code codes.Code, format string, a ...interface{}) *Error {
	return newE(fmt.Errorf(format, a...), code, 1)
}

// Errorf creates a new error with the given message. Drop-in replacement for
// fmt.Errorf that captures a stacktrace.
func Errorf(format string, a ...interface{}) *Error {
	return newE(fmt.Errorf(format, a...), codes.Unknown, 1)
}

func newE(e interface{}, code codes.Code, skip int) *Error {
	var err error
	switch e := e.(type) {
	case error:
		err = e
	default:
		err = fmt.Errorf("%v", e)
	}
	stack := make([]uintptr, MaxStackDepth)
	length := runtime.Callers(2+skip, stack[:])
	return &Error{
		Err:   err,
		stack: stack[:length],
		code:  code,
	}
}

// Wrap makes an Error from the given value. Existing *Errors are returned
// unchanged. The skip parameter indicates how far up the stack to start the
// stacktrace: 0 is the caller of Wrap.
func Wrap(e interface{}, skip int) *Error {
	if e == nil {
		return nil
	}
	if err, ok := e.(*Error); ok {
		return err
	}
	return newE(e, codes.Unknown, 1+skip)
}

// Mark takes an error and re-captures the stacktrace from the point it was
// called, preserving code and public message. Use when returning a sentinel
// so the trace points at the return site rather than the declaration.
func Mark(e interface{}, skip int) *Error {
	if e == nil {
		return nil
	}
	if err, ok := e.(*Error); ok {
		stack := make([]uintptr, MaxStackDepth)
		length := runtime.Callers(2+skip, stack[:])
		return &Error{
			Err:           err,
			stack:         stack[:length],
			code:          err.code,
			publicMessage: err.publicMessage,
			prefix:        err.prefix,
		}
	}
	return Wrap(e, 1+skip)
}

// Error returns the underlying error's message, with any prefix applied.
func (err *Error) Error() string {
	msg := err.Err.Error()
	if err.prefix != "" {
		msg = fmt.Sprintf("%s: %s", err.prefix, msg)
	}
	return msg
}

// Append adds detail after the existing message.
func (err *Error) Append(msg string) *Error {
	return &Error{
		Err:           fmt.Errorf("%w: %s", err.Err, msg),
		stack:         err.stack,
		code:          err.code,
		publicMessage: err.publicMessage,
		prefix:        err.prefix,
	}
}

// Stack returns the callstack formatted the same way that go does in
// runtime/debug.Stack().
func (err *Error) Stack() []byte {
	buf := bytes.Buffer{}
	frames := runtime.CallersFrames(err.stack)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return buf.Bytes()
}

// ErrorStack returns a string that contains both the error message and the
// callstack.
func (err *Error) ErrorStack() string {
	return err.Error() + "\n" + string(err.Stack())
}

// Unwrap the error (implements the api for the As and Is functions).
func (err *Error) Unwrap() error {
	return err.Err
}

// Code returns the gRPC status code associated with the error.
func (err *Error) Code() codes.Code {
	return err.code
}

// WithCode sets the gRPC status code associated with the error.
func (err *Error) WithCode(code codes.Code) *Error {
	err.code = code
	return err
}

// PublicMessage returns the error string that should be shown to clients.
func (err *Error) PublicMessage() string {
	if err.publicMessage != "" {
		return err.publicMessage
	}
	return err.Error()
}

// WithPublicMessage sets the error string that should be shown to clients.
func (err *Error) WithPublicMessage(publicMessage string) *Error {
	err.publicMessage = publicMessage
	return err
}

// Code returns a gRPC status code for an error. Returns codes.OK for nil and
// codes.Unknown for errors that don't expose a Code() method.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var e codedError
	if goerrors.As(err, &e) {
		return e.Code()
	}
	return codes.Unknown
}

// PublicMessage returns the client-safe message for an error, falling back to
// the raw error text.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e publicError
	if goerrors.As(err, &e) {
		return e.PublicMessage()
	}
	return err.Error()
}

// HTTPStatusCode maps an error's gRPC code onto an HTTP status.
func HTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Is reports whether any error in err's chain matches target. Sentinels
// created with New/NewC match themselves through Mark and Append.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return goerrors.As(err, target)
}

type codedError interface {
	Code() codes.Code
}

type publicError interface {
	PublicMessage() string
}
