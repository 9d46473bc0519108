package mcp

import (
	"errors"
	"fmt"
)

// JSON-RPC 2.0 error codes
const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternal       = -32603
)

// ErrorKind is the closed set of failures a request can end with.
type ErrorKind int

const (
	// KindInternal is the fallback for anything not classified below.
	KindInternal ErrorKind = iota
	KindInvalidParams
	KindAlreadyInitialized
	KindNotInitialized
	KindUnknownTool
	KindUnknownMethod
	KindExecutionFailed
)

var kindNames = map[ErrorKind]string{
	KindInternal:           "internal",
	KindInvalidParams:      "invalid_params",
	KindAlreadyInitialized: "already_initialized",
	KindNotInitialized:     "not_initialized",
	KindUnknownTool:        "unknown_tool",
	KindUnknownMethod:      "unknown_method",
	KindExecutionFailed:    "execution_failed",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Code maps the kind to its wire error code. Sequence errors, unknown tools and
// executor failures share the generic internal code.
func (k ErrorKind) Code() int {
	switch k {
	case KindUnknownMethod:
		return ErrorCodeMethodNotFound
	case KindInvalidParams:
		return ErrorCodeInvalidParams
	default:
		return ErrorCodeInternal
	}
}

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrAlreadyInitialized = &Error{Kind: KindAlreadyInitialized, Message: "Server already initialized"}
	ErrNotInitialized     = &Error{Kind: KindNotInitialized, Message: "Server not initialized"}
	ErrUnknownTool        = &Error{Kind: KindUnknownTool, Message: "Unknown tool"}
	ErrUnknownMethod      = &Error{Kind: KindUnknownMethod, Message: "Method not found"}
	ErrExecutionFailed    = &Error{Kind: KindExecutionFailed, Message: "Tool execution failed"}
)

// Error is a request failure tagged with its kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates an Error of the given kind wrapping err, which may be nil.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf creates an Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Code returns the wire error code for e.
func (e *Error) Code() int {
	return e.Kind.Code()
}

func (e *Error) toResponseError() *ResponseError {
	return &ResponseError{Code: e.Code(), Message: e.Error()}
}

// AsError returns err as an *Error, classifying unknown errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var mcpErr *Error
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	return &Error{Kind: KindInternal, Message: err.Error()}
}
