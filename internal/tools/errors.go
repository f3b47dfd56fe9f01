package tools

import (
	"errors"
	"fmt"
)

// Tool registry errors.
var (
	// ErrToolNotFound is returned when a tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolTierInvalid is returned when a tool declares an unknown tier.
	ErrToolTierInvalid = errors.New("tool minimum tier is not a known tier")

	// ErrToolAlreadyRegistered is returned when registering a duplicate.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when an argument has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")
)

// Code classifies a structured tool failure.
type Code string

const (
	CodeUnknownTool     Code = "unknown_tool"
	CodeInvalidInput    Code = "invalid_input"
	CodePolicyViolation Code = "policy_violation"
	CodeNotImplemented  Code = "not_implemented"
	CodeExecutionFailed Code = "execution_failed"
)

// Error is a tool failure reported back to the model as data.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result renders the failure the way the model sees it.
func (e *Error) Result() Result {
	return Result{"error": e.Message, "code": string(e.Code)}
}

// NewError builds an *Error.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidInput reports a malformed argument.
func InvalidInput(format string, args ...any) *Error {
	return NewError(CodeInvalidInput, format, args...)
}

// PolicyViolation reports a refused action.
func PolicyViolation(format string, args ...any) *Error {
	return NewError(CodePolicyViolation, format, args...)
}

// NotImplemented reports a capability that does not exist yet.
func NotImplemented(format string, args ...any) *Error {
	return NewError(CodeNotImplemented, format, args...)
}

// AsError converts any error into an *Error, keeping an existing code.
func AsError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, ErrToolNotFound):
		return NewError(CodeUnknownTool, "%v", err)
	case errors.Is(err, ErrMissingRequiredArg), errors.Is(err, ErrInvalidArgType):
		return NewError(CodeInvalidInput, "%v", err)
	default:
		return NewError(CodeExecutionFailed, "%v", err)
	}
}
