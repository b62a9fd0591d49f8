package core

import (
	"errors"
	"fmt"
)

// Error is a structured error carrying a machine-readable code and
// contextual details alongside the wrapped cause.
type Error struct {
	Err     error
	Code    string
	Details map[string]any
}

func NewError(err error, code string, details map[string]any) *Error {
	return &Error{Err: err, Code: code, Details: details}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the nearest *Error in err's chain, or "".
func CodeOf(err error) string {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return ""
}

// DetailsOf returns the details of the nearest *Error in err's chain.
func DetailsOf(err error) map[string]any {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Details
	}
	return nil
}
