package serrors

import (
	"errors"
	"fmt"
)

// BaseError is a sentinel-friendly error carrying a stable machine code.
// Two BaseErrors match under errors.Is when their codes are equal.
type BaseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	LocaleKey string `json:"locale_key,omitempty"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return e.Message
}

func (e *BaseError) Is(target error) bool {
	var t *BaseError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the outermost BaseError in the chain, or fallback.
func CodeOf(err error, fallback string) string {
	var base *BaseError
	if errors.As(err, &base) {
		return base.Code
	}
	return fallback
}

// ErrValidation marks errors caused by caller input. Services wrap it with
// the concrete reason so callers can map it to a 400.
var ErrValidation = NewError("VALIDATION", "validation failed", "Errors.Validation")

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
