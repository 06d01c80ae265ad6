package structuring

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("no text provided")
	ErrNotConfigured   = errors.New("remote structuring model is not configured")
	ErrNonJSONResponse = errors.New("model returned non-JSON response")
	ErrProvider        = errors.New("model provider error")
	ErrInternal        = errors.New("unexpected structuring error")
)

// Error is returned by the remote extractor. Kind is one of the sentinel
// errors above; Raw holds the model output when Kind is ErrNonJSONResponse
// and must only be surfaced to operators.
type Error struct {
	Kind error
	Raw  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// RawResponse returns the raw model output attached to err, if any.
func RawResponse(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Raw
	}
	return ""
}
