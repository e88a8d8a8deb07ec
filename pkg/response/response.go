package response

import (
	"errors"
)

// Error is a domain error carrying the HTTP status it maps to and the
// error kind reported to bridge callers.
type Error struct {
	Code int
	Kind string
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Is(target error) bool {
	var t *Error
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Kind == t.Kind && e.Err.Error() == t.Err.Error()
}

func NewError(code int, err string) error {
	return &Error{Code: code, Err: errors.New(err)}
}

func NewKindError(code int, kind string, err string) error {
	return &Error{Code: code, Kind: kind, Err: errors.New(err)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) string {
	var respErr *Error
	if errors.As(err, &respErr) {
		return respErr.Kind
	}
	return ""
}

// CodeOf returns the status code of the first *Error in err's chain, or
// fallback when there is none.
func CodeOf(err error, fallback int) int {
	var respErr *Error
	if errors.As(err, &respErr) {
		return respErr.Code
	}
	return fallback
}
