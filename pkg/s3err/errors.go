package s3err

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error by how the caller is expected to react to it.
type Kind int

const (
	// KindInternal is an unrecoverable failure such as storage I/O.
	KindInternal Kind = iota
	// KindValidation is malformed caller input.
	KindValidation
	// KindNotFound is a missing bucket, key, upload or part.
	KindNotFound
	// KindConflict is a request that conflicts with current state.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status returns the default HTTP status for errors of this kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is an S3 error carrying a stable AWS error code.
type Error struct {
	Kind    Kind
	Code    string
	Message string

	// Status overrides the kind's default HTTP status when non-zero.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, s3err.ErrNoSuchUpload) matches any NoSuchUpload error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus returns the status the boundary should answer with.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.Kind.Status()
}

// WithMessage returns a copy of e with a different message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

// Internal wraps cause as an InternalError.
func Internal(cause error) *Error {
	return ErrInternal.Wrap(cause)
}

// Internalf formats a message and wraps it as an InternalError.
func Internalf(format string, args ...any) *Error {
	return Internal(fmt.Errorf(format, args...))
}

// As extracts the *Error from err. Errors that are not S3 errors are
// reported as InternalError wrapping the original.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err is an S3 error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
