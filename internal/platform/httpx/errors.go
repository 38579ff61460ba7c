// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

// Sentinel error classes for the domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrRule         = errors.New("business rule violated")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream service failed")
)

// Error pairs a user-facing message with one of the sentinel classes.
type Error struct {
	Class   error
	Message string
}

// NewError constructs a classified domain error.
func NewError(class error, message string) *Error {
	return &Error{Class: class, Message: message}
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Class }

// FieldErrors reports per-field validation failures.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (f FieldErrors) Unwrap() error { return ErrValidation }

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrValidation), errors.Is(err, ErrRule):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. The
// detail is localized from the request's Accept-Language; unclassified
// errors never leak their text.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	p := Printer(r)
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, p.Sprintf(http.StatusText(status)), p.Sprintf(msgInternal))
		return
	}
	problem := ProblemDetail{
		Title:  p.Sprintf(http.StatusText(status)),
		Status: status,
		Detail: p.Sprintf(detailOf(err)),
	}
	var fields FieldErrors
	if errors.As(err, &fields) {
		problem.Errors = make(map[string]string, len(fields))
		for k, v := range fields {
			problem.Errors[k] = p.Sprintf(v)
		}
	}
	writeProblem(w, problem)
}

func detailOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	var fields FieldErrors
	if errors.As(err, &fields) {
		return ErrValidation.Error()
	}
	for _, class := range []error{ErrNotFound, ErrDuplicate, ErrValidation, ErrRule, ErrForbidden, ErrUnauthorized, ErrUpstream} {
		if errors.Is(err, class) {
			return class.Error()
		}
	}
	return msgInternal
}
