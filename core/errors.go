package core

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrDeadlinePassed = errors.New("Die Abgabefrist ist abgelaufen.")
	ErrForbidden      = errors.New("permission denied")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldValidationError reports a single invalid field, using msg as both the error and the field message.
func NewFieldValidationError(field, msg string) error {
	return &ValidationError{Err: errors.New(msg), Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// IncompleteSubmissionError lists every missing required field of a submission.
type IncompleteSubmissionError struct {
	Missing []string
}

func (err IncompleteSubmissionError) Error() string {
	return "Steckbrief unvollständig: " + strings.Join(err.Missing, " ")
}

type NotFoundError struct {
	Resource string
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

func (err NotFoundError) Error() string {
	return err.Resource + " not found"
}

// ConflictError reports a uniqueness violation on Field.
type ConflictError struct {
	Field   string
	Message string
}

func NewConflictError(field, msg string) error {
	return &ConflictError{Field: field, Message: msg}
}

func (err ConflictError) Error() string {
	return err.Message
}

// StateError is returned when an action is not valid in the current state of a resource.
type StateError struct {
	Message string
}

func NewStateError(msg string) error {
	return &StateError{Message: msg}
}

func (err StateError) Error() string {
	return err.Message
}

// MethodNotAllowedError is returned by operations a resource never supports.
type MethodNotAllowedError struct {
	Message string
}

func NewMethodNotAllowedError(msg string) error {
	return &MethodNotAllowedError{Message: msg}
}

func (err MethodNotAllowedError) Error() string {
	return err.Message
}

// IsNotFound reports whether the cause of err is a *NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
