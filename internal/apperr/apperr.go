package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindGeneration Kind = "generation"
	KindStorage    Kind = "storage"
	KindInternal   Kind = "internal"
)

// Error is the typed error carried from services to the HTTP layer.
// Message is safe to show to clients; Err holds the underlying cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(op, message string, fields map[string]string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message, Fields: fields}
}

func NotFound(op, message string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

func Generation(op string, err error) error {
	return &Error{Kind: KindGeneration, Op: op, Message: "generation failed", Err: err}
}

func Storage(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Message: "storage operation failed", Err: err}
}

func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// Field builds a single-field validation error.
func Field(op, field, problem string) error {
	return Validation(op, fmt.Sprintf("invalid %s", field), map[string]string{field: problem})
}

// KindOf reports the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for err. Upstream detail
// is never included for generation, storage or internal failures.
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok {
		return "internal error"
	}
	switch e.Kind {
	case KindValidation, KindNotFound:
		if e.Message != "" {
			return e.Message
		}
		return string(e.Kind)
	case KindGeneration:
		return "content generation is temporarily unavailable"
	case KindStorage:
		return "storage is temporarily unavailable"
	default:
		return "internal error"
	}
}
