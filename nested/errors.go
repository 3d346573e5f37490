package nested

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes.
const (
	CodeNotFound        = "not-found"
	CodeUnexpectedValue = "unexpected-value"
	CodeServerError     = "server-error"
)

// Sentinels matched by errors.Is against an *Error of the same code.
var (
	ErrNotFound        = &Error{Status: http.StatusNotFound, Code: CodeNotFound, Title: "Resource not found."}
	ErrUnexpectedValue = &Error{Status: http.StatusBadRequest, Code: CodeUnexpectedValue, Title: "Unexpected Value."}
	ErrServer          = &Error{Status: http.StatusInternalServerError, Code: CodeServerError, Title: "Server Error occurred"}
)

// ErrParentMissing reports a parent row that vanished inside its own transaction.
var ErrParentMissing = errors.New("nested: parent row not found after write")

// Source locates the part of the request an error refers to.
type Source struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// Error is the structured error returned for association writes.
// An aggregate carries every per-item failure in Errors, in payload order.
type Error struct {
	Status int      `json:"status"`
	Code   string   `json:"code"`
	Title  string   `json:"title"`
	Detail string   `json:"detail,omitempty"`
	Source *Source  `json:"source,omitempty"`
	Errors []*Error `json:"errors,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if len(e.Errors) > 0 {
		msgs := make([]string, len(e.Errors))
		for i, sub := range e.Errors {
			msgs[i] = sub.Error()
		}
		return fmt.Sprintf("nested: %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
	}

	var sb strings.Builder
	sb.WriteString("nested: ")
	sb.WriteString(e.Code)
	sb.WriteString(": ")
	sb.WriteString(e.Title)
	if e.Detail != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Detail)
	}
	if e.Source != nil && e.Source.Pointer != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Source.Pointer)
		sb.WriteString(")")
	}
	return sb.String()
}

// Is matches errors of the same code, so errors.Is(err, ErrNotFound) holds
// for any not-found error, aggregated or not.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if len(e.Errors) > 0 {
		return false
	}
	return t.Code == e.Code
}

// Unwrap exposes the aggregated errors and the underlying cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, len(e.Errors)+1)
	for _, sub := range e.Errors {
		out = append(out, sub)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// NewNotFound reports an attach directive whose related row does not exist.
func NewNotFound(detail, pointer string) *Error {
	return &Error{
		Status: http.StatusNotFound,
		Code:   CodeNotFound,
		Title:  ErrNotFound.Title,
		Detail: detail,
		Source: pointerSource(pointer),
	}
}

// NewUnexpectedValue reports a payload or predicate of the wrong shape.
func NewUnexpectedValue(detail, pointer string) *Error {
	return &Error{
		Status: http.StatusBadRequest,
		Code:   CodeUnexpectedValue,
		Title:  ErrUnexpectedValue.Title,
		Detail: detail,
		Source: pointerSource(pointer),
	}
}

// NewServerError reports a broken invariant.
func NewServerError(detail string, cause error) *Error {
	return &Error{
		Status: http.StatusInternalServerError,
		Code:   CodeServerError,
		Title:  ErrServer.Title,
		Detail: detail,
		cause:  cause,
	}
}

func pointerSource(pointer string) *Source {
	if pointer == "" {
		return nil
	}
	return &Source{Pointer: pointer}
}

// Join aggregates errs. It returns nil when errs is empty and the error
// itself when there is exactly one.
func Join(errs ...*Error) error {
	var flat []*Error
	for _, e := range errs {
		if e == nil {
			continue
		}
		if len(e.Errors) > 0 {
			flat = append(flat, e.Errors...)
			continue
		}
		flat = append(flat, e)
	}

	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}

	status := flat[0].Status
	for _, e := range flat[1:] {
		if e.Status != status {
			status = http.StatusBadRequest
			break
		}
	}
	return &Error{
		Status: status,
		Code:   flat[0].Code,
		Title:  flat[0].Title,
		Errors: flat,
	}
}

// Errors flattens err into its per-item errors.
func Errors(err error) []*Error {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	if len(e.Errors) > 0 {
		return e.Errors
	}
	return []*Error{e}
}

// pointer builds a JSON pointer from path segments.
func pointer(segments ...any) string {
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteByte('/')
		fmt.Fprint(&sb, s)
	}
	return sb.String()
}
