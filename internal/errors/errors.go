package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an error in status API responses.
type ErrorType string

const (
	ErrorTypeNotFound         ErrorType = "NOT_FOUND"
	ErrorTypeMethodNotAllowed ErrorType = "METHOD_NOT_ALLOWED"
	ErrorTypeUnavailable      ErrorType = "UNAVAILABLE"
	ErrorTypeInternal         ErrorType = "INTERNAL_ERROR"
)

// Status is the HTTP status an error of this type answers with.
func (t ErrorType) Status() int {
	switch t {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError is an error that knows its HTTP status and response body.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

func (e *AppError) Error() string {
	msg := string(e.Type) + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails sets the details sent to the client.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCode sets a machine-readable code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// New builds an error answering with the status of errType.
func New(errType ErrorType, format string, args ...interface{}) *AppError {
	return &AppError{
		Type:       errType,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: errType.Status(),
	}
}

// Wrap is New with a cause. The cause is logged, never sent to clients.
func Wrap(err error, errType ErrorType, message string) *AppError {
	appErr := New(errType, "%s", message)
	appErr.Err = err
	return appErr
}

// NewNotFoundError reports that resource does not exist.
func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, "%s not found", resource)
}

// NewUnknownSchemaError lists the schema names the registry does know.
func NewUnknownSchemaError(name string, known []string) *AppError {
	return NewNotFoundError("schema " + name).
		WithCode("UNKNOWN_SCHEMA").
		WithDetails(map[string]interface{}{"known": known})
}

// NewLinkDownError reports that no byte source is open.
func NewLinkDownError(lastErr string) *AppError {
	e := New(ErrorTypeUnavailable, "link is down").WithCode("LINK_DOWN")
	if lastErr != "" {
		e.Details = map[string]interface{}{"last_error": lastErr}
	}
	return e
}

// NewInternalError is a 500 carrying message.
func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, "%s", message)
}

// As finds an AppError anywhere in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
