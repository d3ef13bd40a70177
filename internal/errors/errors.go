// Package errors defines the error taxonomy shared by the transcode
// pipeline, the job manager and the API server.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeInternal    ErrorType = "INTERNAL_ERROR"
	ErrorTypeConflict    ErrorType = "CONFLICT"
	ErrorTypeServiceDown ErrorType = "SERVICE_DOWN"

	// Pipeline failures. A job that fails carries one of these.
	ErrorTypeDemuxFailure  ErrorType = "DEMUX_FAILURE"
	ErrorTypeDecodeFailure ErrorType = "DECODE_FAILURE"
	ErrorTypeEncodeFailure ErrorType = "ENCODE_FAILURE"
	ErrorTypeMuxFailure    ErrorType = "MUX_FAILURE"
	ErrorTypeUploadFailure ErrorType = "UPLOAD_FAILURE"
)

// AppError represents an application error with additional context.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError.
func New(errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error.
func Wrap(err error, errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message, http.StatusInternalServerError)
}

func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message, http.StatusInternalServerError)
}

func NewConflictError(message string) *AppError {
	return New(ErrorTypeConflict, message, http.StatusConflict)
}

// NewServiceDownError reports that service is not accepting work.
func NewServiceDownError(service string) *AppError {
	return New(ErrorTypeServiceDown, fmt.Sprintf("%s service is currently unavailable", service), http.StatusServiceUnavailable)
}

// reasoner is implemented by errors that know why an external process
// failed, such as ffmpeg exits classified from stderr.
type reasoner interface {
	FailureReason() string
}

// stageFailure wraps err as a pipeline failure. The Code is taken from the
// first reasoner in err's chain.
func stageFailure(err error, errType ErrorType, message string, httpStatus int) *AppError {
	appErr := Wrap(err, errType, message, httpStatus)
	var r reasoner
	if stderrors.As(err, &r) {
		appErr.Code = r.FailureReason()
	}
	return appErr
}

// NewDemuxFailure wraps an error raised while reading the input container.
func NewDemuxFailure(err error) *AppError {
	return stageFailure(err, ErrorTypeDemuxFailure, "failed to demux input", http.StatusUnprocessableEntity)
}

// NewDecodeFailure wraps an error raised by the video decoder.
func NewDecodeFailure(err error) *AppError {
	return stageFailure(err, ErrorTypeDecodeFailure, "video decode failed", http.StatusUnprocessableEntity)
}

// NewEncodeFailure wraps an error raised by the video encoder.
func NewEncodeFailure(err error) *AppError {
	return stageFailure(err, ErrorTypeEncodeFailure, "video encode failed", http.StatusInternalServerError)
}

// NewMuxFailure wraps an error raised by the output container writer.
func NewMuxFailure(err error) *AppError {
	return stageFailure(err, ErrorTypeMuxFailure, "failed to write output container", http.StatusInternalServerError)
}

// NewUploadFailure wraps an error returned by the upload service.
func NewUploadFailure(err error) *AppError {
	return stageFailure(err, ErrorTypeUploadFailure, "upload failed", http.StatusBadGateway)
}

// IsAppError checks if an error is, or wraps, an AppError.
func IsAppError(err error) bool {
	_, ok := GetAppError(err)
	return ok
}

// GetAppError extracts the first AppError in err's chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err's chain holds an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Type == errType
}
