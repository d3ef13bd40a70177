package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// exitError mimics an external process failure that knows its reason.
type exitError struct{ reason string }

func (e *exitError) Error() string         { return "process exited: " + e.reason }
func (e *exitError) FailureReason() string { return e.reason }

func TestPipelineFailures(t *testing.T) {
	cause := errors.New("ffmpeg exited with status 1")

	tests := []struct {
		name       string
		fn         func(error) *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{"demux", NewDemuxFailure, ErrorTypeDemuxFailure, http.StatusUnprocessableEntity},
		{"decode", NewDecodeFailure, ErrorTypeDecodeFailure, http.StatusUnprocessableEntity},
		{"encode", NewEncodeFailure, ErrorTypeEncodeFailure, http.StatusInternalServerError},
		{"mux", NewMuxFailure, ErrorTypeMuxFailure, http.StatusInternalServerError},
		{"upload", NewUploadFailure, ErrorTypeUploadFailure, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(cause)
			assert.Equal(t, tt.wantType, err.Type)
			assert.Equal(t, tt.wantStatus, err.HTTPStatus)
			assert.Empty(t, err.Code)
			assert.ErrorIs(t, err, cause)
			assert.Contains(t, err.Error(), string(tt.wantType))
			assert.Contains(t, err.Error(), cause.Error())

			wrapped := fmt.Errorf("stage failed: %w", err)
			assert.True(t, IsType(wrapped, tt.wantType))
			assert.True(t, IsAppError(wrapped))
			assert.False(t, IsType(wrapped, ErrorTypeValidation))
		})
	}
}

func TestPipelineFailureReasonCode(t *testing.T) {
	cause := fmt.Errorf("decoder: %w", &exitError{reason: "invalid_data"})

	err := NewDecodeFailure(cause)
	assert.Equal(t, "invalid_data", err.Code)

	var target *exitError
	assert.ErrorAs(t, err, &target)
}

func TestGetAppErrorUnwraps(t *testing.T) {
	inner := NewUploadFailure(errors.New("connection reset"))
	appErr, ok := GetAppError(fmt.Errorf("segment 3: %w", inner))

	assert.True(t, ok)
	assert.Same(t, inner, appErr)

	appErr, ok = GetAppError(errors.New("plain"))
	assert.False(t, ok)
	assert.Nil(t, appErr)
	assert.False(t, IsType(errors.New("plain"), ErrorTypeUploadFailure))
}

func TestFirstAppErrorWins(t *testing.T) {
	decode := NewDecodeFailure(errors.New("bad slice"))
	outer := WrapInternalError(decode, "job failed")

	assert.True(t, IsType(outer, ErrorTypeInternal))
	appErr, ok := GetAppError(outer)
	assert.True(t, ok)
	assert.Equal(t, ErrorTypeInternal, appErr.Type)
	assert.ErrorIs(t, outer, decode)
}

func TestAPIErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", NewValidationError(`missing "file" field`), ErrorTypeValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("job"), ErrorTypeNotFound, http.StatusNotFound},
		{"internal", NewInternalError("boom"), ErrorTypeInternal, http.StatusInternalServerError},
		{"conflict", NewConflictError("job is still running"), ErrorTypeConflict, http.StatusConflict},
		{"service down", NewServiceDownError("job"), ErrorTypeServiceDown, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
			assert.Nil(t, tt.err.Unwrap())
		})
	}

	assert.Equal(t, "job not found", NewNotFoundError("job").Message)
	assert.Equal(t, "NOT_FOUND: job not found", NewNotFoundError("job").Error())
}

func TestWithDetails(t *testing.T) {
	details := map[string]interface{}{"segment": 3}
	err := NewUploadFailure(errors.New("reset")).WithDetails(details)
	assert.Equal(t, details, err.Details)
}
