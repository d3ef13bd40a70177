package errors

import (
	"encoding/json"
	"net/http"

	"github.com/zsiec/reel/internal/logger"
)

// ErrorResponse is the JSON body of every failed API request. TraceID
// echoes the request's X-Request-ID.
type ErrorResponse struct {
	Error   ErrorDetails `json:"error"`
	TraceID string       `json:"trace_id,omitempty"`
}

// ErrorDetails is the client-visible part of an AppError. For a job that
// failed inside the pipeline, Code carries the ffmpeg failure reason and
// Details["cause"] the underlying error text.
type ErrorDetails struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorHandler turns errors returned by the job API into JSON responses
// and logs them.
type ErrorHandler struct {
	logger logger.Logger
}

func NewErrorHandler(log logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ErrorHandler{logger: log}
}

// isPipelineFailure reports whether t is raised by a transcode stage.
func isPipelineFailure(t ErrorType) bool {
	switch t {
	case ErrorTypeDemuxFailure, ErrorTypeDecodeFailure, ErrorTypeEncodeFailure,
		ErrorTypeMuxFailure, ErrorTypeUploadFailure:
		return true
	}
	return false
}

// HandleError writes err as an ErrorResponse. Errors that are not an
// AppError are reported as internal errors without exposing their text.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := GetAppError(err)
	if !ok {
		appErr = WrapInternalError(err, "An unexpected error occurred")
	}
	traceID := r.Header.Get("X-Request-ID")

	entry := h.logger.WithFields(map[string]interface{}{
		"error_type": appErr.Type,
		"error_code": appErr.Code,
		"status":     appErr.HTTPStatus,
		"trace_id":   traceID,
		"method":     r.Method,
		"path":       r.URL.Path,
	})
	switch {
	case appErr.HTTPStatus >= http.StatusInternalServerError:
		entry.Error(appErr.Error())
	case appErr.HTTPStatus >= http.StatusBadRequest:
		entry.Warn(appErr.Error())
	default:
		entry.Info(appErr.Error())
	}

	h.writeJSON(w, appErr.HTTPStatus, ErrorResponse{
		Error: ErrorDetails{
			Type:    appErr.Type,
			Message: appErr.Message,
			Code:    appErr.Code,
			Details: responseDetails(appErr),
		},
		TraceID: traceID,
	})
}

// responseDetails returns the explicit details of appErr. A stage failure
// without any falls back to its cause, which is the ffmpeg or upload error
// a client needs to see.
func responseDetails(appErr *AppError) map[string]interface{} {
	if appErr.Details != nil || appErr.Err == nil || !isPipelineFailure(appErr.Type) {
		return appErr.Details
	}
	return map[string]interface{}{"cause": appErr.Err.Error()}
}

// HandleNotFound answers requests for unknown routes.
func (h *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.HandleError(w, r, NewNotFoundError("endpoint"))
}

// HandleMethodNotAllowed answers, for example, a PUT on /api/v1/jobs.
func (h *ErrorHandler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.HandleError(w, r, New(ErrorTypeValidation, "Method not allowed", http.StatusMethodNotAllowed))
}

// HandlePanic logs a recovered handler panic and answers 500.
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	h.logger.WithFields(map[string]interface{}{
		"panic":    recovered,
		"method":   r.Method,
		"path":     r.URL.Path,
		"trace_id": r.Header.Get("X-Request-ID"),
	}).Error("Panic recovered in HTTP handler")

	h.HandleError(w, r, NewInternalError("An unexpected error occurred"))
}

func (h *ErrorHandler) writeJSON(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode error response")
	}
}

// Middleware recovers panics raised by next.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				h.HandlePanic(w, r, recovered)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
