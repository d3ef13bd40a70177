package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer) Logger {
	l := logrus.New()
	l.SetOutput(buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.JSONFormatter{})
	return FromLogrus(l)
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), jsonLogger(&buf).WithField("test", "value"))

	FromContext(ctx).Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "value", entry["test"])

	assert.NotNil(t, FromContext(context.Background()))
}

func TestContextRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestContextJobID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), jsonLogger(&buf))
	ctx = WithJobID(ctx, "job-42")

	assert.Equal(t, "job-42", GetJobID(ctx))
	assert.Empty(t, GetJobID(context.Background()))

	FromContext(ctx).Info("tagged")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "job-42", entry["job_id"])
}

func TestRequestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer

	var seenID string
	handler := RequestLoggerMiddleware(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		assert.NotNil(t, FromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates request ID", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/jobs", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, seenID)
		assert.Equal(t, seenID, rr.Header().Get("X-Request-ID"))
	})

	t.Run("keeps existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/jobs", nil)
		req.Header.Set("X-Request-ID", "existing-id")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, "existing-id", seenID)
		assert.Equal(t, "existing-id", rr.Header().Get("X-Request-ID"))
	})
}

func TestRemoteIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{
			name:     "X-Forwarded-For",
			headers:  map[string]string{"X-Forwarded-For": "192.168.1.1"},
			expected: "192.168.1.1",
		},
		{
			name:     "X-Real-IP",
			headers:  map[string]string{"X-Real-IP": "192.168.1.2"},
			expected: "192.168.1.2",
		},
		{
			name:     "RemoteAddr fallback",
			headers:  map[string]string{},
			expected: "192.0.2.1:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, remoteIP(req))
		})
	}
}
