package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/reel/internal/logger"
)

type mockChecker struct {
	name  string
	err   error
	delay time.Duration
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func TestManagerRunChecks(t *testing.T) {
	m := NewManager(logger.Discard())
	m.Register(&mockChecker{name: "ok"})
	m.Register(&mockChecker{name: "broken", err: errors.New("connection refused")})

	results := m.RunChecks(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusOK, results["ok"].Status)
	assert.Equal(t, StatusDown, results["broken"].Status)
	assert.Equal(t, "connection refused", results["broken"].Message)
	assert.Equal(t, StatusDown, m.GetOverallStatus())

	stored := m.GetResults()
	stored["ok"].Status = StatusDown
	assert.Equal(t, StatusOK, m.GetResults()["ok"].Status, "results are copies")
}

func TestManagerOverallStatus(t *testing.T) {
	m := NewManager(nil)
	assert.Equal(t, StatusDown, m.GetOverallStatus(), "no results yet")

	m.Register(CheckerFunc{CheckName: "fn", Fn: func(context.Context) error { return nil }})
	m.RunChecks(context.Background())
	assert.Equal(t, StatusOK, m.GetOverallStatus())

	m.mu.Lock()
	m.results["fn"].Status = StatusDegraded
	m.mu.Unlock()
	assert.Equal(t, StatusDegraded, m.GetOverallStatus())
}

func TestManagerCheckTimeout(t *testing.T) {
	m := NewManager(logger.Discard())
	m.timeout = 20 * time.Millisecond
	m.Register(&mockChecker{name: "slow", delay: time.Second})

	results := m.RunChecks(context.Background())
	assert.Equal(t, StatusDown, results["slow"].Status)
	assert.Equal(t, "Health check timed out", results["slow"].Message)
}

func TestStartPeriodicChecks(t *testing.T) {
	m := NewManager(logger.Discard())
	m.Register(&mockChecker{name: "ok"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.StartPeriodicChecks(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return m.GetOverallStatus() == StatusOK
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
