package cli

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type joiner struct {
	failures int
	calls    int
	hosts    []string
}

func (j *joiner) Join(hosts []string) error {
	j.calls++
	j.hosts = hosts
	if j.calls <= j.failures {
		return errors.New("connection refused")
	}
	return nil
}

type status string

func (s status) Health() string { return string(s) }

func withZeroBackOff(t *testing.T) {
	old := newBackOff
	newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	t.Cleanup(func() { newBackOff = old })
}

func TestJoinCluster(t *testing.T) {
	withZeroBackOff(t)
	t.Run("no peers", func(t *testing.T) {
		j := &joiner{}
		require.NoError(t, JoinCluster(j, nil, zap.NewNop()))
		assert.Equal(t, 0, j.calls)
	})
	t.Run("retries", func(t *testing.T) {
		j := &joiner{failures: 2}
		require.NoError(t, JoinCluster(j, []string{"10.0.0.1:3500"}, zap.NewNop()))
		assert.Equal(t, 3, j.calls)
		assert.Equal(t, []string{"10.0.0.1:3500"}, j.hosts)
	})
	t.Run("gives up", func(t *testing.T) {
		j := &joiner{failures: 10}
		require.Error(t, JoinCluster(j, []string{"10.0.0.1:3500"}, zap.NewNop()))
		assert.Equal(t, maxJoinAttempts, j.calls)
	})
}

func TestHealthHandler(t *testing.T) {
	for _, tc := range []struct {
		name     string
		checkers []healthChecker
		code     int
	}{
		{name: "ok", checkers: []healthChecker{status("ok"), status("ok")}, code: http.StatusOK},
		{name: "warning", checkers: []healthChecker{status("ok"), status("warning")}, code: http.StatusTooManyRequests},
		{name: "critical", checkers: []healthChecker{status("critical"), status("warning")}, code: http.StatusInternalServerError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthHandler(tc.checkers...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}
