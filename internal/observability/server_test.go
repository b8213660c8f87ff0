// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/adminauth/pkg/errutil"
)

// startServer starts s and stops it when the test ends.
func startServer(t *testing.T, s *Server) <-chan error {
	t.Helper()
	errCh, err := s.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	require.NotEmpty(t, s.Addr())
	return errCh
}

func get(t *testing.T, s *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + s.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := NewServer("127.0.0.1:0", func(context.Context) error { return nil })
	startServer(t, server)

	server.Metrics().RequestsTotal.WithLabelValues("/forgotpassword", "POST", "200").Inc()
	server.Metrics().RequestsTotal.WithLabelValues("/forgotpassword", "POST", "200").Inc()
	server.Metrics().RequestsTotal.WithLabelValues("/resetpassword/{token}", "POST", "410").Inc()
	server.Metrics().RequestDuration.WithLabelValues("/admins", "GET").Observe(0.01)

	status, body := get(t, server, "/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "# TYPE")
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, `adminauth_http_requests_total{method="POST",route="/forgotpassword",status="200"} 2`)
	assert.Contains(t, body, `adminauth_http_requests_total{method="POST",route="/resetpassword/{token}",status="410"} 1`)
	assert.Contains(t, body, "adminauth_http_request_duration_seconds_bucket")
}

func TestServer_HealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		checker    ReadinessChecker
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "liveness ignores readiness",
			checker:    func(context.Context) error { return errors.New("database unreachable") },
			path:       "/healthz/liveness",
			wantStatus: http.StatusOK,
			wantBody:   "ok\n",
		},
		{
			name:       "ready database",
			checker:    func(context.Context) error { return nil },
			path:       "/healthz/readiness",
			wantStatus: http.StatusOK,
			wantBody:   "ok\n",
		},
		{
			name:       "unreachable database",
			checker:    func(context.Context) error { return errors.New("database unreachable") },
			path:       "/healthz/readiness",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not ready\n",
		},
		{
			name:       "no checker means ready",
			path:       "/healthz/readiness",
			wantStatus: http.StatusOK,
			wantBody:   "ok\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer("127.0.0.1:0", tt.checker)
			startServer(t, server)

			status, body := get(t, server, tt.path)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestServer_ReadinessCheckerIsBounded(t *testing.T) {
	var deadline time.Time
	server := NewServer("127.0.0.1:0", func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	})
	startServer(t, server)

	status, _ := get(t, server, "/healthz/readiness")
	require.Equal(t, http.StatusOK, status)
	assert.WithinDuration(t, time.Now().Add(readinessTimeout), deadline, readinessTimeout)
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	startServer(t, server)

	_, err := server.Start()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_RUNNING")
}

func TestServer_ListenFailureAllowsRetry(t *testing.T) {
	taken := NewServer("127.0.0.1:0", nil)
	startServer(t, taken)

	server := NewServer(taken.Addr(), nil)
	_, err := server.Start()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_LISTEN_FAILED")
	errutil.AssertErrorContext(t, err, "addr", taken.Addr())
	assert.Empty(t, server.Addr())
	assert.False(t, server.running.Load())
}

func TestServer_StopIsIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	ctx := context.Background()

	assert.NoError(t, server.Stop(ctx), "stop before start")
	_, err := server.Start()
	require.NoError(t, err)
	assert.NoError(t, server.Stop(ctx))
	assert.NoError(t, server.Stop(ctx), "second stop")
}

func TestServer_ErrorChannel(t *testing.T) {
	t.Run("reports serve failures", func(t *testing.T) {
		server := NewServer("127.0.0.1:0", nil)
		errCh := startServer(t, server)

		require.NoError(t, server.listener.Close())

		select {
		case err, ok := <-errCh:
			require.True(t, ok, "channel closed without an error")
			errutil.AssertErrorCode(t, err, "OBSERVABILITY_SERVE_FAILED")
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for serve error")
		}
	})

	t.Run("closes on shutdown", func(t *testing.T) {
		server := NewServer("127.0.0.1:0", nil)
		errCh, err := server.Start()
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, server.Stop(ctx))

		select {
		case err, ok := <-errCh:
			assert.False(t, ok && err != nil, "unexpected error after clean shutdown: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for error channel to close")
		}
	})
}

func TestServer_ExtraCollectorsAreExposed(t *testing.T) {
	purged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adminauth_test_tokens_purged_total",
		Help: "test counter",
	})
	server := NewServer("127.0.0.1:0", nil, purged)
	purged.Add(3)
	startServer(t, server)

	_, body := get(t, server, "/metrics")
	assert.Contains(t, body, "adminauth_test_tokens_purged_total 3")
	assert.Same(t, server.Registry(), server.registry)
}
