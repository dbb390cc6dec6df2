package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/aatumaykin/jobspool/internal/logger"
	"github.com/aatumaykin/jobspool/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_NotFoundEverywhere(t *testing.T) {
	s := New(Config{Hostname: "127.0.0.1", Port: 0}, logger.Nop(), nil)
	h := s.Handler()

	for _, path := range []string{"/", "/jobs", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, NotFoundBody, rec.Body.String(), path)
	}
}

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New("jobspool", reg)
	m.RecordCycle()

	s := New(Config{Metrics: true}, logger.Nop(), reg)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jobspool_scheduler_cycles_total 1")
}

func TestConfig_Addr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:3000", Config{Hostname: "0.0.0.0", Port: 3000}.Addr())
	assert.Equal(t, "[::1]:8080", Config{Hostname: "::1", Port: 8080}.Addr())
}

func TestServer_StartShutdown(t *testing.T) {
	s := New(Config{Hostname: "127.0.0.1", Port: 0}, logger.Nop(), nil)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start fails")

	resp, err := http.Get("http://" + s.Addr() + "/anything")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, NotFoundBody, string(body))

	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, s.Shutdown(ctx), "shutdown is idempotent")
}

func TestServer_StartBindError(t *testing.T) {
	first := New(Config{Hostname: "127.0.0.1", Port: 0}, logger.Nop(), nil)
	require.NoError(t, first.Start(context.Background()))
	defer first.Shutdown(context.Background())

	_, portStr, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	second := New(Config{Hostname: "127.0.0.1", Port: port}, logger.Nop(), nil)
	assert.Error(t, second.Start(context.Background()))
}
