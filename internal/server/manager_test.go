package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestStartAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	m := NewManager(handler, testConfig(), zaptest.NewLogger(t))

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())

	// Shutdown is idempotent.
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestStartTwiceFails(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig(), zaptest.NewLogger(t))
	require.NoError(t, m.Start())
	defer m.Shutdown(context.Background())

	assert.Error(t, m.Start())
}

func TestStartAfterShutdownFails(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig(), zaptest.NewLogger(t))
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	assert.Error(t, m.Start())
}

func TestServesRequests(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	m := NewManager(handler, testConfig(), zaptest.NewLogger(t))
	require.NoError(t, m.Start())
	defer m.Shutdown(context.Background())

	resp, err := http.Get("http://" + m.listener.Addr().String() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
