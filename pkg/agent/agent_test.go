package agent

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aundhe1m/backy-agent/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.MetadataPath = filepath.Join(t.TempDir(), "pool-metadata.json")
	cfg.ListenPort = 42151
	cfg.ElevationCommand = ""
	return cfg
}

func TestRunStartsAndStops(t *testing.T) {
	cfg := testConfig(t)
	a := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// The API comes up and serves the open liveness endpoint.
	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get("http://127.0.0.1:" + strconv.Itoa(cfg.ListenPort) + "/live")
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop on cancellation")
	}
}

func TestRunCreatesMetadataFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.ListenPort = 42152
	a := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := a.meta.Load()
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	<-done

	assert.FileExists(t, cfg.MetadataPath)
}
