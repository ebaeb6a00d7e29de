package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/droplist/internal/config"
	"grimm.is/droplist/internal/ctlplane"
	"grimm.is/droplist/internal/firewall"
	"grimm.is/droplist/internal/health"
)

func TestRunDaemon_ConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	assert.Error(t, RunDaemon(filepath.Join(tmpDir, "missing.hcl")))

	configPath := filepath.Join(tmpDir, "bad.hcl")
	require.NoError(t, os.WriteFile(configPath, []byte(`comment_prefix = ";;"`), 0644))
	err := RunDaemon(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestNewHealthChecker(t *testing.T) {
	cfg := config.Default()
	cfg.CacheDir = t.TempDir()
	cfg.Backend = config.BackendNft

	report := newHealthChecker(cfg).Check(context.Background())
	assert.Len(t, report.Checks, 2)
	assert.Equal(t, health.StatusHealthy, report.Checks["cache_dir"].Status)
	assert.Equal(t, health.StatusUnhealthy, report.Checks["feed"].Status, "no feed fetched yet")
}

func TestMergeRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan ctlplane.Request)
	b := make(chan ctlplane.Request)
	merged := mergeRequests(ctx, a, b)

	go func() { a <- ctlplane.NewRequest(ctlplane.CmdStatus) }()
	assert.Equal(t, ctlplane.CmdStatus, (<-merged).Command)

	go func() { b <- ctlplane.NewRequest(ctlplane.CmdUpdate) }()
	assert.Equal(t, ctlplane.CmdUpdate, (<-merged).Command)
}

func serveConfig(t *testing.T) *config.Config {
	t.Helper()
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(";drop list\n192.0.2.0/24\n198.51.100.7\n"))
	}))
	t.Cleanup(feed.Close)

	cfg := config.Default()
	cfg.FeedURL = feed.URL
	cfg.CacheDir = t.TempDir()
	cfg.SocketPath = shortSocketPath(t)
	cfg.FetchRetries = 0
	return cfg
}

func TestServe_SignalDuringStartup(t *testing.T) {
	cfg := serveConfig(t)
	backend := firewall.NewFakeBackend()

	signals := make(chan os.Signal, 1)
	signals <- syscall.SIGTERM

	require.NoError(t, serve(cfg, backend, signals))

	assert.Contains(t, backend.Ops(), "InsertHook")
	assert.Contains(t, backend.Ops(), "DeleteChain")
	chain, hooks := backend.Installed()
	assert.False(t, chain)
	assert.Zero(t, hooks)

	_, err := os.Stat(cfg.SocketPath)
	assert.True(t, os.IsNotExist(err), "control socket should never be opened")
}

func TestServe_StopCommand(t *testing.T) {
	cfg := serveConfig(t)
	backend := firewall.NewFakeBackend()

	errCh := make(chan error, 1)
	go func() { errCh <- serve(cfg, backend, make(chan os.Signal)) }()

	require.Eventually(t, func() bool {
		return ctlplane.Send(cfg.SocketPath, ctlplane.CmdStop) == nil
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after stop")
	}

	chain, hooks := backend.Installed()
	assert.False(t, chain)
	assert.Zero(t, hooks)
}

func TestNewUpdateScheduler(t *testing.T) {
	_, _, err := newUpdateScheduler("whenever", nil)
	assert.Error(t, err)

	sched, scheduled, err := newUpdateScheduler("6h", nil)
	require.NoError(t, err)
	require.NotNil(t, scheduled)

	status := sched.GetStatus()
	require.Len(t, status, 1)
	assert.Equal(t, "feed-update", status[0].ID)
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), status[0].NextRun, time.Minute)
}
