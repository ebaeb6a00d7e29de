package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/droplist/internal/ctlplane"
)

// shortSocketPath keeps the path under the unix socket length limit.
func shortSocketPath(t *testing.T) string {
	dir, err := os.MkdirTemp("", "dl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "ctl.sock")
}

func TestRunSend(t *testing.T) {
	path := shortSocketPath(t)
	srv, err := ctlplane.Listen(path, nil)
	require.NoError(t, err)
	srv.Start()
	defer srv.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- RunSend(path, "Force-Update") }()

	select {
	case req := <-srv.Requests():
		assert.Equal(t, ctlplane.CmdForceUpdate, req.Command)
		req.Done()
	case <-time.After(5 * time.Second):
		t.Fatal("command not delivered")
	}
	assert.NoError(t, <-errCh)
}

func TestRunSend_UnknownCommand(t *testing.T) {
	err := RunSend(shortSocketPath(t), "restart")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reload-cache")
}

func TestRunSend_NoDaemon(t *testing.T) {
	assert.Error(t, RunSend(shortSocketPath(t), "update"))
}
