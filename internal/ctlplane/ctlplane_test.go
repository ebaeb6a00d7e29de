package ctlplane

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
		ok    bool
	}{
		{"update", CmdUpdate, true},
		{"UPDATE\n", CmdUpdate, true},
		{"  Force-Update \r\n", CmdForceUpdate, true},
		{"reload-cache", CmdReloadCache, true},
		{"stop", CmdStop, true},
		{"status", CmdStatus, true},
		{"restart", "", false},
		{"", "", false},
		{"update now", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCommand(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv, err := Listen(path, nil)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(func() { srv.Close() })
	return srv, path
}

func receive(t *testing.T, srv *Server) Command {
	t.Helper()
	select {
	case req := <-srv.Requests():
		req.Done()
		return req.Command
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
		return ""
	}
}

func TestServer_RoundTrip(t *testing.T) {
	srv, path := startServer(t)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())

	require.NoError(t, Send(path, CmdUpdate))
	assert.Equal(t, CmdUpdate, receive(t, srv))

	require.NoError(t, Send(path, CmdStop))
	assert.Equal(t, CmdStop, receive(t, srv))
}

func TestServer_IgnoresUnknown(t *testing.T) {
	srv, path := startServer(t)

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	conn.Write([]byte("make-coffee\n"))
	conn.Close()

	require.NoError(t, Send(path, "Reload-Cache"))
	assert.Equal(t, CmdReloadCache, receive(t, srv))
}

func TestServer_NoTrailingNewline(t *testing.T) {
	srv, path := startServer(t)

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	conn.Write([]byte("force-update"))
	conn.Close()

	assert.Equal(t, CmdForceUpdate, receive(t, srv))
}

func TestServer_SerializesCommands(t *testing.T) {
	srv, path := startServer(t)

	// The first command is accepted but not yet received, so the second
	// connection waits in the backlog until the first is done.
	require.NoError(t, Send(path, CmdUpdate))
	require.NoError(t, Send(path, CmdStatus))

	assert.Equal(t, CmdUpdate, receive(t, srv))
	assert.Equal(t, CmdStatus, receive(t, srv))
}

func TestServer_WaitsForDone(t *testing.T) {
	srv, path := startServer(t)

	require.NoError(t, Send(path, CmdUpdate))
	var first Request
	select {
	case first = <-srv.Requests():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
	}
	assert.Equal(t, CmdUpdate, first.Command)

	require.NoError(t, Send(path, CmdStatus))
	select {
	case req := <-srv.Requests():
		t.Fatalf("%s delivered before %s was done", req.Command, first.Command)
	case <-time.After(100 * time.Millisecond):
	}

	first.Done()
	first.Done()
	assert.Equal(t, CmdStatus, receive(t, srv))
}

func TestNewRequest_DoneIsNoop(t *testing.T) {
	req := NewRequest(CmdUpdate)
	assert.NotPanics(t, req.Done)
}

func TestServer_ReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")

	first, err := Listen(path, nil)
	require.NoError(t, err)
	// simulate a crash: listener gone but socket file left behind
	first.listener.(*net.UnixListener).SetUnlinkOnClose(false)
	first.listener.Close()

	second, err := Listen(path, nil)
	require.NoError(t, err)
	second.Start()
	defer second.Close()

	require.NoError(t, Send(path, CmdStatus))
	assert.Equal(t, CmdStatus, receive(t, second))
}

func TestServer_CloseRemovesSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv, err := Listen(path, nil)
	require.NoError(t, err)
	srv.Start()

	require.NoError(t, srv.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, Send(path, CmdStop))
}

func TestSend_NoDaemon(t *testing.T) {
	err := Send(filepath.Join(t.TempDir(), "missing.sock"), CmdUpdate)
	assert.Error(t, err)
}
