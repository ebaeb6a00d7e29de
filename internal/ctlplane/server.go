package ctlplane

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"grimm.is/droplist/internal/logging"
)

const (
	// maxCommandLength bounds what is read from one connection.
	maxCommandLength = 256
	readTimeout      = 5 * time.Second
	maxAcceptBackoff = time.Second
)

// Server accepts commands on a Unix socket.
type Server struct {
	path     string
	listener net.Listener
	logger   *logging.Logger
	requests chan Request

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Listen binds the control socket at path with mode 0600, replacing a stale
// socket left by a previous run.
func Listen(path string, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.WithComponent("ctl")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove existing socket if present
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		os.Remove(path)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return NewServer(listener, path, logger), nil
}

// NewServer wraps an existing listener. path is removed on Close when set.
func NewServer(listener net.Listener, path string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.WithComponent("ctl")
	}
	return &Server{
		path:     path,
		listener: listener,
		logger:   logger,
		requests: make(chan Request),
		done:     make(chan struct{}),
	}
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Requests returns the channel accepted commands are delivered on. The
// accept loop takes no further connection until the request is marked Done.
func (s *Server) Requests() <-chan Request {
	return s.requests
}

// Start runs the accept loop in the background.
func (s *Server) Start() {
	s.logger.Info("control channel listening", "addr", s.listener.Addr().String())
	s.wg.Add(1)
	go s.acceptLoop()
}

// Close stops accepting, waits for the accept loop and removes the socket.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()
		s.wg.Wait()
		if s.path != "" {
			os.Remove(s.path)
		}
	})
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-s.done:
				return
			default:
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			s.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
				continue
			case <-s.done:
				return
			}
		}
		backoff = 0

		cmd, ok := s.readCommand(conn)
		if !ok {
			continue
		}

		req := newTrackedRequest(cmd)
		select {
		case s.requests <- req:
		case <-s.done:
			return
		}
		select {
		case <-req.done:
		case <-s.done:
			return
		}
	}
}

// readCommand reads one line from conn and closes it.
func (s *Server) readCommand(conn net.Conn) (Command, bool) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	line, err := bufio.NewReader(io.LimitReader(conn, maxCommandLength)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Warn("failed to read command", "error", err)
		return "", false
	}

	cmd, ok := ParseCommand(line)
	if !ok {
		s.logger.Debug("ignoring unrecognized command", "input", line)
		return "", false
	}
	return cmd, true
}
