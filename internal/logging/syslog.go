package logging

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// SyslogConfig describes a remote syslog sink.
type SyslogConfig struct {
	Address  string // host:port, port defaults to 514
	Protocol string // udp or tcp (default: udp)
	Tag      string // default: droplist
	Facility int    // default: 3 (daemon)
}

// SyslogWriter implements io.Writer and forwards each write as one RFC 3164
// message to a remote syslog server.
type SyslogWriter struct {
	mu       sync.Mutex
	conn     net.Conn
	config   SyslogConfig
	hostname string
}

func (c *SyslogConfig) normalize() error {
	if c.Address == "" {
		return fmt.Errorf("syslog address is required")
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		c.Address = net.JoinHostPort(c.Address, "514")
	}
	if c.Protocol == "" {
		c.Protocol = "udp"
	}
	if c.Protocol != "udp" && c.Protocol != "tcp" {
		return fmt.Errorf("unsupported syslog protocol %q", c.Protocol)
	}
	if c.Tag == "" {
		c.Tag = "droplist"
	}
	if c.Facility == 0 {
		c.Facility = 3
	}
	return nil
}

// NewSyslogWriter dials the configured syslog server.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout(cfg.Protocol, cfg.Address, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog server %s: %w", cfg.Address, err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}

	return &SyslogWriter{
		conn:     conn,
		config:   cfg,
		hostname: hostname,
	}, nil
}

// Write implements io.Writer.
// Format: <priority>timestamp hostname tag[pid]: message
func (w *SyslogWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return 0, fmt.Errorf("syslog connection closed")
	}

	// severity 6 (info); the level is already part of the message text
	priority := w.config.Facility*8 + 6
	msg := fmt.Sprintf("<%d>%s %s %s[%d]: %s\n", priority, time.Now().Format(time.Stamp),
		w.hostname, w.config.Tag, os.Getpid(), strings.TrimRight(string(p), "\n"))

	if _, err := w.conn.Write([]byte(msg)); err != nil {
		w.reconnect()
		return 0, err
	}
	return len(p), nil
}

func (w *SyslogWriter) reconnect() {
	if w.conn != nil {
		w.conn.Close()
	}
	conn, err := net.DialTimeout(w.config.Protocol, w.config.Address, 5*time.Second)
	if err != nil {
		w.conn = nil
		return
	}
	w.conn = conn
}

// Close closes the syslog connection.
func (w *SyslogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}

// MultiWriter combines multiple io.Writers (e.g., stderr + syslog).
func MultiWriter(writers ...io.Writer) io.Writer {
	return io.MultiWriter(writers...)
}
