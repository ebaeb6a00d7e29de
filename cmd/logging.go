package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"grimm.is/droplist/internal/config"
	"grimm.is/droplist/internal/logging"
)

// configureLogging installs the default logger described by cfg. When a
// syslog server is configured, output goes to both stderr and syslog. The
// returned closer releases the syslog connection, if any.
func configureLogging(cfg *config.Config) io.Closer {
	name := filepath.Base(os.Args[0])
	logging.SetProcessName(name)

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.LogLevel)
	logCfg.JSON = cfg.LogJSON
	logging.SetDefault(logging.New(logCfg))

	if cfg.SyslogServer == "" {
		return nopCloser{}
	}

	writer, err := logging.NewSyslogWriter(logging.SyslogConfig{Address: cfg.SyslogServer, Tag: name})
	if err != nil {
		logging.Error(fmt.Sprintf("Failed to initialize syslog: %v", err))
		return nopCloser{}
	}

	logCfg.Output = logging.MultiWriter(os.Stderr, writer)
	logging.SetDefault(logging.New(logCfg))
	logging.Info("Logging switched to include syslog", "server", cfg.SyslogServer)
	return writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
