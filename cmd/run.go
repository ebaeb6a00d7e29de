package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/droplist/internal/config"
	"grimm.is/droplist/internal/ctlplane"
	"grimm.is/droplist/internal/daemon"
	"grimm.is/droplist/internal/firewall"
	"grimm.is/droplist/internal/health"
	"grimm.is/droplist/internal/logging"
	"grimm.is/droplist/internal/metrics"
	"grimm.is/droplist/internal/scheduler"
	"grimm.is/droplist/internal/services/threatintel"
)

// RunDaemon runs the blocklist daemon in the foreground until it is told to
// stop. An error is returned only for startup failures; a teardown failure
// is logged and notified by the daemon itself.
func RunDaemon(configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	syslog := configureLogging(cfg)
	defer syslog.Close()

	// Catch signals before the chain exists so a stop during startup still
	// reaches teardown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	backend, err := daemon.NewBackend(cfg)
	if err != nil {
		return err
	}

	logging.Info("Starting droplist", "config", configFile, "feed", cfg.FeedURL,
		"backend", cfg.Backend, "log_level", logging.Default().GetLevel().String())
	return serve(cfg, backend, sigCh)
}

// serve installs the chain, runs the control loop until stop or a signal,
// and tears the chain down.
func serve(cfg *config.Config, backend firewall.Backend, signals <-chan os.Signal) error {
	logger := logging.Default()

	var reg *metrics.Registry
	if cfg.MetricsListen != "" {
		reg = metrics.Get()
		ms, err := metrics.Listen(cfg.MetricsListen, nil, logger.WithComponent("metrics"))
		if err != nil {
			// Metrics are optional; the blocklist still works without them.
			logging.Warn("Failed to start metrics listener", "addr", cfg.MetricsListen, "error", err)
		} else {
			ms.Handle("/healthz", newHealthChecker(cfg).Handler())
			ms.Handle("/livez", health.LivenessHandler())
			go ms.Serve()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				ms.Shutdown(ctx)
			}()
		}
	}

	d, err := daemon.Build(cfg, backend, reg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	select {
	case sig := <-signals:
		logging.Info("Signal received during startup, shutting down", "signal", sig.String())
		d.Shutdown()
		return nil
	default:
	}

	srv, err := ctlplane.Listen(cfg.SocketPath, logger.WithComponent("ctlplane"))
	if err != nil {
		// The chain is already installed; take it down before giving up.
		d.Shutdown()
		return fmt.Errorf("failed to open control socket: %w", err)
	}
	srv.Start()
	defer srv.Close()

	requests := srv.Requests()
	if cfg.UpdateSchedule != "" {
		sched, scheduled, err := newUpdateScheduler(cfg.UpdateSchedule, logger.WithComponent("scheduler"))
		if err != nil {
			d.Shutdown()
			return err
		}
		sched.Start()
		defer sched.Stop()
		requests = mergeRequests(ctx, srv.Requests(), scheduled)
	}

	logging.Info("Waiting for commands...", "socket", cfg.SocketPath)
	d.Run(ctx, requests, signals)

	d.Shutdown()
	return nil
}

// newHealthChecker registers the checks served on /healthz. The feed counts
// as stale once two fetch intervals have passed without a refresh.
func newHealthChecker(cfg *config.Config) *health.Checker {
	interval := cfg.RateLimitInterval()
	if interval == 0 {
		interval = config.DefaultRateLimit * time.Second
	}

	checker := health.NewChecker(nil)
	checker.Register("feed", health.FeedFreshness(threatintel.NewCache(cfg.CacheDir), 2*interval, nil))
	checker.Register("cache_dir", health.DirWritable(cfg.CacheDir))
	if cfg.Backend == config.BackendNetlink {
		checker.Register("nftables", health.CheckNftables)
	}
	return checker
}

// newUpdateScheduler emits an update request on every scheduled tick. A
// tick that the daemon does not take within a minute is dropped.
func newUpdateScheduler(spec string, logger *logging.Logger) (*scheduler.Scheduler, <-chan ctlplane.Request, error) {
	schedule, err := scheduler.Parse(spec)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid update_schedule: %w", err)
	}

	out := make(chan ctlplane.Request)
	sched := scheduler.New(logger, nil)
	err = sched.AddTask(&scheduler.Task{
		ID:       "feed-update",
		Name:     "Scheduled feed update",
		Schedule: schedule,
		Timeout:  time.Minute,
		Func: func(ctx context.Context) error {
			select {
			case out <- ctlplane.NewRequest(ctlplane.CmdUpdate):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return sched, out, nil
}

// mergeRequests forwards requests from every source onto one channel until
// ctx is cancelled.
func mergeRequests(ctx context.Context, sources ...<-chan ctlplane.Request) <-chan ctlplane.Request {
	out := make(chan ctlplane.Request)
	for _, src := range sources {
		go func(src <-chan ctlplane.Request) {
			for {
				select {
				case <-ctx.Done():
					return
				case req, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- req:
					case <-ctx.Done():
						return
					}
				}
			}
		}(src)
	}
	return out
}
