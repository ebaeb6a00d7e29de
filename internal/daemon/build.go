package daemon

import (
	"fmt"
	"time"

	"grimm.is/droplist/internal/brand"
	"grimm.is/droplist/internal/clock"
	"grimm.is/droplist/internal/config"
	"grimm.is/droplist/internal/firewall"
	"grimm.is/droplist/internal/logging"
	"grimm.is/droplist/internal/metrics"
	"grimm.is/droplist/internal/notification"
	"grimm.is/droplist/internal/ratelimit"
	"grimm.is/droplist/internal/services/threatintel"
)

// NewBackend creates the packet filter backend cfg selects.
func NewBackend(cfg *config.Config) (firewall.Backend, error) {
	spec := firewall.ChainSpec{
		Family:    cfg.Family,
		Table:     cfg.Table,
		BaseChain: cfg.BaseChain,
		Chain:     cfg.Chain,
	}
	backend, err := firewall.NewBackend(cfg.Backend, cfg.NftPath, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to set up %s backend: %w", cfg.Backend, err)
	}
	return backend, nil
}

// Build wires a daemon from configuration using the real feed transport and
// the given packet filter backend.
func Build(cfg *config.Config, backend firewall.Backend, reg *metrics.Registry, logger *logging.Logger) (*Daemon, error) {
	if logger == nil {
		logger = logging.Default()
	}

	action, err := firewall.ParseAction(cfg.Action)
	if err != nil {
		return nil, err
	}

	cache := threatintel.NewCache(cfg.CacheDir)
	fetcher := threatintel.NewFetcher(threatintel.FetcherConfig{
		URL:           cfg.FeedURL,
		CommentPrefix: cfg.CommentPrefix,
		Timeout:       cfg.FetchTimeoutDuration(),
		UserAgent:     brand.UserAgent(brand.Version),
		Retries:       cfg.FetchRetries,
		RetryDelay:    5 * time.Second,
	}, cache, clock.Default, logger.WithComponent("feed"))

	dispatcher := notification.NewDispatcher(cfg.Notify, logger.WithComponent("notification"))
	if reg != nil {
		dispatcher.SetMetrics(reg)
	}

	return New(Deps{
		Cache:    cache,
		Fetcher:  fetcher,
		Limiter:  ratelimit.NewLimiter(cfg.RateLimitInterval(), clock.Default),
		Rules:    firewall.NewApplicator(backend, action, cfg.Counter, logger.WithComponent("firewall")),
		Notifier: dispatcher,
		Metrics:  reg,
		Logger:   logger.WithComponent("daemon"),
		Clock:    clock.Default,
	}), nil
}
