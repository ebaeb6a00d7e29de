// Package daemon runs the droplist control loop: it owns the feed cache, the
// rate limiter and the packet filter chain, and processes one command at a
// time until told to stop.
package daemon

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"grimm.is/droplist/internal/clock"
	"grimm.is/droplist/internal/ctlplane"
	"grimm.is/droplist/internal/errors"
	"grimm.is/droplist/internal/logging"
	"grimm.is/droplist/internal/metrics"
	"grimm.is/droplist/internal/notification"
	"grimm.is/droplist/internal/ratelimit"
	"grimm.is/droplist/internal/services/threatintel"
)

// State is the lifecycle state of the control loop.
type State int

const (
	StateRunning State = iota
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// FeedFetcher downloads the feed into the cache.
type FeedFetcher interface {
	Fetch(ctx context.Context) (*threatintel.Result, error)
}

// FeedCache is the read side of the feed cache.
type FeedCache interface {
	Init() error
	Entries() ([]string, error)
	LastFetch() *time.Time
}

// RuleApplicator installs and removes the daemon chain.
type RuleApplicator interface {
	Apply(entries []string) error
	Teardown() error
	RuleCount() (int, error)
}

// Notifier delivers operator notifications.
type Notifier interface {
	Send(n notification.Notification)
}

// Deps are the collaborators a Daemon drives.
type Deps struct {
	Cache    FeedCache
	Fetcher  FeedFetcher
	Limiter  *ratelimit.Limiter
	Rules    RuleApplicator
	Notifier Notifier
	Metrics  *metrics.Registry
	Logger   *logging.Logger
	Clock    clock.Clock
}

// Daemon serializes every state-changing operation.
type Daemon struct {
	cache    FeedCache
	fetcher  FeedFetcher
	limiter  *ratelimit.Limiter
	rules    RuleApplicator
	notifier Notifier
	metrics  *metrics.Registry
	logger   *logging.Logger
	clock    clock.Clock

	state State
	// lastApplied is nil until the first successful apply.
	lastApplied []string
	tornDown    bool
}

// New creates a daemon from deps.
func New(deps Deps) *Daemon {
	d := &Daemon{
		cache:    deps.Cache,
		fetcher:  deps.Fetcher,
		limiter:  deps.Limiter,
		rules:    deps.Rules,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		clock:    deps.Clock,
		state:    StateRunning,
	}
	if d.logger == nil {
		d.logger = logging.WithComponent("daemon")
	}
	if d.clock == nil {
		d.clock = clock.Default
	}
	if d.limiter == nil {
		d.limiter = ratelimit.NewLimiter(0, d.clock)
	}
	if d.notifier == nil {
		d.notifier = notification.NewDispatcher(nil, d.logger)
	}
	return d
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	return d.state
}

// Start prepares the cache, brings the chain up to date and announces the
// daemon. Only a cache directory failure is returned; feed and rule failures
// are logged and the daemon keeps running with what it has.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cache.Init(); err != nil {
		return err
	}

	id := uuid.New().String()
	log := d.logger.With("update_id", id)

	var entries []string
	if d.limiter.Allow(d.cache.LastFetch()) {
		res, err := d.fetch(ctx, log)
		if err == nil {
			entries = res.Entries
		}
	} else {
		d.countFetch(metrics.ResultSkipped)
		log.Info("feed fetched recently, using cache",
			"next_fetch_in", d.limiter.Remaining(d.cache.LastFetch()).Round(time.Second).String())
	}

	if entries == nil {
		cached, err := d.cache.Entries()
		if err != nil {
			log.Warn("no cached entries, installing empty chain", "error", err)
			cached = []string{}
		}
		entries = cached
	}

	d.apply(id, entries, log)

	count, _ := d.rules.RuleCount()
	d.notifier.Send(notification.Started(count))
	d.logger.Info("daemon started", "rules", count)
	return nil
}

// Handle processes one command and returns the resulting state.
func (d *Daemon) Handle(ctx context.Context, cmd ctlplane.Command) State {
	if d.state == StateStopping {
		return d.state
	}
	if d.metrics != nil {
		d.metrics.CommandsTotal.WithLabelValues(cmd.String()).Inc()
	}

	id := uuid.New().String()
	log := d.logger.With("command", cmd.String(), "update_id", id)
	log.Debug("command received")

	switch cmd {
	case ctlplane.CmdReloadCache:
		entries, err := d.cache.Entries()
		if err != nil {
			log.Error("cannot reload cache", "error", err, "kind", errors.GetKind(err).String())
			return d.state
		}
		d.apply(id, entries, log)

	case ctlplane.CmdForceUpdate:
		d.updateAndApply(ctx, id, log)

	case ctlplane.CmdUpdate:
		last := d.cache.LastFetch()
		if !d.limiter.Allow(last) {
			d.countFetch(metrics.ResultSkipped)
			log.Info("update skipped, rate limit in effect",
				"next_fetch_in", d.limiter.Remaining(last).Round(time.Second).String())
			return d.state
		}
		d.updateAndApply(ctx, id, log)

	case ctlplane.CmdStatus:
		d.logStatus(log)

	case ctlplane.CmdStop:
		log.Info("stop requested")
		d.state = StateStopping

	default:
		log.Debug("ignoring unknown command")
	}

	return d.state
}

// Run processes commands until a stop command or a signal arrives. Signals
// take the same path as a stop command.
func (d *Daemon) Run(ctx context.Context, requests <-chan ctlplane.Request, signals <-chan os.Signal) {
	for d.state == StateRunning {
		select {
		case sig := <-signals:
			d.logger.Info("received signal, shutting down", "signal", sig.String())
			d.Handle(ctx, ctlplane.CmdStop)
		case req, ok := <-requests:
			if !ok {
				d.logger.Warn("control channel closed, shutting down")
				d.Handle(ctx, ctlplane.CmdStop)
				continue
			}
			d.Handle(ctx, req.Command)
			req.Done()
		}
	}
}

// Shutdown removes the chain and announces the stop. It runs at most once;
// a teardown failure is logged and notified but does not block exit.
func (d *Daemon) Shutdown() error {
	if d.tornDown {
		return nil
	}
	d.tornDown = true
	d.state = StateStopping

	if err := d.rules.Teardown(); err != nil {
		d.logger.Error("could not remove chain", "error", err, "kind", errors.GetKind(err).String())
		d.notifier.Send(notification.TeardownFailed(err))
		return err
	}

	d.notifier.Send(notification.Stopped())
	d.logger.Info("daemon stopped")
	return nil
}

func (d *Daemon) updateAndApply(ctx context.Context, id string, log *logging.Logger) {
	res, err := d.fetch(ctx, log)
	if err != nil {
		return
	}
	d.apply(id, res.Entries, log)
}

func (d *Daemon) fetch(ctx context.Context, log *logging.Logger) (*threatintel.Result, error) {
	res, err := d.fetcher.Fetch(ctx)
	if err != nil {
		d.countFetch(metrics.ResultFailure)
		log.Error("feed fetch failed, keeping current rules", "error", err, "kind", errors.GetKind(err).String())
		return nil, err
	}

	d.countFetch(metrics.ResultSuccess)
	if d.metrics != nil {
		d.metrics.LastFetch.Set(float64(res.FetchedAt.Unix()))
		d.metrics.Entries.Set(float64(len(res.Entries)))
		d.metrics.RejectedTotal.Add(float64(len(res.Rejected)))
	}
	return res, nil
}

func (d *Daemon) apply(id string, entries []string, log *logging.Logger) {
	if err := d.rules.Apply(entries); err != nil {
		d.countApply(metrics.ResultFailure)
		log.Error("rule update failed", "error", err, "kind", errors.GetKind(err).String())
		d.notifier.Send(notification.ApplyFailed(id, err))
		return
	}

	d.countApply(metrics.ResultSuccess)
	if d.metrics != nil {
		d.metrics.Rules.Set(float64(len(entries)))
	}
	log.Info("rules updated", "count", len(entries))
	d.notifier.Send(notification.RulesUpdated(id, entries, d.lastApplied))

	d.lastApplied = make([]string, len(entries))
	copy(d.lastApplied, entries)
}

func (d *Daemon) logStatus(log *logging.Logger) {
	args := []any{"state", d.state.String()}

	if last := d.cache.LastFetch(); last != nil {
		args = append(args,
			"last_fetch", last.UTC().Format(time.RFC3339),
			"next_fetch_in", d.limiter.Remaining(last).Round(time.Second).String())
	} else {
		args = append(args, "last_fetch", "never")
	}

	if entries, err := d.cache.Entries(); err == nil {
		args = append(args, "cached_entries", len(entries))
	}
	if count, err := d.rules.RuleCount(); err == nil {
		args = append(args, "rules", count)
	} else {
		args = append(args, "rules_error", err.Error())
	}

	log.Info("status", args...)
}

func (d *Daemon) countFetch(result string) {
	if d.metrics != nil {
		d.metrics.FetchTotal.WithLabelValues(result).Inc()
	}
}

func (d *Daemon) countApply(result string) {
	if d.metrics != nil {
		d.metrics.ApplyTotal.WithLabelValues(result).Inc()
	}
}
