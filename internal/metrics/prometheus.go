package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Label values for result counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Registry holds all daemon metrics.
type Registry struct {
	// Feed metrics
	FetchTotal    *prometheus.CounterVec
	LastFetch     prometheus.Gauge
	Entries       prometheus.Gauge
	RejectedTotal prometheus.Counter

	// Packet filter metrics
	ApplyTotal *prometheus.CounterVec
	Rules      prometheus.Gauge

	// Control metrics
	CommandsTotal *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

// Get returns the global metrics registry, registered with the default
// Prometheus registerer.
func Get() *Registry {
	once.Do(func() {
		registry = New(prometheus.DefaultRegisterer)
	})
	return registry
}

// New creates a registry whose collectors are registered with reg.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	r := &Registry{}

	r.FetchTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "droplist_fetch_total",
		Help: "Feed fetch attempts by result",
	}, []string{"result"})

	r.LastFetch = factory.NewGauge(prometheus.GaugeOpts{
		Name: "droplist_last_fetch_timestamp_seconds",
		Help: "Unix timestamp of the last successful feed fetch",
	})

	r.Entries = factory.NewGauge(prometheus.GaugeOpts{
		Name: "droplist_entries",
		Help: "Number of networks in the processed entry list",
	})

	r.RejectedTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "droplist_rejected_entries_total",
		Help: "Feed tokens skipped because they were not an address or prefix",
	})

	r.ApplyTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "droplist_apply_total",
		Help: "Rule set applications by result",
	}, []string{"result"})

	r.Rules = factory.NewGauge(prometheus.GaugeOpts{
		Name: "droplist_rules",
		Help: "Rules installed in the droplist chain after the last apply",
	})

	r.CommandsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "droplist_commands_total",
		Help: "Control commands processed",
	}, []string{"command"})

	r.Notifications = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "droplist_notifications_total",
		Help: "Operator notifications by channel and result",
	}, []string{"channel", "result"})

	return r
}
