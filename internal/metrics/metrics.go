package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveChannels prometheus.Gauge
	Subscribers    prometheus.Gauge

	PositionsPublished prometheus.Counter
	PositionsDropped   prometheus.Counter
	FanoutMessages     prometheus.Counter

	ProviderCalls    *prometheus.CounterVec // result label: ok|error
	ProviderDuration prometheus.Histogram
	ThrottleSkips    prometheus.Counter
	CacheHits        prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buswatch_active_channels",
			Help: "Number of live tracking channels.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buswatch_subscribers",
			Help: "Number of active channel subscriptions.",
		}),
		PositionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buswatch_positions_published_total",
			Help: "Total accepted position reports.",
		}),
		PositionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buswatch_positions_dropped_total",
			Help: "Total stale position reports dropped.",
		}),
		FanoutMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buswatch_fanout_messages_total",
			Help: "Total messages delivered to subscribers.",
		}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buswatch_provider_calls_total",
			Help: "Total routing provider calls.",
		}, []string{"result"}),
		ProviderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "buswatch_provider_call_duration_seconds",
			Help:    "Duration of routing provider calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ThrottleSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buswatch_eta_throttle_skips_total",
			Help: "Total ETA refreshes skipped by the throttle window.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buswatch_eta_cache_hits_total",
			Help: "Total ETA snapshots served from cache.",
		}),
	}

	reg.MustRegister(
		c.ActiveChannels, c.Subscribers,
		c.PositionsPublished, c.PositionsDropped, c.FanoutMessages,
		c.ProviderCalls, c.ProviderDuration, c.ThrottleSkips, c.CacheHits,
	)

	return c
}

// Serve exposes /metrics on addr and returns the server so the caller can
// shut it down.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
