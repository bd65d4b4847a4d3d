package tracking

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"time"
)

// Engine computes, caches, and rate-limits cumulative per-stop ETAs.
// The external provider call is the only blocking operation in the system.
type Engine struct {
	provider RouteProvider
	cache    ETACache
	logger   *slog.Logger
	metrics  Metrics
	throttle time.Duration
	timeout  time.Duration
	now      func() time.Time
}

type EngineOptions struct {
	ThrottleWindow  time.Duration
	ProviderTimeout time.Duration
}

func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		ThrottleWindow:  20 * time.Second,
		ProviderTimeout: 5 * time.Second,
	}
}

func NewEngine(provider RouteProvider, cache ETACache, logger *slog.Logger, metrics Metrics, options ...EngineOptions) *Engine {
	opts := DefaultEngineOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	return &Engine{
		provider: provider,
		cache:    cache,
		logger:   logger,
		metrics:  metrics,
		throttle: opts.ThrottleWindow,
		timeout:  opts.ProviderTimeout,
		now:      time.Now,
	}
}

// RequestRefresh recomputes the channel's ETA snapshot for the given
// position. Calls inside the throttle window, or while another refresh for
// the channel is in flight, are skipped outright: the last snapshot keeps
// being served, and the provider is never hit faster than the window allows.
func (e *Engine) RequestRefresh(ctx context.Context, ch *Channel, pos Position) {
	start, ok := ch.beginRefresh(e.now(), e.throttle)
	if !ok {
		if e.metrics != nil {
			e.metrics.ThrottleSkipped()
		}
		return
	}

	waypoints := ch.Waypoints()
	key := cacheKey(ch.ID, pos, waypoints)

	cached, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("eta cache lookup failed", "channelID", ch.ID, "error", err)
	}
	if cached != nil {
		if e.metrics != nil {
			e.metrics.CacheHit()
		}
		e.finish(ch, start, cached)
		return
	}

	etas, fromProvider := e.compute(ctx, ch.ID, pos, waypoints)
	if fromProvider {
		if err := e.cache.Set(ctx, key, etas); err != nil {
			e.logger.Warn("eta cache store failed", "channelID", ch.ID, "error", err)
		}
	}
	e.finish(ch, start, etas)
}

// compute calls the routing provider and folds its legs into cumulative
// records. Any failure degrades to null records rather than an error: a
// broken provider still advances the throttle clock, so it is never retried
// faster than the window. The second return value reports whether the result
// is worth caching.
func (e *Engine) compute(ctx context.Context, channelID string, pos Position, waypoints []Waypoint) ([]ETARecord, bool) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	callStart := time.Now()
	legs, err := e.provider.Legs(callCtx, pos, waypoints)
	if e.metrics != nil {
		e.metrics.ProviderCallObserved(time.Since(callStart), err == nil)
	}
	if err != nil {
		e.logger.Warn("routing provider call failed", "channelID", channelID, "error", err)
		return nullSnapshot(waypoints), false
	}
	if len(legs) != len(waypoints) {
		e.logger.Error("provider returned misaligned legs",
			"channelID", channelID, "legs", len(legs), "waypoints", len(waypoints))
		return nullSnapshot(waypoints), false
	}

	etas, ok := accumulate(waypoints, legs)
	if !ok {
		e.logger.Error("provider returned non-monotonic legs, rejecting snapshot", "channelID", channelID)
		return nullSnapshot(waypoints), false
	}
	return etas, true
}

func (e *Engine) finish(ch *Channel, start time.Time, etas []ETARecord) {
	fanout, ok := ch.completeRefresh(start, e.now(), etas)
	if !ok {
		e.logger.Debug("stale eta completion dropped", "channelID", ch.ID)
		return
	}
	if e.metrics != nil {
		e.metrics.FanoutSent(fanout)
	}
}

// accumulate sums leg durations forward so record i carries the cumulative
// travel time to waypoint i. A leg without a usable result nulls its
// waypoint and every later one, since their cumulative totals are unknown.
// A negative leg duration means a provider bug and rejects the whole pass.
func accumulate(waypoints []Waypoint, legs []Leg) ([]ETARecord, bool) {
	etas := make([]ETARecord, len(waypoints))
	var total int64
	broken := false
	for i, leg := range legs {
		if !leg.OK {
			broken = true
		}
		if !broken && leg.DurationSeconds < 0 {
			return nil, false
		}
		if broken {
			etas[i] = ETARecord{WaypointID: waypoints[i].ID}
			continue
		}
		total += leg.DurationSeconds
		duration := total
		label := leg.DistanceLabel
		etas[i] = ETARecord{
			WaypointID:      waypoints[i].ID,
			DurationSeconds: &duration,
			DistanceLabel:   &label,
		}
	}
	return etas, true
}

func nullSnapshot(waypoints []Waypoint) []ETARecord {
	etas := make([]ETARecord, len(waypoints))
	for i, wp := range waypoints {
		etas[i] = ETARecord{WaypointID: wp.ID}
	}
	return etas
}

// cacheKey builds the composite cache key from the channel, the position
// quantized to ~11 m, and a digest of the waypoint identities. Near-identical
// inputs within the TTL share one provider result.
func cacheKey(channelID string, pos Position, waypoints []Waypoint) string {
	h := fnv.New64a()
	for _, wp := range waypoints {
		h.Write([]byte(wp.ID))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s:%.4f,%.4f:%x", channelID, quantize(pos.Lat), quantize(pos.Lon), h.Sum64())
}

func quantize(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
