package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Channel holds the live state for one route: last known position, last ETA
// snapshot, and the set of connected subscribers. All mutable fields are
// guarded by mu; waypoints are fixed once the channel is activated.
type Channel struct {
	ID string

	initMu    sync.Mutex
	activated bool
	initErr   error
	waypoints []Waypoint

	mu             sync.Mutex
	removed        bool
	lastPosition   *Position
	lastETAs       []ETARecord
	lastComputedAt time.Time
	refreshing     bool
	subscribers    map[Subscriber]struct{}
	lastActivity   time.Time
}

func newChannel(id string) *Channel {
	return &Channel{
		ID:           id,
		subscribers:  make(map[Subscriber]struct{}),
		lastActivity: time.Now(),
	}
}

// ensureWaypoints fetches the channel's stop list exactly once. Concurrent
// callers block until the first fetch settles; a failed fetch poisons the
// channel so the registry can discard it.
func (c *Channel) ensureWaypoints(ctx context.Context, source WaypointSource) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.activated {
		return c.initErr
	}

	wps, err := source.Waypoints(ctx, c.ID)
	if err == nil && len(wps) == 0 {
		err = ErrUnknownChannel
	}
	if err != nil {
		c.activated = true
		c.initErr = fmt.Errorf("fetching waypoints for channel %q: %w", c.ID, err)
		return c.initErr
	}

	sort.Slice(wps, func(i, j int) bool { return wps[i].Sequence < wps[j].Sequence })
	c.waypoints = wps
	c.activated = true
	return nil
}

// Waypoints returns the channel's ordered stop list. Safe without the state
// lock: the slice is never mutated after activation.
func (c *Channel) Waypoints() []Waypoint {
	return c.waypoints
}

// applyPosition records a new position and fans it out to the current
// subscribers. Delivery happens under the channel lock so every subscriber
// sees positions in publish order; sends are non-blocking by the Subscriber
// contract. Out-of-order reports are dropped so the vehicle never appears
// to move backward.
func (c *Channel) applyPosition(pos Position) (fanout int, applied bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.removed {
		return 0, false, ErrChannelRemoved
	}
	if c.lastPosition != nil && pos.ObservedAt.Before(c.lastPosition.ObservedAt) {
		return 0, false, nil
	}
	c.lastPosition = &pos
	c.lastActivity = time.Now()

	update := PositionUpdate{
		ChannelID:  c.ID,
		Lat:        pos.Lat,
		Lon:        pos.Lon,
		ObservedAt: pos.ObservedAt,
	}
	for sub := range c.subscribers {
		sub.SendPosition(update)
	}
	return len(c.subscribers), true, nil
}

// addSubscriber attaches a viewer and replays the last known position and
// ETA snapshot, if any, so a late joiner is not left blank until the next
// publish. Replay happens under the lock so it cannot arrive after a newer
// update. The added result reports whether the handle was not already
// attached, so a duplicate join does not skew the subscriber count.
func (c *Channel) addSubscriber(sub Subscriber) (added bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.removed {
		return false, ErrChannelRemoved
	}
	_, known := c.subscribers[sub]
	c.subscribers[sub] = struct{}{}
	c.lastActivity = time.Now()

	if c.lastPosition != nil {
		sub.SendPosition(PositionUpdate{
			ChannelID:  c.ID,
			Lat:        c.lastPosition.Lat,
			Lon:        c.lastPosition.Lon,
			ObservedAt: c.lastPosition.ObservedAt,
		})
	}
	if c.lastETAs != nil {
		sub.SendETAs(ETAUpdate{ChannelID: c.ID, ETAs: c.lastETAs})
	}
	return !known, nil
}

// removeSubscriber detaches a viewer. Unknown handles are a no-op.
func (c *Channel) removeSubscriber(sub Subscriber) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscribers[sub]; !ok {
		return false
	}
	delete(c.subscribers, sub)
	c.lastActivity = time.Now()
	return true
}

// beginRefresh gates an ETA computation behind the throttle window and a
// single-flight guard. On success it returns the computation's start time
// for the stale-completion check in completeRefresh.
func (c *Channel) beginRefresh(now time.Time, throttle time.Duration) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.removed || c.refreshing {
		return time.Time{}, false
	}
	if !c.lastComputedAt.IsZero() && now.Sub(c.lastComputedAt) < throttle {
		return time.Time{}, false
	}
	c.refreshing = true
	return now, true
}

// completeRefresh stores a finished snapshot and broadcasts it, unless a
// fresher one landed while this computation was in flight.
func (c *Channel) completeRefresh(start, now time.Time, etas []ETARecord) (fanout int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refreshing = false
	if c.removed {
		return 0, false
	}
	if c.lastComputedAt.After(start) {
		return 0, false
	}
	c.lastETAs = etas
	c.lastComputedAt = now

	update := ETAUpdate{ChannelID: c.ID, ETAs: etas}
	for sub := range c.subscribers {
		sub.SendETAs(update)
	}
	return len(c.subscribers), true
}

// markRemoved detaches every subscriber and poisons future operations. The
// cleared count lets the registry keep the subscriber gauge balanced.
func (c *Channel) markRemoved() (cleared int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cleared = len(c.subscribers)
	c.removed = true
	c.subscribers = make(map[Subscriber]struct{})
	return cleared
}

// idleSince reports whether the channel has had no subscribers and no
// activity since the given deadline.
func (c *Channel) idleSince(deadline time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers) == 0 && c.lastActivity.Before(deadline)
}

// Registry is the thread-safe store of per-channel state. It is an
// injectable instance owned by the service lifecycle, never a package-level
// singleton, so tests can construct isolated registries.
type Registry struct {
	logger  *slog.Logger
	source  WaypointSource
	metrics Metrics

	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewRegistry(logger *slog.Logger, source WaypointSource, metrics Metrics) *Registry {
	return &Registry{
		logger:   logger,
		source:   source,
		metrics:  metrics,
		channels: make(map[string]*Channel),
	}
}

// GetOrCreate returns the channel for channelID, activating it on first
// touch. Waypoints are fetched exactly once per channel lifetime; the fetch
// happens outside the registry lock so unrelated channels never block.
func (r *Registry) GetOrCreate(ctx context.Context, channelID string) (*Channel, error) {
	r.mu.Lock()
	ch, ok := r.channels[channelID]
	if !ok {
		ch = newChannel(channelID)
		r.channels[channelID] = ch
	}
	r.mu.Unlock()

	if err := ch.ensureWaypoints(ctx, r.source); err != nil {
		r.removeIf(channelID, ch)
		return nil, err
	}
	if !ok {
		if r.metrics != nil {
			r.metrics.ChannelOpened()
		}
		r.logger.Debug("channel activated", "channelID", channelID, "waypoints", len(ch.Waypoints()))
	}
	return ch, nil
}

// Get returns an already-activated channel, if any.
func (r *Registry) Get(channelID string) (*Channel, bool) {
	r.mu.RLock()
	ch, ok := r.channels[channelID]
	r.mu.RUnlock()
	if !ok || !ch.activatedOK() {
		return nil, false
	}
	return ch, true
}

func (c *Channel) activatedOK() bool {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.activated && c.initErr == nil
}

// Remove deletes a channel. In-flight operations on it fail cleanly with
// ErrChannelRemoved.
func (r *Registry) Remove(channelID string) {
	r.mu.Lock()
	ch, ok := r.channels[channelID]
	if ok {
		delete(r.channels, channelID)
	}
	r.mu.Unlock()

	if ok {
		cleared := ch.markRemoved()
		if r.metrics != nil {
			r.metrics.ChannelClosed()
			for i := 0; i < cleared; i++ {
				r.metrics.SubscriberLeft()
			}
		}
		r.logger.Debug("channel removed", "channelID", channelID, "subscribers", cleared)
	}
}

// removeIf deletes the entry only if it still maps to the same channel, so
// a failed activation cannot evict a successor created in the meantime.
func (r *Registry) removeIf(channelID string, ch *Channel) {
	r.mu.Lock()
	if cur, ok := r.channels[channelID]; ok && cur == ch {
		delete(r.channels, channelID)
	}
	r.mu.Unlock()
	ch.markRemoved()
}

// Len returns the number of known channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// StartJanitor reaps channels that have been empty for longer than the
// grace period. The grace tolerates publisher and viewer reconnects.
func (r *Registry) StartJanitor(ctx context.Context, grace time.Duration) {
	interval := grace / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now().Add(-grace))
		case <-ctx.Done():
			return
		}
	}
}

func (r *Registry) sweep(deadline time.Time) {
	r.mu.RLock()
	var idle []string
	for id, ch := range r.channels {
		if ch.idleSince(deadline) {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range idle {
		r.Remove(id)
	}
}
