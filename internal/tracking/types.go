package tracking

import (
	"context"
	"time"
)

// Position is a single observed vehicle location. Immutable once built.
type Position struct {
	Lat        float64   `json:"latitude"`
	Lon        float64   `json:"longitude"`
	ObservedAt time.Time `json:"observedAt"`
}

// Waypoint is one ordered stop along a channel's route.
type Waypoint struct {
	ID       string  `json:"id"`
	Lat      float64 `json:"latitude"`
	Lon      float64 `json:"longitude"`
	Sequence int     `json:"sequence"`
}

// ETARecord is the cumulative travel estimate to one waypoint. A nil
// DurationSeconds means the provider could not compute that leg.
type ETARecord struct {
	WaypointID      string  `json:"waypointId"`
	DurationSeconds *int64  `json:"durationSeconds"`
	DistanceLabel   *string `json:"distanceLabel"`
}

// PositionUpdate is the fan-out message sent to subscribers on publish.
type PositionUpdate struct {
	ChannelID  string    `json:"channelId"`
	Lat        float64   `json:"latitude"`
	Lon        float64   `json:"longitude"`
	ObservedAt time.Time `json:"observedAt"`
}

// ETAUpdate is the fan-out message carrying a full ETA snapshot,
// in waypoint sequence order.
type ETAUpdate struct {
	ChannelID string      `json:"channelId"`
	ETAs      []ETARecord `json:"etas"`
}

// Subscriber is one viewer connection attached to a channel.
// Implementations must not block: a slow consumer is its own problem.
type Subscriber interface {
	SendPosition(u PositionUpdate)
	SendETAs(u ETAUpdate)
}

// WaypointSource supplies the ordered stop list for a channel, fetched
// exactly once per channel lifetime by the Registry.
type WaypointSource interface {
	Waypoints(ctx context.Context, channelID string) ([]Waypoint, error)
}

// Leg is one segment of a provider response, aligned with the requested
// waypoints. OK false maps to a null ETARecord downstream.
type Leg struct {
	DurationSeconds int64
	DistanceLabel   string
	OK              bool
}

// RouteProvider is the external routing service boundary. The returned
// slice must align one-to-one with the requested waypoints.
type RouteProvider interface {
	Legs(ctx context.Context, origin Position, stops []Waypoint) ([]Leg, error)
}

// ETACache stores computed snapshots keyed by (channel, quantized position,
// waypoint identity). Get returns nil with no error on a miss.
type ETACache interface {
	Get(ctx context.Context, key string) ([]ETARecord, error)
	Set(ctx context.Context, key string, etas []ETARecord) error
}

// Metrics receives instrumentation events from the engine core.
// A nil Metrics disables instrumentation.
type Metrics interface {
	PositionPublished()
	PositionDropped()
	FanoutSent(n int)
	ProviderCallObserved(d time.Duration, success bool)
	ThrottleSkipped()
	CacheHit()
	ChannelOpened()
	ChannelClosed()
	SubscriberJoined()
	SubscriberLeft()
}
