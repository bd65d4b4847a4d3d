package tracking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWaypoints() []Waypoint {
	return []Waypoint{
		{ID: "S1", Lat: 18.51, Lon: 73.86, Sequence: 1},
		{ID: "S2", Lat: 18.52, Lon: 73.87, Sequence: 2},
		{ID: "S3", Lat: 18.53, Lon: 73.88, Sequence: 3},
	}
}

// fakeSource serves a fixed waypoint set for every channel and counts
// fetches per channel.
type fakeSource struct {
	mu        sync.Mutex
	waypoints []Waypoint
	err       error
	fetches   map[string]int
}

func newFakeSource(wps []Waypoint) *fakeSource {
	return &fakeSource{waypoints: wps, fetches: make(map[string]int)}
}

func (f *fakeSource) Waypoints(_ context.Context, channelID string) ([]Waypoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[channelID]++
	if f.err != nil {
		return nil, f.err
	}
	return f.waypoints, nil
}

func (f *fakeSource) fetchCount(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[channelID]
}

// fakeProvider returns a fixed leg slice and counts calls.
type fakeProvider struct {
	mu    sync.Mutex
	legs  []Leg
	err   error
	calls int
}

func (f *fakeProvider) Legs(ctx context.Context, _ Position, _ []Waypoint) ([]Leg, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.legs, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeCache is an unbounded in-memory ETACache without expiry.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]ETARecord
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]ETARecord)}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]ETARecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[key], nil
}

func (f *fakeCache) Set(_ context.Context, key string, etas []ETARecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = etas
	return nil
}

// fakeSubscriber records everything it receives.
type fakeSubscriber struct {
	mu        sync.Mutex
	positions []PositionUpdate
	etas      []ETAUpdate
	etaCh     chan ETAUpdate
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{etaCh: make(chan ETAUpdate, 16)}
}

func (f *fakeSubscriber) SendPosition(u PositionUpdate) {
	f.mu.Lock()
	f.positions = append(f.positions, u)
	f.mu.Unlock()
}

func (f *fakeSubscriber) SendETAs(u ETAUpdate) {
	f.mu.Lock()
	f.etas = append(f.etas, u)
	f.mu.Unlock()
	select {
	case f.etaCh <- u:
	default:
	}
}

func (f *fakeSubscriber) positionUpdates() []PositionUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PositionUpdate(nil), f.positions...)
}

func (f *fakeSubscriber) etaUpdates() []ETAUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ETAUpdate(nil), f.etas...)
}

// testClock is a manually advanced clock for throttle tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errProviderDown = errors.New("provider down")
