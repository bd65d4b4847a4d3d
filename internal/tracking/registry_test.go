package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegistry_GetOrCreateFetchesWaypointsOnce(t *testing.T) {
	source := newFakeSource(testWaypoints())
	registry := NewRegistry(testLogger(), source, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := registry.GetOrCreate(ctx, "R1"); err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := source.fetchCount("R1"); got != 1 {
		t.Errorf("expected 1 waypoint fetch, got %d", got)
	}

	ch, err := registry.GetOrCreate(ctx, "R1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	wps := ch.Waypoints()
	if len(wps) != 3 {
		t.Fatalf("expected 3 waypoints, got %d", len(wps))
	}
	for i, want := range []string{"S1", "S2", "S3"} {
		if wps[i].ID != want {
			t.Errorf("waypoint %d: got %q, want %q", i, wps[i].ID, want)
		}
	}
}

func TestRegistry_UnknownChannel(t *testing.T) {
	source := newFakeSource(nil) // no stops means no such route
	registry := NewRegistry(testLogger(), source, nil)

	_, err := registry.GetOrCreate(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
	if registry.Len() != 0 {
		t.Errorf("failed activation should not leave a channel behind, have %d", registry.Len())
	}
}

func TestRegistry_FailedActivationCanBeRetried(t *testing.T) {
	source := newFakeSource(testWaypoints())
	source.err = errors.New("routes api down")
	registry := NewRegistry(testLogger(), source, nil)
	ctx := context.Background()

	if _, err := registry.GetOrCreate(ctx, "R1"); err == nil {
		t.Fatal("expected activation to fail")
	}

	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()

	ch, err := registry.GetOrCreate(ctx, "R1")
	if err != nil {
		t.Fatalf("retry after failure should succeed, got %v", err)
	}
	if len(ch.Waypoints()) != 3 {
		t.Errorf("expected waypoints on retried channel, got %d", len(ch.Waypoints()))
	}
}

func TestRegistry_RemovedChannelFailsCleanly(t *testing.T) {
	registry := NewRegistry(testLogger(), newFakeSource(testWaypoints()), nil)
	ctx := context.Background()

	ch, err := registry.GetOrCreate(ctx, "R1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	registry.Remove("R1")

	_, _, err = ch.applyPosition(Position{Lat: 1, Lon: 2, ObservedAt: time.Now()})
	if !errors.Is(err, ErrChannelRemoved) {
		t.Errorf("expected ErrChannelRemoved, got %v", err)
	}
	if _, err := ch.addSubscriber(newFakeSubscriber()); !errors.Is(err, ErrChannelRemoved) {
		t.Errorf("expected ErrChannelRemoved on subscribe, got %v", err)
	}
}

func TestRegistry_SweepReapsIdleChannels(t *testing.T) {
	registry := NewRegistry(testLogger(), newFakeSource(testWaypoints()), nil)
	ctx := context.Background()

	if _, err := registry.GetOrCreate(ctx, "idle"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	busy, err := registry.GetOrCreate(ctx, "busy")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if _, err := busy.addSubscriber(newFakeSubscriber()); err != nil {
		t.Fatalf("addSubscriber failed: %v", err)
	}

	// Everything is older than a deadline in the future, but the channel
	// with a subscriber must survive.
	registry.sweep(time.Now().Add(time.Minute))

	if _, ok := registry.Get("idle"); ok {
		t.Error("idle channel should have been reaped")
	}
	if _, ok := registry.Get("busy"); !ok {
		t.Error("channel with subscribers must not be reaped")
	}
}
