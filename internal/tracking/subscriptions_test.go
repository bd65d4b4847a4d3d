package tracking

import (
	"context"
	"testing"
	"time"
)

func TestSubscriptions_LateJoinerReplay(t *testing.T) {
	_, registry, subscriptions := newTestStack(t, &fakeProvider{legs: okLegs()})
	ctx := context.Background()

	ch, err := registry.GetOrCreate(ctx, "R1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if _, applied, err := ch.applyPosition(Position{Lat: 18.50, Lon: 73.85, ObservedAt: time.Now()}); err != nil || !applied {
		t.Fatalf("applyPosition failed: applied=%v err=%v", applied, err)
	}
	duration := int64(60)
	snapshot := []ETARecord{{WaypointID: "S1", DurationSeconds: &duration}}
	now := time.Now()
	if _, ok := ch.completeRefresh(now, now, snapshot); !ok {
		t.Fatal("completeRefresh failed")
	}

	late := newFakeSubscriber()
	if err := subscriptions.Subscribe(ctx, "R1", late); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if got := len(late.positionUpdates()); got != 1 {
		t.Fatalf("late joiner expected the last position immediately, got %d updates", got)
	}
	if got := len(late.etaUpdates()); got != 1 {
		t.Fatalf("late joiner expected the last eta snapshot immediately, got %d updates", got)
	}
}

func TestSubscriptions_SubscribeBeforePublish(t *testing.T) {
	_, _, subscriptions := newTestStack(t, &fakeProvider{legs: okLegs()})

	sub := newFakeSubscriber()
	if err := subscriptions.Subscribe(context.Background(), "R1", sub); err != nil {
		t.Fatalf("viewers may arrive before the vehicle starts moving, got %v", err)
	}
	if len(sub.positionUpdates()) != 0 || len(sub.etaUpdates()) != 0 {
		t.Error("a channel with no prior state has nothing to replay")
	}
}

func TestSubscriptions_IdempotentUnsubscribe(t *testing.T) {
	broadcaster, _, subscriptions := newTestStack(t, &fakeProvider{legs: okLegs()})
	ctx := context.Background()

	kept := newFakeSubscriber()
	gone := newFakeSubscriber()
	never := newFakeSubscriber()
	if err := subscriptions.Subscribe(ctx, "R1", kept); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := subscriptions.Subscribe(ctx, "R1", gone); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	subscriptions.Unsubscribe("R1", gone)
	subscriptions.Unsubscribe("R1", gone)  // twice
	subscriptions.Unsubscribe("R1", never) // never subscribed

	if err := broadcaster.Publish(ctx, "R1", Position{Lat: 18.50, Lon: 73.85, ObservedAt: time.Now()}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := len(kept.positionUpdates()); got != 1 {
		t.Errorf("remaining subscriber must be unaffected, got %d updates", got)
	}
	if len(gone.positionUpdates()) != 0 || len(never.positionUpdates()) != 0 {
		t.Error("unsubscribed handles must not receive updates")
	}
}

func TestSubscriptions_DropRemovesFromAllChannels(t *testing.T) {
	broadcaster, _, subscriptions := newTestStack(t, &fakeProvider{legs: okLegs()})
	ctx := context.Background()

	sub := newFakeSubscriber()
	for _, id := range []string{"A", "B"} {
		if err := subscriptions.Subscribe(ctx, id, sub); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
	}

	subscriptions.Drop(sub)

	for _, id := range []string{"A", "B"} {
		if err := broadcaster.Publish(ctx, id, Position{Lat: 18.50, Lon: 73.85, ObservedAt: time.Now()}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	if got := len(sub.positionUpdates()); got != 0 {
		t.Errorf("dropped handle must not receive updates, got %d", got)
	}

	// Dropping again is a no-op.
	subscriptions.Drop(sub)
}

// countingMetrics records only the subscriber gauge events.
type countingMetrics struct {
	joined int
	left   int
}

func (m *countingMetrics) PositionPublished() {}
func (m *countingMetrics) PositionDropped() {}
func (m *countingMetrics) FanoutSent(int) {}
func (m *countingMetrics) ProviderCallObserved(time.Duration, bool) {}
func (m *countingMetrics) ThrottleSkipped() {}
func (m *countingMetrics) CacheHit() {}
func (m *countingMetrics) ChannelOpened() {}
func (m *countingMetrics) ChannelClosed() {}
func (m *countingMetrics) SubscriberJoined() { m.joined++ }
func (m *countingMetrics) SubscriberLeft() { m.left++ }

func TestSubscriptions_GaugeStaysBalanced(t *testing.T) {
	metrics := &countingMetrics{}
	registry := NewRegistry(testLogger(), newFakeSource(testWaypoints()), metrics)
	subscriptions := NewSubscriptionManager(registry, testLogger(), metrics)
	ctx := context.Background()

	first := newFakeSubscriber()
	second := newFakeSubscriber()
	for _, sub := range []Subscriber{first, second} {
		if err := subscriptions.Subscribe(ctx, "R1", sub); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
	}
	// A duplicate join for the same channel must not count twice.
	if err := subscriptions.Subscribe(ctx, "R1", first); err != nil {
		t.Fatalf("duplicate Subscribe failed: %v", err)
	}
	if metrics.joined != 2 {
		t.Fatalf("joined = %d, want 2", metrics.joined)
	}

	subscriptions.Unsubscribe("R1", second)
	// Removing the channel detaches the remaining subscriber.
	registry.Remove("R1")

	if metrics.left != metrics.joined {
		t.Errorf("left = %d, want %d", metrics.left, metrics.joined)
	}
}
