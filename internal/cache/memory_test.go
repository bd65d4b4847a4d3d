package cache

import (
	"context"
	"testing"
	"time"

	"buswatch/internal/tracking"
)

func TestMemoryETACache_Expiry(t *testing.T) {
	c := NewMemoryETACache(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	duration := int64(60)
	etas := []tracking.ETARecord{{WaypointID: "S1", DurationSeconds: &duration}}
	if err := c.Set(ctx, "k", etas); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 1 || *got[0].DurationSeconds != 60 {
		t.Fatalf("unexpected entry %+v", got)
	}

	now = now.Add(2 * time.Minute)
	got, err = c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expired entry should miss, got %+v", got)
	}
}

// Keys embed the vehicle's quantized position, so a moving vehicle never
// re-reads an old key. Writes must reap what reads never will.
func TestMemoryETACache_SetEvictsExpired(t *testing.T) {
	c := NewMemoryETACache(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	duration := int64(60)
	etas := []tracking.ETARecord{{WaypointID: "S1", DurationSeconds: &duration}}
	for _, key := range []string{"pos-a", "pos-b"} {
		if err := c.Set(ctx, key, etas); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	now = now.Add(2 * time.Minute)
	if err := c.Set(ctx, "pos-c", etas); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) != 1 {
		t.Fatalf("expected stale keys swept on write, have %d entries", len(c.entries))
	}
	if _, ok := c.entries["pos-c"]; !ok {
		t.Error("fresh entry missing after sweep")
	}
}

func TestMemoryETACache_Miss(t *testing.T) {
	c := NewMemoryETACache(time.Minute)
	got, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected a miss, got %+v", got)
	}
}
