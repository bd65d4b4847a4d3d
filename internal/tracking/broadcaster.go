package tracking

import (
	"context"
	"log/slog"
)

// Broadcaster fans validated positions out to a channel's subscribers and
// triggers the ETA engine. It never waits for the refresh to finish.
type Broadcaster struct {
	registry *Registry
	engine   *Engine
	logger   *slog.Logger
	metrics  Metrics
}

func NewBroadcaster(registry *Registry, engine *Engine, logger *slog.Logger, metrics Metrics) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
	}
}

// Publish records a position on its channel and delivers it to every
// currently connected subscriber. Reports older than the channel's last
// position are dropped silently; that is an expected race, not a fault.
func (b *Broadcaster) Publish(ctx context.Context, channelID string, pos Position) error {
	ch, err := b.registry.GetOrCreate(ctx, channelID)
	if err != nil {
		return err
	}

	fanout, applied, err := ch.applyPosition(pos)
	if err != nil {
		return err
	}
	if !applied {
		if b.metrics != nil {
			b.metrics.PositionDropped()
		}
		b.logger.Debug("stale position dropped", "channelID", channelID, "observedAt", pos.ObservedAt)
		return nil
	}
	if b.metrics != nil {
		b.metrics.PositionPublished()
		b.metrics.FanoutSent(fanout)
	}

	// The refresh runs detached from the publisher's request context: an HTTP
	// caller returning must not cancel the provider call.
	go b.engine.RequestRefresh(context.WithoutCancel(ctx), ch, pos)

	return nil
}
