package tracking

import (
	"context"
	"log/slog"
	"sync"
)

// SubscriptionManager tracks which channels each viewer handle is attached
// to, so a disconnect can be handled as a single terminal event. Viewers may
// subscribe before the channel's publisher has sent anything.
type SubscriptionManager struct {
	registry *Registry
	logger   *slog.Logger
	metrics  Metrics

	mu         sync.Mutex
	membership map[Subscriber]map[string]struct{}
}

func NewSubscriptionManager(registry *Registry, logger *slog.Logger, metrics Metrics) *SubscriptionManager {
	return &SubscriptionManager{
		registry:   registry,
		logger:     logger,
		metrics:    metrics,
		membership: make(map[Subscriber]map[string]struct{}),
	}
}

// Subscribe attaches a handle to a channel and immediately replays the last
// known position and ETA snapshot, if any, so late joiners are not left
// blank until the next publish.
func (s *SubscriptionManager) Subscribe(ctx context.Context, channelID string, sub Subscriber) error {
	ch, err := s.registry.GetOrCreate(ctx, channelID)
	if err != nil {
		return err
	}

	added, err := ch.addSubscriber(sub)
	if err != nil {
		return err
	}

	s.mu.Lock()
	channels, ok := s.membership[sub]
	if !ok {
		channels = make(map[string]struct{})
		s.membership[sub] = channels
	}
	channels[channelID] = struct{}{}
	s.mu.Unlock()

	if added && s.metrics != nil {
		s.metrics.SubscriberJoined()
	}
	return nil
}

// Unsubscribe detaches a handle from one channel. Idempotent: detaching
// twice, or a handle that never joined, is a no-op.
func (s *SubscriptionManager) Unsubscribe(channelID string, sub Subscriber) {
	s.mu.Lock()
	if channels, ok := s.membership[sub]; ok {
		delete(channels, channelID)
		if len(channels) == 0 {
			delete(s.membership, sub)
		}
	}
	s.mu.Unlock()

	if ch, ok := s.registry.Get(channelID); ok {
		if ch.removeSubscriber(sub) && s.metrics != nil {
			s.metrics.SubscriberLeft()
		}
	}
}

// Drop detaches a handle from every channel it joined. Called exactly once
// per physical disconnect.
func (s *SubscriptionManager) Drop(sub Subscriber) {
	s.mu.Lock()
	channels := s.membership[sub]
	delete(s.membership, sub)
	s.mu.Unlock()

	for channelID := range channels {
		if ch, ok := s.registry.Get(channelID); ok {
			if ch.removeSubscriber(sub) && s.metrics != nil {
				s.metrics.SubscriberLeft()
			}
		}
	}
	if len(channels) > 0 {
		s.logger.Debug("subscriber dropped", "channels", len(channels))
	}
}
