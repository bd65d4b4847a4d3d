package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisConsumer ingests position reports published on a Redis pub/sub
// channel, for fleets that report through the platform bus instead of HTTP.
type RedisConsumer struct {
	logger   *slog.Logger
	client   *redis.Client
	topic    string
	endpoint *Endpoint
}

func NewRedisConsumer(logger *slog.Logger, client *redis.Client, topic string, endpoint *Endpoint) *RedisConsumer {
	return &RedisConsumer{
		logger:   logger,
		client:   client,
		topic:    topic,
		endpoint: endpoint,
	}
}

func (c *RedisConsumer) Start(ctx context.Context) error {
	c.logger.Info("Redis position consumer is running", "topic", c.topic)
	pubsub := c.client.Subscribe(ctx, c.topic)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.logger.Warn("failed to close pubsub", "error", err)
		}
	}()

	msgCh := pubsub.Channel()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				c.logger.Warn("pubsub channel closed by Redis")
				return nil
			}
			if err := c.handleMessage(ctx, msg); err != nil {
				c.logger.Error("error handling position message", "error", err)
			}
		case <-ctx.Done():
			c.logger.Info("shutting down Redis position consumer")
			return nil
		}
	}
}

func (c *RedisConsumer) handleMessage(ctx context.Context, msg *redis.Message) error {
	var report PositionReport
	if err := json.Unmarshal([]byte(msg.Payload), &report); err != nil {
		return err
	}
	if _, err := c.endpoint.Submit(ctx, report); err != nil {
		return err
	}
	c.logger.Debug("position ingested from Redis", "channelID", report.ChannelID)
	return nil
}
