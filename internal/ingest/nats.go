package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSConsumer ingests position reports from a NATS subject, the shape the
// fleet simulator publishes.
type NATSConsumer struct {
	logger   *slog.Logger
	nc       *nats.Conn
	subject  string
	endpoint *Endpoint
}

func NewNATSConsumer(logger *slog.Logger, url, subject string, endpoint *Endpoint) (*NATSConsumer, error) {
	nc, err := nats.Connect(url,
		nats.Name("buswatch"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSConsumer{
		logger:   logger,
		nc:       nc,
		subject:  subject,
		endpoint: endpoint,
	}, nil
}

func (c *NATSConsumer) Start(ctx context.Context) error {
	c.logger.Info("NATS position consumer is running", "subject", c.subject)

	msgCh := make(chan *nats.Msg, 64)
	sub, err := c.nc.ChanSubscribe(c.subject, msgCh)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("failed to unsubscribe", "error", err)
		}
	}()

	for {
		select {
		case msg := <-msgCh:
			var report PositionReport
			if err := json.Unmarshal(msg.Data, &report); err != nil {
				c.logger.Error("malformed position message", "subject", msg.Subject, "error", err)
				continue
			}
			if _, err := c.endpoint.Submit(ctx, report); err != nil {
				c.logger.Error("error handling position message", "channelID", report.ChannelID, "error", err)
				continue
			}
			c.logger.Debug("position ingested from NATS", "channelID", report.ChannelID)
		case <-ctx.Done():
			c.logger.Info("shutting down NATS position consumer")
			return nil
		}
	}
}

func (c *NATSConsumer) Close() {
	if c.nc != nil {
		if err := c.nc.Drain(); err != nil {
			c.logger.Warn("failed to drain nats connection", "error", err)
		}
		c.nc.Close()
	}
}
