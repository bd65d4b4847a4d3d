package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"buswatch/internal/tracking"
)

// PositionReport is the wire shape of a publisher's position update, shared
// by the HTTP, Redis, and NATS ingestion paths. Coordinates are pointers so
// a missing field is distinguishable from zero.
type PositionReport struct {
	ChannelID string   `json:"channelId" validate:"required,max=64"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// Endpoint validates reports and forwards them to the broadcaster. It is
// stateless: an invalid report is rejected synchronously and never queued
// or retried.
type Endpoint struct {
	broadcaster *tracking.Broadcaster
	validate    *validator.Validate
	now         func() time.Time
}

func NewEndpoint(broadcaster *tracking.Broadcaster) *Endpoint {
	return &Endpoint{
		broadcaster: broadcaster,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
}

// Submit checks the report and hands it to the broadcaster, stamping the
// observation time on acceptance. It returns once the position is recorded;
// it does not wait for fan-out or the ETA refresh.
func (e *Endpoint) Submit(ctx context.Context, report PositionReport) (tracking.Position, error) {
	if err := e.validate.Struct(report); err != nil {
		return tracking.Position{}, fmt.Errorf("%w: %s", tracking.ErrInvalidPosition, err)
	}

	pos := tracking.Position{
		Lat:        *report.Latitude,
		Lon:        *report.Longitude,
		ObservedAt: e.now(),
	}
	if err := e.broadcaster.Publish(ctx, report.ChannelID, pos); err != nil {
		return tracking.Position{}, err
	}
	return pos, nil
}
