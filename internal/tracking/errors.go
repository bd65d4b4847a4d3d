package tracking

import "errors"

var (
	// ErrInvalidPosition rejects a malformed or out-of-range report at the
	// ingestion boundary. Never broadcast, never retried.
	ErrInvalidPosition = errors.New("invalid position")

	// ErrUnknownChannel means no waypoints exist for the channel identifier.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrChannelRemoved means the channel was deleted while an operation on
	// it was in flight.
	ErrChannelRemoved = errors.New("channel removed")
)
