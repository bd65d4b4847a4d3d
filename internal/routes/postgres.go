package routes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"buswatch/internal/tracking"
)

// PostgresSource reads a route's ordered stop list from Postgres. Read-only:
// route and stop management belongs to another service.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to routes database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging routes database: %w", err)
	}
	return &PostgresSource{pool: pool}, nil
}

func (s *PostgresSource) Close() {
	s.pool.Close()
}

func (s *PostgresSource) Waypoints(ctx context.Context, channelID string) ([]tracking.Waypoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, latitude, longitude, sequence FROM stops WHERE route_id = $1 ORDER BY sequence`,
		channelID)
	if err != nil {
		return nil, fmt.Errorf("querying stops for route %q: %w", channelID, err)
	}
	defer rows.Close()

	var wps []tracking.Waypoint
	for rows.Next() {
		var wp tracking.Waypoint
		if err := rows.Scan(&wp.ID, &wp.Lat, &wp.Lon, &wp.Sequence); err != nil {
			return nil, fmt.Errorf("scanning stop row: %w", err)
		}
		wps = append(wps, wp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading stop rows: %w", err)
	}
	return wps, nil
}
