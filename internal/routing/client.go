package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"buswatch/internal/tracking"
)

// Client talks to a Valhalla-style routing service. It implements the
// engine's RouteProvider port: one request per refresh, origin first, stops
// as break-through points so the response carries one leg per stop.
type Client struct {
	baseURL    string
	costing    Costing
	httpClient *http.Client
}

type ClientOptions struct {
	Timeout time.Duration
	Costing Costing
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout: 7 * time.Second,
		Costing: CostingBus,
	}
}

func NewClient(baseURL string, options ...ClientOptions) *Client {
	opts := DefaultClientOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &Client{
		baseURL:    baseURL,
		costing:    opts.Costing,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// Legs requests a single route from the current position through every stop
// in order and returns one leg per stop. The slice aligns one-to-one with
// the stops argument.
func (c *Client) Legs(ctx context.Context, origin tracking.Position, stops []tracking.Waypoint) ([]tracking.Leg, error) {
	if len(stops) == 0 {
		return nil, nil
	}

	locations := make([]LocationRequest, 0, len(stops)+1)
	breakType := LocationTypeBreak
	throughType := LocationTypeBreakThrough
	locations = append(locations, LocationRequest{Lat: origin.Lat, Lon: origin.Lon, Type: &breakType})
	for i, stop := range stops {
		lt := &throughType
		if i == len(stops)-1 {
			lt = &breakType
		}
		locations = append(locations, LocationRequest{Lat: stop.Lat, Lon: stop.Lon, Type: lt})
	}

	trip, err := c.calculateRoute(ctx, RouteRequest{Locations: locations, Costing: c.costing})
	if err != nil {
		return nil, err
	}
	if len(trip.Legs) != len(stops) {
		return nil, fmt.Errorf("expected %d legs, got %d", len(stops), len(trip.Legs))
	}

	legs := make([]tracking.Leg, len(trip.Legs))
	for i, leg := range trip.Legs {
		legs[i] = tracking.Leg{
			DurationSeconds: int64(math.Round(leg.Summary.Time)),
			DistanceLabel:   fmt.Sprintf("%.1f km", leg.Summary.Length),
			OK:              true,
		}
	}
	return legs, nil
}

func (c *Client) calculateRoute(ctx context.Context, routeRequest RouteRequest) (*Trip, error) {
	if err := routeRequest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid route request: %w", err)
	}

	reqURL, err := url.Parse(c.baseURL + "/route")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	body, err := json.Marshal(routeRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var routeResponse RouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&routeResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(routeResponse.Data) == 0 {
		return nil, fmt.Errorf("no route found")
	}

	return &routeResponse.Data[0], nil
}
