package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"buswatch/internal/tracking"
)

// HTTPSource fetches a route's stop list from the routes API.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

type HTTPSourceOptions struct {
	Timeout time.Duration
}

func DefaultHTTPSourceOptions() HTTPSourceOptions {
	return HTTPSourceOptions{Timeout: 5 * time.Second}
}

func NewHTTPSource(baseURL string, options ...HTTPSourceOptions) *HTTPSource {
	opts := DefaultHTTPSourceOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	return &HTTPSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type stopsResponse struct {
	Data []tracking.Waypoint `json:"data"`
}

func (s *HTTPSource) Waypoints(ctx context.Context, channelID string) ([]tracking.Waypoint, error) {
	reqURL, err := url.Parse(fmt.Sprintf("%s/routes/%s/stops", s.baseURL, url.PathEscape(channelID)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, tracking.ErrUnknownChannel
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var stops stopsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stops); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return stops.Data, nil
}
