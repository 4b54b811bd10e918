package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"campus-nav-api/internal/domain"
	"campus-nav-api/internal/metrics"
)

// Route is one routed alternative as returned by the provider and passed
// through to API consumers unchanged.
type Route struct {
	Geometry string  `json:"geometry"` // encoded polyline
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
}

// RoutingClient talks to the external routing provider (an OSRM-compatible
// REST API). Any non-2xx response or malformed body surfaces as an error;
// callers decide their own fallback, if any.
type RoutingClient interface {
	Distance(ctx context.Context, from, to domain.LatLng) (float64, error)
	Directions(ctx context.Context, start, end domain.LatLng, waypoints []domain.LatLng) ([]Route, error)
}

type routingClient struct {
	baseURL    string
	apiKey     string
	profile    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

func NewRoutingClient(baseURL, apiKey, profile string, timeout time.Duration, m *metrics.Metrics) RoutingClient {
	if profile == "" {
		profile = "foot"
	}
	return &routingClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		profile: profile,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: m,
	}
}

// Distance asks the provider's distance matrix for the routed distance in
// meters between two points.
func (c *routingClient) Distance(ctx context.Context, from, to domain.LatLng) (float64, error) {
	url := fmt.Sprintf("%s/table/v1/%s/%f,%f;%f,%f?annotations=distance",
		c.baseURL, c.profile, from.Lng, from.Lat, to.Lng, to.Lat)

	var result struct {
		Code      string      `json:"code"`
		Distances [][]float64 `json:"distances"`
	}
	if err := c.get(ctx, "table", url, &result); err != nil {
		return 0, err
	}

	if result.Code != "Ok" || len(result.Distances) == 0 || len(result.Distances[0]) < 2 {
		return 0, fmt.Errorf("malformed distance matrix response: code=%s", result.Code)
	}
	return result.Distances[0][1], nil
}

// Directions fetches routed geometry between start and end, optionally via
// ordered waypoints. The provider's route objects are passed through.
func (c *routingClient) Directions(ctx context.Context, start, end domain.LatLng, waypoints []domain.LatLng) ([]Route, error) {
	coords := make([]string, 0, len(waypoints)+2)
	coords = append(coords, fmt.Sprintf("%f,%f", start.Lng, start.Lat))
	for _, wp := range waypoints {
		coords = append(coords, fmt.Sprintf("%f,%f", wp.Lng, wp.Lat))
	}
	coords = append(coords, fmt.Sprintf("%f,%f", end.Lng, end.Lat))

	url := fmt.Sprintf("%s/route/v1/%s/%s?overview=full&geometries=polyline",
		c.baseURL, c.profile, strings.Join(coords, ";"))

	var result struct {
		Code   string  `json:"code"`
		Routes []Route `json:"routes"`
	}
	if err := c.get(ctx, "route", url, &result); err != nil {
		return nil, err
	}

	if result.Code != "Ok" || len(result.Routes) == 0 {
		return nil, fmt.Errorf("no route found: code=%s", result.Code)
	}
	return result.Routes, nil
}

func (c *routingClient) get(ctx context.Context, endpoint, url string, out interface{}) error {
	if c.apiKey != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url = url + sep + "api_key=" + c.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, 0, time.Since(start), err)
		return fmt.Errorf("routing request failed: %w", err)
	}
	defer resp.Body.Close()

	c.record(endpoint, resp.StatusCode, time.Since(start), nil)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("routing API returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode routing response: %w", err)
	}
	return nil
}

func (c *routingClient) record(endpoint string, status int, duration time.Duration, err error) {
	if c.metrics != nil {
		c.metrics.RecordExternalAPICall(endpoint, status, duration, err)
	}
}
