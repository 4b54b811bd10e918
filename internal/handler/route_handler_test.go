package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"campus-nav-api/internal/client"
	"campus-nav-api/internal/domain"
)

// MockRoutingClient is a func-field mock of client.RoutingClient
type MockRoutingClient struct {
	DistanceFunc   func(ctx context.Context, from, to domain.LatLng) (float64, error)
	DirectionsFunc func(ctx context.Context, start, end domain.LatLng, waypoints []domain.LatLng) ([]client.Route, error)
}

func (m *MockRoutingClient) Distance(ctx context.Context, from, to domain.LatLng) (float64, error) {
	return m.DistanceFunc(ctx, from, to)
}

func (m *MockRoutingClient) Directions(ctx context.Context, start, end domain.LatLng, waypoints []domain.LatLng) ([]client.Route, error) {
	return m.DirectionsFunc(ctx, start, end, waypoints)
}

func performRouteRequest(routing client.RoutingClient, path, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewRouteHandler(routing, zap.NewNop())
	r.POST("/routes/directions", h.Directions)
	r.POST("/routes/distance", h.Distance)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const validRouteBody = `{"start":{"lat":29.8647,"lon":77.8963},"end":{"lat":29.8700,"lon":77.9000}}`

func TestRouteHandler_DirectionsPassthrough(t *testing.T) {
	routing := &MockRoutingClient{
		DirectionsFunc: func(ctx context.Context, start, end domain.LatLng, waypoints []domain.LatLng) ([]client.Route, error) {
			assert.Equal(t, 29.8647, start.Lat)
			assert.Equal(t, 77.9000, end.Lng)
			assert.Nil(t, waypoints)
			return []client.Route{{Geometry: "abc123", Distance: 640.2, Duration: 480.5}}, nil
		},
	}

	w := performRouteRequest(routing, "/routes/directions", validRouteBody)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Routes []client.Route `json:"routes"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Routes, 1)
	assert.Equal(t, "abc123", resp.Routes[0].Geometry)
	assert.Equal(t, 640.2, resp.Routes[0].Distance)
}

func TestRouteHandler_DirectionsForwardsWaypoints(t *testing.T) {
	var got []domain.LatLng
	routing := &MockRoutingClient{
		DirectionsFunc: func(ctx context.Context, start, end domain.LatLng, waypoints []domain.LatLng) ([]client.Route, error) {
			got = waypoints
			return []client.Route{{}}, nil
		},
	}

	body := `{"start":{"lat":1,"lon":2},"end":{"lat":3,"lon":4},"waypoints":[{"lat":5,"lon":6}]}`
	w := performRouteRequest(routing, "/routes/directions", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, got, 1)
	assert.Equal(t, 5.0, got[0].Lat)
	assert.Equal(t, 6.0, got[0].Lng)
}

func TestRouteHandler_MalformedBodyReturns400(t *testing.T) {
	routing := &MockRoutingClient{}

	w := performRouteRequest(routing, "/routes/directions", `{"start":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid request body", resp["error"])
	assert.NotEmpty(t, resp["details"])
}

func TestRouteHandler_MissingCoordinatesReturns400(t *testing.T) {
	routing := &MockRoutingClient{}

	tests := []struct {
		name string
		body string
	}{
		{"missing end", `{"start":{"lat":1,"lon":2}}`},
		{"missing start lat", `{"start":{"lon":2},"end":{"lat":3,"lon":4}}`},
		{"empty body object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRouteRequest(routing, "/routes/directions", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp map[string]interface{}
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "invalid coordinates", resp["error"])
		})
	}
}

func TestRouteHandler_OutOfRangeCoordinatesReturns400(t *testing.T) {
	routing := &MockRoutingClient{}

	body := `{"start":{"lat":91,"lon":0},"end":{"lat":0,"lon":0}}`
	w := performRouteRequest(routing, "/routes/directions", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouteHandler_UpstreamFailureReturns500(t *testing.T) {
	routing := &MockRoutingClient{
		DirectionsFunc: func(ctx context.Context, start, end domain.LatLng, waypoints []domain.LatLng) ([]client.Route, error) {
			return nil, errors.New("routing engine returned NoRoute")
		},
	}

	w := performRouteRequest(routing, "/routes/directions", validRouteBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "failed to fetch route", resp["error"])
	assert.Contains(t, resp["details"], "NoRoute")
}

func TestRouteHandler_UnconfiguredProviderReturns500(t *testing.T) {
	w := performRouteRequest(nil, "/routes/directions", validRouteBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "routing provider not configured", resp["error"])
}

func TestRouteHandler_Distance(t *testing.T) {
	routing := &MockRoutingClient{
		DistanceFunc: func(ctx context.Context, from, to domain.LatLng) (float64, error) {
			return 845.7, nil
		},
	}

	w := performRouteRequest(routing, "/routes/distance", validRouteBody)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]float64
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 845.7, resp["distance"])
}

func TestRouteHandler_DistanceUpstreamFailureReturns500(t *testing.T) {
	routing := &MockRoutingClient{
		DistanceFunc: func(ctx context.Context, from, to domain.LatLng) (float64, error) {
			return 0, errors.New("table request failed")
		},
	}

	w := performRouteRequest(routing, "/routes/distance", validRouteBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
