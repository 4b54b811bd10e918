package dto

import (
	"fmt"

	"campus-nav-api/internal/domain"
)

// Coordinate is a request coordinate. Pointer fields distinguish a
// missing value from zero so malformed requests fail validation instead
// of routing to Null Island.
type Coordinate struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (c *Coordinate) validate(name string) error {
	if c == nil || c.Lat == nil || c.Lon == nil {
		return fmt.Errorf("%s coordinates are required", name)
	}
	if *c.Lat < -90 || *c.Lat > 90 {
		return fmt.Errorf("%s latitude out of range", name)
	}
	if *c.Lon < -180 || *c.Lon > 180 {
		return fmt.Errorf("%s longitude out of range", name)
	}
	return nil
}

// LatLng converts a validated coordinate to the domain type
func (c *Coordinate) LatLng() domain.LatLng {
	return domain.LatLng{Lat: *c.Lat, Lng: *c.Lon}
}

// RouteRequest is the request body of both routing proxy endpoints
type RouteRequest struct {
	Start     *Coordinate  `json:"start"`
	End       *Coordinate  `json:"end"`
	Waypoints []Coordinate `json:"waypoints,omitempty"`
}

// Validate checks for missing or out-of-range coordinates
func (r *RouteRequest) Validate() error {
	if err := r.Start.validate("start"); err != nil {
		return err
	}
	if err := r.End.validate("end"); err != nil {
		return err
	}
	for i := range r.Waypoints {
		if err := r.Waypoints[i].validate(fmt.Sprintf("waypoint[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// WaypointLatLngs converts validated waypoints to domain coordinates
func (r *RouteRequest) WaypointLatLngs() []domain.LatLng {
	if len(r.Waypoints) == 0 {
		return nil
	}
	out := make([]domain.LatLng, 0, len(r.Waypoints))
	for i := range r.Waypoints {
		out = append(out, r.Waypoints[i].LatLng())
	}
	return out
}
