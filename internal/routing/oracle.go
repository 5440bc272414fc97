package routing

import (
	"context"
	"errors"

	"github.com/crisisgrid/backend/internal/models"
)

// ErrNoRoute is returned when the oracle cannot produce a path between the
// given waypoints. Callers treat it as "no path", not a fault.
var ErrNoRoute = errors.New("routing: no route found")

// OracleRoute is a concrete path returned by the routing oracle.
type OracleRoute struct {
	Path      []models.Waypoint
	DistanceM float64
	DurationS float64
}

// Oracle turns an ordered waypoint list into a path with distance and
// duration estimates. Implementations must be called with at least two
// waypoints in travel order and may fail; there is no retry at this layer.
type Oracle interface {
	Route(ctx context.Context, profile string, waypoints []models.Waypoint) (OracleRoute, error)
}

// Profile maps a vehicle type to the oracle routing profile.
func Profile(v models.VehicleType) string {
	if v == models.VehicleBike {
		return "cycling"
	}
	return "driving"
}

// SpeedFactor is the animation speed multiplier relative to routed speed.
func SpeedFactor(v models.VehicleType) float64 {
	switch v {
	case models.VehicleBike:
		return 0.85
	case models.VehicleTruck:
		return 0.65
	default:
		return 1.0
	}
}
