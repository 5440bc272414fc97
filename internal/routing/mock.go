package routing

import (
	"context"

	"github.com/crisisgrid/backend/internal/models"
)

// MockOracle answers routing queries from a function, for tests and for
// running without network access.
type MockOracle struct {
	RouteFunc func(ctx context.Context, profile string, waypoints []models.Waypoint) (OracleRoute, error)
}

func (m MockOracle) Route(ctx context.Context, profile string, waypoints []models.Waypoint) (OracleRoute, error) {
	if m.RouteFunc != nil {
		return m.RouteFunc(ctx, profile, waypoints)
	}
	// Default: the requested waypoints as-is with nominal metrics.
	return OracleRoute{
		Path:      waypoints,
		DistanceM: 1000 * float64(len(waypoints)-1),
		DurationS: 120 * float64(len(waypoints)-1),
	}, nil
}
