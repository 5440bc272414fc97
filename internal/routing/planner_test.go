package routing

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/crisisgrid/backend/internal/models"
)

func severeFlood() models.Hazard {
	return models.Hazard{
		ID:   "flood-1",
		Kind: models.HazardFlood,
		Ring: []models.Waypoint{
			{Lat: 1, Lng: 1}, {Lat: 1, Lng: 3}, {Lat: 3, Lng: 3}, {Lat: 3, Lng: 1},
		},
		Severity: 4,
		Active:   true,
	}
}

func wideRoadblock() models.Hazard {
	return models.Hazard{
		ID:     "block-1",
		Kind:   models.HazardRoadblock,
		Line:   []models.Waypoint{{Lat: -10, Lng: 2}, {Lat: 10, Lng: 2}},
		Active: true,
	}
}

func newPlanner(oracle Oracle) *Planner {
	return &Planner{Oracle: oracle, Logger: zerolog.Nop()}
}

func TestComputeLegCleanDirectPath(t *testing.T) {
	p := newPlanner(MockOracle{})
	leg, err := p.ComputeLeg(context.Background(), "driving",
		models.Waypoint{Lat: 0, Lng: 0}, models.Waypoint{Lat: 0, Lng: 4}, []models.Hazard{severeFlood()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if leg.Rerouted || leg.Warning != "" {
		t.Fatalf("clean direct path must not reroute or warn, got %+v", leg)
	}
	if leg.DistanceM == 0 || leg.DurationS == 0 {
		t.Fatalf("expected oracle metrics on leg, got %+v", leg)
	}
}

func TestComputeLegBypassPicksFastestCleanCandidate(t *testing.T) {
	// The SW-corner detour still crosses the flood; NW and SE validate
	// clean. SE is made faster and must win.
	oracle := MockOracle{RouteFunc: func(_ context.Context, _ string, waypoints []models.Waypoint) (OracleRoute, error) {
		dur := 240.0
		if len(waypoints) == 3 && waypoints[1].Lat < 1 && waypoints[1].Lng > 3 {
			dur = 200 // SE corner
		}
		return OracleRoute{Path: waypoints, DistanceM: 5000, DurationS: dur}, nil
	}}

	p := newPlanner(oracle)
	hazards := []models.Hazard{severeFlood()}
	leg, err := p.ComputeLeg(context.Background(), "driving",
		models.Waypoint{Lat: 0, Lng: 0}, models.Waypoint{Lat: 4, Lng: 4}, hazards)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !leg.Rerouted {
		t.Fatalf("expected reroute, got %+v", leg)
	}
	if leg.DurationS != 200 {
		t.Fatalf("expected fastest clean candidate (200s), got %.0f", leg.DurationS)
	}
	if _, blocked := Validate(leg.Path, hazards); blocked {
		t.Fatalf("chosen bypass must be hazard-free")
	}
	if !strings.Contains(leg.Warning, "flood") {
		t.Fatalf("reroute warning must name the hazard kind, got %q", leg.Warning)
	}
}

func TestComputeLegUnavoidableHazardKeepsDirectPath(t *testing.T) {
	p := newPlanner(MockOracle{})
	leg, err := p.ComputeLeg(context.Background(), "driving",
		models.Waypoint{Lat: 0, Lng: 0}, models.Waypoint{Lat: 4, Lng: 4}, []models.Hazard{wideRoadblock()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if leg.Rerouted {
		t.Fatalf("unavoidable hazard must not report a reroute")
	}
	if leg.Warning == "" || !strings.Contains(leg.Warning, "blocked road") {
		t.Fatalf("expected non-empty warning naming the hazard, got %q", leg.Warning)
	}
	if len(leg.Path) != 2 {
		t.Fatalf("expected original direct path, got %d points", len(leg.Path))
	}
}

func TestComputeLegFloodWarningIncludesSeverity(t *testing.T) {
	// Flood so large that every bbox-corner detour re-enters it.
	huge := severeFlood()
	huge.Ring = []models.Waypoint{
		{Lat: -50, Lng: -50}, {Lat: -50, Lng: 50}, {Lat: 50, Lng: 50}, {Lat: 50, Lng: -50},
	}

	p := newPlanner(MockOracle{})
	leg, err := p.ComputeLeg(context.Background(), "driving",
		models.Waypoint{Lat: 0, Lng: 0}, models.Waypoint{Lat: 4, Lng: 4}, []models.Hazard{huge})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(leg.Warning, "severity 4") {
		t.Fatalf("flood warning must include severity, got %q", leg.Warning)
	}
}

func TestComputeMissionRouteGracefulOracleFailure(t *testing.T) {
	failing := MockOracle{RouteFunc: func(context.Context, string, []models.Waypoint) (OracleRoute, error) {
		return OracleRoute{}, ErrNoRoute
	}}

	p := newPlanner(failing)
	route, err := p.ComputeMissionRoute(context.Background(),
		models.Waypoint{Lat: 0, Lng: 0},
		models.Waypoint{Lat: 1, Lng: 1},
		models.Waypoint{Lat: 2, Lng: 2},
		models.VehicleCar, nil)
	if err != nil {
		t.Fatalf("oracle failure must not surface as an error: %v", err)
	}
	if route.TotalDistanceM != 0 || route.TotalDurationS != 0 {
		t.Fatalf("degraded route must carry zero metrics, got %+v", route)
	}
	if len(route.Leg1.Path) != 2 || len(route.Leg2.Path) != 2 {
		t.Fatalf("degraded legs must be straight lines between endpoints")
	}
	if route.Warning == "" {
		t.Fatalf("degraded route must be visibly flagged")
	}
}

func TestComputeMissionRouteAggregatesAndPrefersLeg1Warning(t *testing.T) {
	// Leg 1 crosses the flood with no clean bypass; leg 2 is clear.
	oracle := MockOracle{RouteFunc: func(_ context.Context, _ string, waypoints []models.Waypoint) (OracleRoute, error) {
		return OracleRoute{Path: waypoints, DistanceM: 1000, DurationS: 100}, nil
	}}
	huge := severeFlood()
	huge.Ring = []models.Waypoint{
		{Lat: -50, Lng: -50}, {Lat: -50, Lng: 50}, {Lat: 3, Lng: 50}, {Lat: 3, Lng: -50},
	}

	p := newPlanner(oracle)
	route, err := p.ComputeMissionRoute(context.Background(),
		models.Waypoint{Lat: 0, Lng: 0},  // inside flood
		models.Waypoint{Lat: 4, Lng: 4},  // outside
		models.Waypoint{Lat: 5, Lng: 5},  // leg 2 fully outside
		models.VehicleCar, []models.Hazard{huge})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.TotalDistanceM != 2000 || route.TotalDurationS != 200 {
		t.Fatalf("totals must aggregate both legs, got %+v", route)
	}
	if route.Warning != route.Leg1.Warning || route.Warning == "" {
		t.Fatalf("aggregate warning must surface leg 1 first, got %q", route.Warning)
	}
	if route.Leg2.Warning != "" {
		t.Fatalf("leg 2 should be clean, got %q", route.Leg2.Warning)
	}
}

func TestComputeMissionRouteSkipsInactiveHazards(t *testing.T) {
	inactive := severeFlood()
	inactive.Active = false

	p := newPlanner(MockOracle{})
	route, err := p.ComputeMissionRoute(context.Background(),
		models.Waypoint{Lat: 0, Lng: 0},
		models.Waypoint{Lat: 4, Lng: 4},
		models.Waypoint{Lat: 5, Lng: 5},
		models.VehicleCar, []models.Hazard{inactive})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Warning != "" || route.Rerouted {
		t.Fatalf("inactive hazards must not affect routing, got %+v", route)
	}
}
