package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/crisisgrid/backend/internal/hazard"
	"github.com/crisisgrid/backend/internal/models"
)

type plannedCall struct {
	origin  models.Waypoint
	leg     int
	ctx     context.Context
	respond chan models.MissionRoute
}

// scriptedComputer hands every compute request to the test, which decides
// when and with what to answer. A canceled request returns ctx.Err, like
// the real planner.
type scriptedComputer struct {
	calls chan plannedCall
}

func newScriptedComputer() *scriptedComputer {
	return &scriptedComputer{calls: make(chan plannedCall, 4)}
}

func (s *scriptedComputer) ComputeMissionRoute(ctx context.Context, agentPos, _, _ models.Waypoint, _ models.VehicleType, _ []models.Hazard) (models.MissionRoute, error) {
	c := plannedCall{origin: agentPos, leg: LegToPickup, ctx: ctx, respond: make(chan models.MissionRoute, 1)}
	s.calls <- c
	select {
	case r := <-c.respond:
		return r, nil
	case <-ctx.Done():
		return models.MissionRoute{}, ctx.Err()
	}
}

func (s *scriptedComputer) ComputeLeg(ctx context.Context, _ string, origin, _ models.Waypoint, _ []models.Hazard) (models.RouteLeg, error) {
	c := plannedCall{origin: origin, leg: LegToDropoff, ctx: ctx, respond: make(chan models.MissionRoute, 1)}
	s.calls <- c
	select {
	case r := <-c.respond:
		return r.Leg2, nil
	case <-ctx.Done():
		return models.RouteLeg{}, ctx.Err()
	}
}

func (s *scriptedComputer) expectCall(t *testing.T) plannedCall {
	t.Helper()
	select {
	case c := <-s.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a compute call")
		return plannedCall{}
	}
}

func (s *scriptedComputer) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-s.calls:
		t.Fatalf("unexpected compute call from origin %+v", c.origin)
	case <-time.After(50 * time.Millisecond):
	}
}

func routeFor(origin models.Waypoint) models.MissionRoute {
	return models.MissionRoute{
		Leg1: models.RouteLeg{Path: []models.Waypoint{origin, {Lat: 1, Lng: 1}}, DistanceM: 100, DurationS: 10},
		Leg2: models.RouteLeg{Path: []models.Waypoint{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, DistanceM: 100, DurationS: 10},
	}
}

func expectRoute(t *testing.T, tr *Tracker) RouteUpdate {
	t.Helper()
	select {
	case u := <-tr.Routes():
		return u
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a route update")
		return RouteUpdate{}
	}
}

func startTracker(t *testing.T, comp Computer) (*Tracker, *hazard.Model, context.CancelFunc) {
	t.Helper()
	hm := hazard.NewModel(zerolog.Nop())
	tr := NewTracker("m1", "agent-1", models.VehicleCar,
		models.Waypoint{Lat: 1, Lng: 1}, models.Waypoint{Lat: 2, Lng: 2},
		comp, hm, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go tr.Run(ctx, models.Waypoint{Lat: 0, Lng: 0})
	return tr, hm, cancel
}

func TestInitialRoutePlannedFromStart(t *testing.T) {
	comp := newScriptedComputer()
	tr, _, cancel := startTracker(t, comp)
	defer cancel()

	c := comp.expectCall(t)
	if c.origin != (models.Waypoint{Lat: 0, Lng: 0}) || c.leg != LegToPickup {
		t.Fatalf("initial plan must start at the agent position on leg 1, got %+v leg %d", c.origin, c.leg)
	}
	c.respond <- routeFor(c.origin)

	u := expectRoute(t, tr)
	if u.Leg != LegToPickup || u.PlannedFrom != c.origin {
		t.Fatalf("unexpected update %+v", u)
	}
}

func TestSmallMoveDoesNotReplan(t *testing.T) {
	comp := newScriptedComputer()
	tr, _, cancel := startTracker(t, comp)
	defer cancel()

	c := comp.expectCall(t)
	c.respond <- routeFor(c.origin)
	expectRoute(t, tr)

	// ~11m north of the planned origin: below the movement threshold.
	tr.UpdatePosition(models.Waypoint{Lat: 0.0001, Lng: 0})
	comp.expectNoCall(t)

	// ~55m: above the threshold, replan from the new position.
	far := models.Waypoint{Lat: 0.0005, Lng: 0}
	tr.UpdatePosition(far)
	c = comp.expectCall(t)
	if c.origin != far {
		t.Fatalf("replan must start from the reported position, got %+v", c.origin)
	}
}

func TestLastTriggerWins(t *testing.T) {
	comp := newScriptedComputer()
	tr, _, cancel := startTracker(t, comp)
	defer cancel()

	first := comp.expectCall(t)

	// A second trigger lands while the first compute is still running.
	moved := models.Waypoint{Lat: 0.01, Lng: 0}
	tr.UpdatePosition(moved)
	second := comp.expectCall(t)

	select {
	case <-first.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("superseded compute must be canceled")
	}

	second.respond <- routeFor(second.origin)
	u := expectRoute(t, tr)
	if u.PlannedFrom != moved {
		t.Fatalf("published route must come from the newest trigger, got %+v", u.PlannedFrom)
	}
}

func TestHazardChangeReplansFromInterpolatedPosition(t *testing.T) {
	comp := newScriptedComputer()
	tr, hm, cancel := startTracker(t, comp)
	defer cancel()

	// Published route runs along the (0,0)→(1,1) diagonal; the animated
	// position stays on it.
	c := comp.expectCall(t)
	c.respond <- routeFor(c.origin)
	expectRoute(t, tr)

	// A discrete report off the diagonal, below the movement threshold.
	reported := models.Waypoint{Lat: 0.0001, Lng: 0}
	tr.UpdatePosition(reported)
	comp.expectNoCall(t)

	hm.SetSnapshot([]models.Hazard{{
		ID: "h1", Kind: models.HazardRoadblock, Active: true,
		Line: []models.Waypoint{{Lat: -1, Lng: 0.5}, {Lat: 1, Lng: 0.5}},
	}})

	c = comp.expectCall(t)
	if c.origin == reported {
		t.Fatalf("hazard replan must not start from the last discrete report")
	}
	if c.origin.Lat != c.origin.Lng {
		t.Fatalf("hazard replan origin must lie on the active route, got %+v", c.origin)
	}
	if c.origin.Lat < 0.3 {
		t.Fatalf("expected interpolation to have progressed along the route, got %+v", c.origin)
	}
}

func TestHazardChangeBeforeAnyRouteUsesLastReport(t *testing.T) {
	comp := newScriptedComputer()
	tr, hm, cancel := startTracker(t, comp)
	defer cancel()

	// Initial compute still in flight: no route published, nothing to
	// interpolate along.
	comp.expectCall(t)
	reported := models.Waypoint{Lat: 0.0001, Lng: 0}
	tr.UpdatePosition(reported)
	comp.expectNoCall(t)

	hm.SetSnapshot([]models.Hazard{{
		ID: "h1", Kind: models.HazardRoadblock, Active: true,
		Line: []models.Waypoint{{Lat: -1, Lng: 0.5}, {Lat: 1, Lng: 0.5}},
	}})

	c := comp.expectCall(t)
	if c.origin != reported {
		t.Fatalf("without an active route the last report is the origin, got %+v", c.origin)
	}
}

func TestPickedUpSwitchesToDropoffLeg(t *testing.T) {
	comp := newScriptedComputer()
	tr, _, cancel := startTracker(t, comp)
	defer cancel()

	c := comp.expectCall(t)
	c.respond <- routeFor(c.origin)
	expectRoute(t, tr)

	atPickup := models.Waypoint{Lat: 0.0001, Lng: 0}
	tr.UpdatePosition(atPickup)
	comp.expectNoCall(t)

	tr.MarkPickedUp()
	c = comp.expectCall(t)
	if c.leg != LegToDropoff || c.origin != atPickup {
		t.Fatalf("pickup must replan the dropoff leg from the current position, got leg %d origin %+v", c.leg, c.origin)
	}
	c.respond <- routeFor(c.origin)
	u := expectRoute(t, tr)
	if u.Leg != LegToDropoff {
		t.Fatalf("expected dropoff-leg update, got %+v", u)
	}

	// Movement alone no longer replans once the food is on board.
	tr.UpdatePosition(models.Waypoint{Lat: 0.5, Lng: 0.5})
	comp.expectNoCall(t)
}

func TestRoutesChannelKeepsNewestOnly(t *testing.T) {
	comp := newScriptedComputer()
	tr, _, cancel := startTracker(t, comp)
	defer cancel()

	first := comp.expectCall(t)
	first.respond <- routeFor(first.origin)

	moved := models.Waypoint{Lat: 0.01, Lng: 0}
	tr.UpdatePosition(moved)
	second := comp.expectCall(t)
	second.respond <- routeFor(second.origin)

	// Give the run loop time to publish both; the stale one must be gone.
	time.Sleep(100 * time.Millisecond)
	u := expectRoute(t, tr)
	if u.PlannedFrom != moved {
		t.Fatalf("unread stale route must be replaced, got %+v", u.PlannedFrom)
	}
}
