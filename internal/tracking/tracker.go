package tracking

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/crisisgrid/backend/internal/geo"
	"github.com/crisisgrid/backend/internal/hazard"
	"github.com/crisisgrid/backend/internal/models"
	"github.com/crisisgrid/backend/internal/routing"
)

// SignificantMoveM is the minimum agent displacement from the last
// planned origin before movement alone triggers a replan.
const SignificantMoveM = 30.0

// Legs of an assigned mission, as seen by the tracker.
const (
	LegToPickup  = 1
	LegToDropoff = 2
)

// Computer produces hazard-validated routes. *routing.Planner satisfies
// it; tests substitute a scripted implementation.
type Computer interface {
	ComputeMissionRoute(ctx context.Context, agentPos, pickup, dropoff models.Waypoint, vehicle models.VehicleType, hazards []models.Hazard) (models.MissionRoute, error)
	ComputeLeg(ctx context.Context, profile string, origin, destination models.Waypoint, hazards []models.Hazard) (models.RouteLeg, error)
}

// RouteUpdate is a freshly planned route for the mission, tagged with the
// leg it covers and the origin it was planned from.
type RouteUpdate struct {
	Route       models.MissionRoute
	Leg         int
	PlannedFrom models.Waypoint
}

type computeResult struct {
	gen    uint64
	update RouteUpdate
	err    error
}

// Tracker follows one agent through one assigned mission. A single Run
// goroutine owns all state; position reports and hazard signals arrive on
// coalescing channels, and every replan trigger supersedes the previous
// one. Exactly the newest requested route is ever published.
type Tracker struct {
	MissionID string
	AgentID   string
	Vehicle   models.VehicleType
	Pickup    models.Waypoint
	Dropoff   models.Waypoint

	Computer Computer
	Hazards  *hazard.Model
	Logger   zerolog.Logger

	positions chan models.Waypoint
	pickedUp  chan struct{}
	routes    chan RouteUpdate
}

func NewTracker(missionID, agentID string, vehicle models.VehicleType, pickup, dropoff models.Waypoint, computer Computer, hazards *hazard.Model, logger zerolog.Logger) *Tracker {
	return &Tracker{
		MissionID: missionID,
		AgentID:   agentID,
		Vehicle:   vehicle,
		Pickup:    pickup,
		Dropoff:   dropoff,
		Computer:  computer,
		Hazards:   hazards,
		Logger:    logger.With().Str("mission_id", missionID).Str("agent_id", agentID).Logger(),
		positions: make(chan models.Waypoint, 1),
		pickedUp:  make(chan struct{}, 1),
		routes:    make(chan RouteUpdate, 1),
	}
}

// UpdatePosition reports the agent's latest location, typically the
// interpolated point along the animated path. Reports coalesce: only the
// newest unprocessed position matters.
func (t *Tracker) UpdatePosition(p models.Waypoint) {
	for {
		select {
		case t.positions <- p:
			return
		default:
		}
		select {
		case <-t.positions:
		default:
		}
	}
}

// MarkPickedUp switches the tracker to the dropoff leg.
func (t *Tracker) MarkPickedUp() {
	select {
	case t.pickedUp <- struct{}{}:
	default:
	}
}

// Routes delivers planned routes, newest only: an unread stale route is
// replaced, never queued behind.
func (t *Tracker) Routes() <-chan RouteUpdate {
	return t.routes
}

func (t *Tracker) publish(u RouteUpdate) {
	for {
		select {
		case t.routes <- u:
			return
		default:
		}
		select {
		case <-t.routes:
		default:
		}
	}
}

// Run drives the tracker until ctx is canceled. start is the agent
// position the initial route is planned from.
func (t *Tracker) Run(ctx context.Context, start models.Waypoint) {
	hazardCh, unsubscribe := t.Hazards.Subscribe()
	defer unsubscribe()
	results := make(chan computeResult, 1)

	var (
		gen        uint64
		cancelPrev context.CancelFunc
		cur        = start
		lastOrigin = start
		leg        = LegToPickup
		anim       *Animator
		animStart  time.Time
	)
	defer func() {
		if cancelPrev != nil {
			cancelPrev()
		}
	}()

	trigger := func(origin models.Waypoint, reason string) {
		if cancelPrev != nil {
			cancelPrev()
		}
		gen++
		lastOrigin = origin
		cctx, cancel := context.WithCancel(ctx)
		cancelPrev = cancel
		t.Logger.Debug().Uint64("gen", gen).Int("leg", leg).Str("reason", reason).Msg("replan triggered")
		go t.compute(cctx, gen, leg, origin, results)
	}

	trigger(start, "initial")

	for {
		select {
		case <-ctx.Done():
			return

		case p := <-t.positions:
			cur = p
			// Movement alone only replans the approach leg; after
			// pickup the agent is already on the committed path.
			if leg == LegToPickup && geo.HaversineM(p, lastOrigin) >= SignificantMoveM {
				trigger(p, "moved")
			}

		case <-t.pickedUp:
			leg = LegToDropoff
			trigger(cur, "picked up")

		case <-hazardCh:
			// The agent is moving along the published route between
			// discrete reports, so replan from the interpolated point,
			// not the last report.
			origin := cur
			if anim != nil && anim.Duration() > 0 {
				origin = anim.FrameAt(time.Since(animStart)).Pos
			}
			trigger(origin, "hazards changed")

		case r := <-results:
			if r.gen != gen {
				continue // superseded while in flight
			}
			if r.err != nil {
				t.Logger.Warn().Err(r.err).Msg("replan failed, keeping previous route")
				continue
			}
			t.publish(r.update)
			anim = NewAnimator(r.update.Route, t.Vehicle)
			animStart = time.Now()
		}
	}
}

func (t *Tracker) compute(ctx context.Context, gen uint64, leg int, origin models.Waypoint, results chan<- computeResult) {
	hazards := t.Hazards.Snapshot()

	var (
		route models.MissionRoute
		err   error
	)
	if leg == LegToPickup {
		route, err = t.Computer.ComputeMissionRoute(ctx, origin, t.Pickup, t.Dropoff, t.Vehicle, hazards)
	} else {
		var l models.RouteLeg
		l, err = t.Computer.ComputeLeg(ctx, routing.Profile(t.Vehicle), origin, t.Dropoff, hazards)
		if err == nil {
			route = models.MissionRoute{
				Leg2:           l,
				TotalDistanceM: l.DistanceM,
				TotalDurationS: l.DurationS,
				Rerouted:       l.Rerouted,
				Warning:        l.Warning,
			}
		}
	}

	r := computeResult{gen: gen, err: err}
	if err == nil {
		r.update = RouteUpdate{Route: route, Leg: leg, PlannedFrom: origin}
	}
	select {
	case results <- r:
	case <-ctx.Done():
	}
}
