package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/crisisgrid/backend/internal/geo"
	"github.com/crisisgrid/backend/internal/hazard"
	"github.com/crisisgrid/backend/internal/models"
)

const (
	// Up to 3 bypass candidates per blocked leg, one bbox corner each.
	maxBypassAttempts = 3
	// ~300m of padding around the blocking hazard's bounding box.
	bypassPadDeg = 0.003
)

// ErrMissingLocation is returned when a route endpoint is absent; the
// orchestrator refuses to guess rather than produce a nonsensical path.
var ErrMissingLocation = errors.New("routing: mission is missing a pickup or dropoff coordinate")

// Validate checks a candidate path against the hazard snapshot and returns
// the first blocking hazard, if any.
func Validate(path []models.Waypoint, hazards []models.Hazard) (models.Hazard, bool) {
	return hazard.Intersects(path, hazards)
}

// Planner computes hazard-validated legs and two-leg mission routes.
type Planner struct {
	Oracle Oracle
	Logger zerolog.Logger
}

// bypassCandidates returns up to maxBypassAttempts waypoint lists, each
// detouring through one padded bounding-box corner of the blocking hazard.
// Corner order is the fixed SW, NW, SE subset; the search is local and
// deliberately not adaptive to hazard size.
func bypassCandidates(origin, destination models.Waypoint, blocking models.Hazard) [][]models.Waypoint {
	box := geo.BoundsOf(blocking.Geometry()).Pad(bypassPadDeg)
	corners := box.Corners()

	out := make([][]models.Waypoint, 0, maxBypassAttempts)
	for _, corner := range corners[:maxBypassAttempts] {
		out = append(out, []models.Waypoint{origin, corner, destination})
	}
	return out
}

func hazardWarning(h models.Hazard) string {
	if h.Kind == models.HazardFlood {
		return fmt.Sprintf("no safe route found: path crosses flood zone (severity %d)", h.Severity)
	}
	return "no safe route found: path crosses blocked road"
}

// ComputeLeg computes a single validated leg from origin to destination.
// A blocked direct path triggers the bypass search; the cheapest clean
// candidate wins. If nothing validates, the direct path is returned intact
// with rerouted=false and a warning naming the unavoidable hazard.
// Oracle failure propagates as an error for the caller's degraded mode.
func (p *Planner) ComputeLeg(ctx context.Context, profile string, origin, destination models.Waypoint, hazards []models.Hazard) (models.RouteLeg, error) {
	direct, err := p.Oracle.Route(ctx, profile, []models.Waypoint{origin, destination})
	if err != nil {
		return models.RouteLeg{}, err
	}

	blocking, blocked := Validate(direct.Path, hazards)
	if !blocked {
		return models.RouteLeg{
			Path:      direct.Path,
			DistanceM: direct.DistanceM,
			DurationS: direct.DurationS,
		}, nil
	}

	var clean []OracleRoute
	for _, waypoints := range bypassCandidates(origin, destination, blocking) {
		if ctx.Err() != nil {
			return models.RouteLeg{}, ctx.Err()
		}
		candidate, err := p.Oracle.Route(ctx, profile, waypoints)
		if err != nil {
			continue
		}
		if _, stillBlocked := Validate(candidate.Path, hazards); !stillBlocked {
			clean = append(clean, candidate)
		}
	}

	if len(clean) > 0 {
		sort.Slice(clean, func(i, j int) bool { return clean[i].DurationS < clean[j].DurationS })
		best := clean[0]
		kind := "road block"
		if blocking.Kind == models.HazardFlood {
			kind = "flood zone"
		}
		return models.RouteLeg{
			Path:      best.Path,
			DistanceM: best.DistanceM,
			DurationS: best.DurationS,
			Rerouted:  true,
			Warning:   "rerouted to avoid " + kind,
		}, nil
	}

	p.Logger.Warn().
		Str("hazard_id", blocking.ID).
		Str("kind", string(blocking.Kind)).
		Msg("no bypass validated, returning blocked direct path")

	return models.RouteLeg{
		Path:      direct.Path,
		DistanceM: direct.DistanceM,
		DurationS: direct.DurationS,
		Rerouted:  false,
		Warning:   hazardWarning(blocking),
	}, nil
}

// straightLeg is the degraded fallback when the oracle fails outright:
// a direct line between the endpoints with zero metrics and no hazard
// validation, visibly flagged so the consumer cannot mistake it for a
// verified route.
func straightLeg(origin, destination models.Waypoint) models.RouteLeg {
	return models.RouteLeg{
		Path:    []models.Waypoint{origin, destination},
		Warning: "routing service unavailable: showing unverified direct line",
	}
}

// ComputeMissionRoute builds the full two-leg route for a mission. The two
// legs share only the hazard snapshot, so they are computed concurrently.
func (p *Planner) ComputeMissionRoute(ctx context.Context, agentPos, pickup, dropoff models.Waypoint, vehicle models.VehicleType, hazards []models.Hazard) (models.MissionRoute, error) {
	profile := Profile(vehicle)

	active := make([]models.Hazard, 0, len(hazards))
	for _, h := range hazards {
		if h.Active {
			active = append(active, h)
		}
	}

	var leg1, leg2 models.RouteLeg
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		leg, err := p.ComputeLeg(gctx, profile, agentPos, pickup, active)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.Logger.Warn().Err(err).Msg("leg 1 oracle failure, using straight-line fallback")
			leg = straightLeg(agentPos, pickup)
		}
		leg1 = leg
		return nil
	})
	g.Go(func() error {
		leg, err := p.ComputeLeg(gctx, profile, pickup, dropoff, active)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.Logger.Warn().Err(err).Msg("leg 2 oracle failure, using straight-line fallback")
			leg = straightLeg(pickup, dropoff)
		}
		leg2 = leg
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.MissionRoute{}, err
	}

	warning := leg1.Warning
	if warning == "" {
		warning = leg2.Warning
	}

	return models.MissionRoute{
		Leg1:           leg1,
		Leg2:           leg2,
		TotalDistanceM: leg1.DistanceM + leg2.DistanceM,
		TotalDurationS: leg1.DurationS + leg2.DurationS,
		Rerouted:       leg1.Rerouted || leg2.Rerouted,
		Warning:        warning,
	}, nil
}
