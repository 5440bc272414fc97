package tracking

import (
	"time"

	"github.com/crisisgrid/backend/internal/geo"
	"github.com/crisisgrid/backend/internal/models"
	"github.com/crisisgrid/backend/internal/routing"
)

// stepPerPoint is the nominal animation time spent per path point at the
// reference (car) speed. Vehicle speed factors scale it.
const stepPerPoint = 150 * time.Millisecond

// Frame is one rendered moment of the animated delivery.
type Frame struct {
	Pos     models.Waypoint `json:"pos"`
	Heading float64         `json:"heading"`
	Leg     int             `json:"leg"`
	Done    bool            `json:"done"`
}

type animLeg struct {
	num  int
	path []models.Waypoint
	dur  time.Duration
}

// Animator plays a planned mission route as a smooth movement along its
// path points. It is pure: FrameAt maps elapsed time to a position, so
// callers own the clock and the tick rate.
type Animator struct {
	legs []animLeg
}

func legDuration(points int, factor float64) time.Duration {
	if points < 2 || factor <= 0 {
		return 0
	}
	return time.Duration(float64(stepPerPoint) * float64(points-1) / factor)
}

func NewAnimator(route models.MissionRoute, vehicle models.VehicleType) *Animator {
	factor := routing.SpeedFactor(vehicle)
	a := &Animator{}
	// Build in leg order; a route may carry only its second leg after
	// pickup.
	if len(route.Leg1.Path) >= 2 {
		a.legs = append(a.legs, animLeg{num: LegToPickup, path: route.Leg1.Path, dur: legDuration(len(route.Leg1.Path), factor)})
	}
	if len(route.Leg2.Path) >= 2 {
		a.legs = append(a.legs, animLeg{num: LegToDropoff, path: route.Leg2.Path, dur: legDuration(len(route.Leg2.Path), factor)})
	}
	return a
}

// Duration is the total animation time across both legs.
func (a *Animator) Duration() time.Duration {
	var total time.Duration
	for _, l := range a.legs {
		total += l.dur
	}
	return total
}

// FrameAt maps elapsed animation time to a position and heading. Elapsed
// past the total duration pins the frame to the final point with Done set.
func (a *Animator) FrameAt(elapsed time.Duration) Frame {
	if len(a.legs) == 0 {
		return Frame{Done: true}
	}
	for _, l := range a.legs {
		if elapsed >= l.dur {
			elapsed -= l.dur
			continue
		}
		// Equal time per segment within the leg, matching the
		// point-stepping playback the route consumer renders.
		segs := len(l.path) - 1
		exact := float64(elapsed) / float64(l.dur) * float64(segs)
		i := int(exact)
		if i >= segs {
			i = segs - 1
		}
		frac := exact - float64(i)
		return Frame{
			Pos:     geo.Lerp(l.path[i], l.path[i+1], frac),
			Heading: geo.Bearing(l.path[i], l.path[i+1]),
			Leg:     l.num,
		}
	}

	last := a.legs[len(a.legs)-1]
	return Frame{
		Pos:     last.path[len(last.path)-1],
		Heading: geo.Bearing(last.path[len(last.path)-2], last.path[len(last.path)-1]),
		Leg:     last.num,
		Done:    true,
	}
}
