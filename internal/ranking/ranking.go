package ranking

import (
	"sort"
	"time"

	"github.com/crisisgrid/backend/internal/geo"
	"github.com/crisisgrid/backend/internal/models"
)

// Factor weights: wait dominates, perishability next, impact efficiency
// last.
const (
	weightWait   = 0.5
	weightPerish = 0.3
	weightImpact = 0.2
)

// Missions without a deadline get a generous horizon so they rank behind
// anything genuinely perishable.
const defaultHorizonHours = 72.0

// impactSentinel stands in for impact-per-distance when the agent base or
// dropoff coordinate is missing, or servings is not positive. It is the
// worst value in any batch, never a division fault.
const impactSentinel = 1e9

// RankedMission is a mission annotated with its priority score and
// 1-based rank.
type RankedMission struct {
	models.Mission
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

type factors struct {
	impactPerKm    float64
	hoursRemaining float64
	claimWaitHours float64
}

func rawFactors(m models.Mission, agentBase *models.Waypoint, now time.Time) factors {
	f := factors{
		impactPerKm:    impactSentinel,
		hoursRemaining: defaultHorizonHours,
	}

	if agentBase != nil && m.Dropoff != nil && m.Servings > 0 {
		toPickupKm := geo.HaversineM(*agentBase, m.Pickup) / 1000
		toDropKm := geo.HaversineM(m.Pickup, *m.Dropoff) / 1000
		f.impactPerKm = (toPickupKm + toDropKm) / float64(m.Servings)
	}

	if m.ExpiryTime != nil {
		remaining := m.ExpiryTime.Sub(now).Hours()
		if remaining < 0 {
			remaining = 0
		}
		f.hoursRemaining = remaining
	}

	if !m.ClaimedAt.IsZero() {
		wait := now.Sub(m.ClaimedAt).Hours()
		if wait > 0 {
			f.claimWaitHours = wait
		}
	}

	return f
}

// normalize min-max scales values into [0,1] across the batch; a batch of
// equal values normalizes to all zeros.
func normalize(values []float64) []float64 {
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(values))
	if max == min {
		return out
	}
	for i, v := range values {
		out[i] = (v - min) / (max - min)
	}
	return out
}

// Rank scores the open missions for an agent and returns them in priority
// order with 1-based ranks. Scores are recomputed from scratch on every
// call; ties keep the input order so identical inputs rank identically.
func Rank(missions []models.Mission, agentBase *models.Waypoint, now time.Time) []RankedMission {
	if len(missions) == 0 {
		return nil
	}

	impact := make([]float64, len(missions))
	remaining := make([]float64, len(missions))
	wait := make([]float64, len(missions))
	for i, m := range missions {
		f := rawFactors(m, agentBase, now)
		impact[i] = f.impactPerKm
		remaining[i] = f.hoursRemaining
		wait[i] = f.claimWaitHours
	}

	impactN := normalize(impact)
	remainingN := normalize(remaining)
	waitN := normalize(wait)

	ranked := make([]RankedMission, len(missions))
	for i, m := range missions {
		// Longer waits and shorter remaining windows are more urgent;
		// high distance-per-serving is penalized.
		waitUrgency := waitN[i]
		perishUrgency := 1 - remainingN[i]
		impactUrgency := 1 - impactN[i]

		ranked[i] = RankedMission{
			Mission: m,
			Score:   weightWait*waitUrgency + weightPerish*perishUrgency + weightImpact*impactUrgency,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
