package models

import "time"

// Waypoint is a geographic point, used both as routing input and as
// path-geometry output.
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type VehicleType string

const (
	VehicleBike  VehicleType = "bike"
	VehicleCar   VehicleType = "car"
	VehicleTruck VehicleType = "truck"
)

// DeliveryStatus is the mission lifecycle state. Transitions are enforced
// with conditional updates against the mission store, never blind writes.
type DeliveryStatus string

const (
	StatusAvailable          DeliveryStatus = "available"
	StatusWaitingForDelivery DeliveryStatus = "waiting_for_delivery"
	StatusAcceptedByDelivery DeliveryStatus = "accepted_by_delivery"
	StatusPickedUp           DeliveryStatus = "picked_up"
	StatusDelivered          DeliveryStatus = "delivered"
)

// Mission is a claimed donation awaiting transport from donor to NGO.
// Dropoff is nil when the claiming NGO has no registered location.
type Mission struct {
	ID             string         `json:"id"`
	FoodName       string         `json:"food_name"`
	Servings       int            `json:"servings"`
	Pickup         Waypoint       `json:"pickup"`
	Dropoff        *Waypoint      `json:"dropoff,omitempty"`
	ExpiryTime     *time.Time     `json:"expiry_time,omitempty"`
	ClaimedBy      string         `json:"claimed_by"`
	ClaimedAt      time.Time      `json:"claimed_at"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	AgentID        *string        `json:"agent_id,omitempty"`
	DonorID        string         `json:"donor_id"`
	Vehicle        VehicleType    `json:"vehicle,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type HazardKind string

const (
	HazardFlood     HazardKind = "flood"
	HazardRoadblock HazardKind = "roadblock"
)

// Hazard is a geographic obstruction. Floods carry a closed polygon ring
// and a severity 1-5; roadblocks carry an open polyline.
type Hazard struct {
	ID        string     `json:"id"`
	Kind      HazardKind `json:"kind"`
	Ring      []Waypoint `json:"ring,omitempty"`
	Line      []Waypoint `json:"line,omitempty"`
	Severity  int        `json:"severity,omitempty"`
	Active    bool       `json:"active"`
	Label     string     `json:"label,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Geometry returns the hazard's defining points regardless of kind.
func (h Hazard) Geometry() []Waypoint {
	if h.Kind == HazardFlood {
		return h.Ring
	}
	return h.Line
}

// RouteLeg is one directed segment of a mission route. A zero-metric leg
// with a warning indicates the degraded straight-line fallback.
type RouteLeg struct {
	Path      []Waypoint `json:"path"`
	DistanceM float64    `json:"distance_m"`
	DurationS float64    `json:"duration_s"`
	Rerouted  bool       `json:"rerouted"`
	Warning   string     `json:"warning,omitempty"`
}

// MissionRoute is the two-leg route for an assigned mission:
// leg 1 agent -> pickup, leg 2 pickup -> dropoff.
type MissionRoute struct {
	Leg1           RouteLeg `json:"leg1"`
	Leg2           RouteLeg `json:"leg2"`
	TotalDistanceM float64  `json:"total_distance_m"`
	TotalDurationS float64  `json:"total_duration_s"`
	Rerouted       bool     `json:"rerouted"`
	Warning        string   `json:"warning,omitempty"`
}

// AgentPosition is the most recent known location for a transport agent.
type AgentPosition struct {
	AgentID string    `json:"agent_id"`
	Pos     Waypoint  `json:"pos"`
	At      time.Time `json:"at"`
}
