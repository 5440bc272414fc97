package mission

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/crisisgrid/backend/internal/models"
	"github.com/crisisgrid/backend/internal/notify"
	"github.com/crisisgrid/backend/internal/ranking"
)

var (
	ErrExpired           = errors.New("mission: food expired")
	ErrInvalidTransition = errors.New("mission: invalid status transition")
)

// Store is the mission persistence surface the service needs. All
// transition methods are conditional updates: they fail with the store's
// conflict error when the mission is not in the expected state.
type Store interface {
	GetMission(ctx context.Context, id string) (models.Mission, error)
	ListOpenMissions(ctx context.Context) ([]models.Mission, error)
	ClaimMission(ctx context.Context, missionID, ngoID string, dropoff *models.Waypoint) error
	ReleaseMission(ctx context.Context, missionID, ngoID string) error
	AcceptMission(ctx context.Context, missionID, agentID string, vehicle models.VehicleType) error
	AdvanceMission(ctx context.Context, missionID, agentID string, from, to models.DeliveryStatus) error
	ReleaseExpiredMissions(ctx context.Context) ([]models.Mission, error)
}

// nextAfter is the delivery chain once an agent holds the mission. Any
// target not in this map, or reached from the wrong predecessor, is an
// invalid transition.
var nextAfter = map[models.DeliveryStatus]models.DeliveryStatus{
	models.StatusAcceptedByDelivery: models.StatusPickedUp,
	models.StatusPickedUp:           models.StatusDelivered,
}

// Service enforces the mission lifecycle on top of the store's conditional
// updates and emits a notification per successful transition.
type Service struct {
	Store    Store
	Notifier notify.Notifier
	Logger   zerolog.Logger
}

// RankedPool scores the open mission pool for an agent. A nil base means
// the agent has not reported a position yet; urgency factors still apply.
func (s *Service) RankedPool(ctx context.Context, agentBase *models.Waypoint) ([]ranking.RankedMission, error) {
	missions, err := s.Store.ListOpenMissions(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(missions, agentBase, time.Now().UTC()), nil
}

// Claim reserves an available mission for an NGO. Expired food is refused
// up front; the conditional update settles races on the status itself.
func (s *Service) Claim(ctx context.Context, missionID, ngoID string, dropoff *models.Waypoint) (models.Mission, error) {
	m, err := s.Store.GetMission(ctx, missionID)
	if err != nil {
		return models.Mission{}, err
	}
	if m.ExpiryTime != nil && !m.ExpiryTime.After(time.Now().UTC()) {
		return models.Mission{}, ErrExpired
	}
	if err := s.Store.ClaimMission(ctx, missionID, ngoID, dropoff); err != nil {
		return models.Mission{}, err
	}
	m, err = s.Store.GetMission(ctx, missionID)
	if err != nil {
		return models.Mission{}, err
	}
	s.Notifier.MissionClaimed(ctx, m)
	return m, nil
}

// Release puts a claimed mission back in the pool. Allowed only while the
// mission is still waiting for a transport agent.
func (s *Service) Release(ctx context.Context, missionID, ngoID string) (models.Mission, error) {
	if err := s.Store.ReleaseMission(ctx, missionID, ngoID); err != nil {
		return models.Mission{}, err
	}
	m, err := s.Store.GetMission(ctx, missionID)
	if err != nil {
		return models.Mission{}, err
	}
	s.Notifier.MissionReleased(ctx, m)
	return m, nil
}

// Accept assigns the mission to a transport agent with the given vehicle.
func (s *Service) Accept(ctx context.Context, missionID, agentID string, vehicle models.VehicleType) (models.Mission, error) {
	if err := s.Store.AcceptMission(ctx, missionID, agentID, vehicle); err != nil {
		return models.Mission{}, err
	}
	m, err := s.Store.GetMission(ctx, missionID)
	if err != nil {
		return models.Mission{}, err
	}
	s.Notifier.MissionAccepted(ctx, m)
	return m, nil
}

// SweepExpired returns expired waiting missions to the pool and notifies
// their claimants. Runs periodically from the server loop.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	released, err := s.Store.ReleaseExpiredMissions(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range released {
		s.Notifier.MissionReleased(ctx, m)
	}
	if len(released) > 0 {
		s.Logger.Info().Int("released", len(released)).Msg("expired missions returned to pool")
	}
	return len(released), nil
}

// Advance moves the mission to the requested status. The expected
// predecessor is derived from the chain, so a stale or repeated request
// surfaces as a conflict rather than a silent overwrite.
func (s *Service) Advance(ctx context.Context, missionID, agentID string, to models.DeliveryStatus) (models.Mission, error) {
	var from models.DeliveryStatus
	found := false
	for prev, next := range nextAfter {
		if next == to {
			from, found = prev, true
			break
		}
	}
	if !found {
		return models.Mission{}, ErrInvalidTransition
	}
	if err := s.Store.AdvanceMission(ctx, missionID, agentID, from, to); err != nil {
		return models.Mission{}, err
	}
	m, err := s.Store.GetMission(ctx, missionID)
	if err != nil {
		return models.Mission{}, err
	}
	s.Notifier.MissionStatusChanged(ctx, m)
	return m, nil
}
