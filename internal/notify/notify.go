package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/crisisgrid/backend/internal/models"
)

// Notifier publishes mission lifecycle events to interested parties
// (donor, NGO, transport agent). Delivery is best effort; a failed
// notification never fails the transition that produced it.
type Notifier interface {
	MissionClaimed(ctx context.Context, m models.Mission)
	MissionReleased(ctx context.Context, m models.Mission)
	MissionAccepted(ctx context.Context, m models.Mission)
	MissionStatusChanged(ctx context.Context, m models.Mission)
}

// LogNotifier writes lifecycle events to the structured log. It is the
// default sink; external channels plug in behind the same interface.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) event(m models.Mission, event string) *zerolog.Event {
	e := n.Logger.Info().
		Str("event", event).
		Str("mission_id", m.ID).
		Str("status", string(m.DeliveryStatus))
	if m.AgentID != nil {
		e = e.Str("agent_id", *m.AgentID)
	}
	return e
}

func (n LogNotifier) MissionClaimed(_ context.Context, m models.Mission) {
	n.event(m, "mission_claimed").Str("ngo_id", m.ClaimedBy).Msg("mission claimed")
}

func (n LogNotifier) MissionReleased(_ context.Context, m models.Mission) {
	n.event(m, "mission_released").Msg("mission released back to pool")
}

func (n LogNotifier) MissionAccepted(_ context.Context, m models.Mission) {
	n.event(m, "mission_accepted").Msg("mission accepted by transport agent")
}

func (n LogNotifier) MissionStatusChanged(_ context.Context, m models.Mission) {
	n.event(m, "mission_status").Msg("mission status advanced")
}
