package tracking

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/crisisgrid/backend/internal/hazard"
	"github.com/crisisgrid/backend/internal/models"
)

var ErrNoDropoff = errors.New("tracking: mission has no dropoff coordinate")

type running struct {
	tracker *Tracker
	cancel  context.CancelFunc
}

// Hub owns the live trackers, one per transport agent. Starting a new
// mission for an agent supersedes any tracker already running for them.
// Trackers live on the hub's base context, not the request that started
// them.
type Hub struct {
	Computer Computer
	Hazards  *hazard.Model
	Logger   zerolog.Logger

	base     context.Context
	mu       sync.Mutex
	trackers map[string]running
}

func NewHub(ctx context.Context, computer Computer, hazards *hazard.Model, logger zerolog.Logger) *Hub {
	return &Hub{
		Computer: computer,
		Hazards:  hazards,
		Logger:   logger,
		base:     ctx,
		trackers: map[string]running{},
	}
}

// Start launches a tracker for the agent's assigned mission, planning the
// first route from start. An existing tracker for the agent is stopped.
func (h *Hub) Start(m models.Mission, agentID string, start models.Waypoint) (*Tracker, error) {
	if m.Dropoff == nil {
		return nil, ErrNoDropoff
	}

	t := NewTracker(m.ID, agentID, m.Vehicle, m.Pickup, *m.Dropoff, h.Computer, h.Hazards, h.Logger)
	tctx, cancel := context.WithCancel(h.base)

	h.mu.Lock()
	if prev, ok := h.trackers[agentID]; ok {
		prev.cancel()
	}
	h.trackers[agentID] = running{tracker: t, cancel: cancel}
	h.mu.Unlock()

	go t.Run(tctx, start)
	return t, nil
}

func (h *Hub) Get(agentID string) (*Tracker, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.trackers[agentID]
	if !ok {
		return nil, false
	}
	return r.tracker, true
}

func (h *Hub) Stop(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.trackers[agentID]; ok {
		r.cancel()
		delete(h.trackers, agentID)
	}
}

func (h *Hub) StopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, r := range h.trackers {
		r.cancel()
		delete(h.trackers, id)
	}
}
