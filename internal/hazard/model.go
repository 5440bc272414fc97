package hazard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/crisisgrid/backend/internal/geo"
	"github.com/crisisgrid/backend/internal/models"
)

// A flood polygon blocks routing only above this severity; roadblocks
// always block.
const BlockingSeverity = 3

// Blocking reports whether the hazard invalidates routes crossing it.
func Blocking(h models.Hazard) bool {
	if !h.Active {
		return false
	}
	switch h.Kind {
	case models.HazardFlood:
		return h.Severity > BlockingSeverity
	case models.HazardRoadblock:
		return true
	}
	return false
}

// Intersects tests a path against every hazard in the set and returns the
// first blocking hazard crossed, if any.
func Intersects(path []models.Waypoint, hazards []models.Hazard) (models.Hazard, bool) {
	for _, h := range hazards {
		if !Blocking(h) {
			continue
		}
		switch h.Kind {
		case models.HazardFlood:
			if geo.PathIntersectsRing(path, h.Ring) {
				return h, true
			}
		case models.HazardRoadblock:
			if geo.PathIntersectsLine(path, h.Line) {
				return h, true
			}
		}
	}
	return models.Hazard{}, false
}

// Lister provides the current active hazard set, typically backed by the
// hazard store.
type Lister interface {
	ListActiveHazards(ctx context.Context) ([]models.Hazard, error)
}

// Model holds the latest snapshot of active hazards and publishes a change
// signal to subscribers whenever the set is replaced. Trackers subscribe
// and re-fetch; nothing polls the model itself.
type Model struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	hazards  []models.Hazard
	subs     []chan struct{}
}

func NewModel(logger zerolog.Logger) *Model {
	return &Model{logger: logger}
}

// Snapshot returns the current active hazard set. The returned slice must
// be treated as read-only.
func (m *Model) Snapshot() []models.Hazard {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hazards
}

// SetSnapshot replaces the hazard set wholesale and notifies subscribers.
func (m *Model) SetSnapshot(hazards []models.Hazard) {
	m.mu.Lock()
	m.hazards = hazards
	subs := make([]chan struct{}, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Debug().Int("hazards", len(hazards)).Msg("hazard snapshot replaced")
	for _, ch := range subs {
		// Buffered size 1: a pending signal already queued is enough.
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a channel that receives a signal after every snapshot
// change, plus a cancel func that removes the registration. Signals
// coalesce; subscribers re-fetch via Snapshot. Callers must cancel when
// done or the registration is signaled forever.
func (m *Model) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, c := range m.subs {
			if c == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

// Refresh fetches the active hazard set from the lister and installs it,
// notifying subscribers only when the set actually changed.
func (m *Model) Refresh(ctx context.Context, lister Lister) error {
	hazards, err := lister.ListActiveHazards(ctx)
	if err != nil {
		return err
	}
	m.mu.RLock()
	same := sameSet(m.hazards, hazards)
	m.mu.RUnlock()
	if same {
		return nil
	}
	m.SetSnapshot(hazards)
	return nil
}

func sameSet(a, b []models.Hazard) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Active != b[i].Active || a[i].Severity != b[i].Severity {
			return false
		}
	}
	return true
}

// Run polls the lister until the context is canceled. Authority edits that
// go through this process call SetSnapshot directly; the poll covers edits
// made elsewhere.
func (m *Model) Run(ctx context.Context, lister Lister, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Refresh(ctx, lister); err != nil {
				m.logger.Warn().Err(err).Msg("hazard refresh failed")
			}
		}
	}
}
