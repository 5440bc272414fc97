package hazard

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/crisisgrid/backend/internal/models"
)

func floodRing() []models.Waypoint {
	return []models.Waypoint{
		{Lat: 1, Lng: 1}, {Lat: 1, Lng: 3}, {Lat: 3, Lng: 3}, {Lat: 3, Lng: 1},
	}
}

func pathThrough() []models.Waypoint {
	return []models.Waypoint{{Lat: 0, Lng: 0}, {Lat: 4, Lng: 4}}
}

func TestFloodSeverityThreshold(t *testing.T) {
	path := pathThrough()

	mild := models.Hazard{ID: "h1", Kind: models.HazardFlood, Ring: floodRing(), Severity: 3, Active: true}
	if _, blocked := Intersects(path, []models.Hazard{mild}); blocked {
		t.Fatalf("severity 3 flood must not block")
	}

	severe := mild
	severe.Severity = 4
	got, blocked := Intersects(path, []models.Hazard{severe})
	if !blocked {
		t.Fatalf("severity 4 flood crossing the path must block")
	}
	if got.ID != "h1" {
		t.Fatalf("expected blocking hazard h1, got %s", got.ID)
	}
}

func TestRoadblockAlwaysBlocks(t *testing.T) {
	block := models.Hazard{
		ID:   "r1",
		Kind: models.HazardRoadblock,
		Line: []models.Waypoint{{Lat: 0, Lng: 2}, {Lat: 4, Lng: 2}},
		Active: true,
	}
	if _, blocked := Intersects(pathThrough(), []models.Hazard{block}); !blocked {
		t.Fatalf("roadblock crossing the path must block")
	}
}

func TestInactiveHazardIgnored(t *testing.T) {
	inactive := models.Hazard{ID: "h2", Kind: models.HazardFlood, Ring: floodRing(), Severity: 5, Active: false}
	if _, blocked := Intersects(pathThrough(), []models.Hazard{inactive}); blocked {
		t.Fatalf("inactive hazard must be excluded from tests")
	}
}

func TestIntersectsReturnsFirstMatch(t *testing.T) {
	first := models.Hazard{ID: "a", Kind: models.HazardRoadblock, Line: []models.Waypoint{{Lat: 0, Lng: 1}, {Lat: 4, Lng: 1}}, Active: true}
	second := models.Hazard{ID: "b", Kind: models.HazardRoadblock, Line: []models.Waypoint{{Lat: 0, Lng: 3}, {Lat: 4, Lng: 3}}, Active: true}

	got, blocked := Intersects(pathThrough(), []models.Hazard{first, second})
	if !blocked || got.ID != "a" {
		t.Fatalf("expected first hazard a, got %v blocked=%v", got.ID, blocked)
	}
}

func TestSubscribeSignalsOnSnapshotChange(t *testing.T) {
	m := NewModel(zerolog.Nop())
	ch, cancel := m.Subscribe()
	defer cancel()

	m.SetSnapshot([]models.Hazard{{ID: "h1", Active: true}})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected change signal after SetSnapshot")
	}

	if got := m.Snapshot(); len(got) != 1 || got[0].ID != "h1" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestSubscribeCoalescesSignals(t *testing.T) {
	m := NewModel(zerolog.Nop())
	ch, cancel := m.Subscribe()
	defer cancel()

	m.SetSnapshot(nil)
	m.SetSnapshot([]models.Hazard{{ID: "h1"}})
	m.SetSnapshot([]models.Hazard{{ID: "h2"}})

	<-ch
	select {
	case <-ch:
		t.Fatalf("signals must coalesce into at most one pending")
	default:
	}
}

func TestUnsubscribeReleasesRegistration(t *testing.T) {
	m := NewModel(zerolog.Nop())

	// Churn through many short-lived subscribers, like trackers that
	// finish their missions; nothing may be left registered.
	for i := 0; i < 1000; i++ {
		_, cancel := m.Subscribe()
		cancel()
	}
	m.mu.Lock()
	left := len(m.subs)
	m.mu.Unlock()
	if left != 0 {
		t.Fatalf("expected no registrations after cancel, got %d", left)
	}

	ch, cancel := m.Subscribe()
	cancel()
	cancel() // repeat cancel is a no-op

	m.SetSnapshot([]models.Hazard{{ID: "h1", Active: true}})
	select {
	case <-ch:
		t.Fatalf("canceled subscription must not be signaled")
	default:
	}

	// A live subscriber still works after others unsubscribed.
	live, liveCancel := m.Subscribe()
	defer liveCancel()
	m.SetSnapshot([]models.Hazard{{ID: "h2", Active: true}})
	select {
	case <-live:
	case <-time.After(time.Second):
		t.Fatalf("expected signal on the remaining subscription")
	}
}
