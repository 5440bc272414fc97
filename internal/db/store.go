package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crisisgrid/backend/internal/models"
)

var (
	ErrNotFound = errors.New("db: row not found")
	// ErrConflict means the conditional update matched no row: someone
	// else transitioned the mission first.
	ErrConflict = errors.New("db: mission state conflict")
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const missionColumns = `id, food_name, servings, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	expiry_time, claimed_by, claimed_at, delivery_status, agent_id, donor_id, vehicle, created_at`

func scanMission(row pgx.Row) (models.Mission, error) {
	var (
		m          models.Mission
		dropLat    *float64
		dropLng    *float64
		claimedBy  *string
		claimedAt  *time.Time
		vehicle    *string
	)
	err := row.Scan(
		&m.ID, &m.FoodName, &m.Servings, &m.Pickup.Lat, &m.Pickup.Lng, &dropLat, &dropLng,
		&m.ExpiryTime, &claimedBy, &claimedAt, &m.DeliveryStatus, &m.AgentID, &m.DonorID, &vehicle, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Mission{}, ErrNotFound
		}
		return models.Mission{}, err
	}
	if dropLat != nil && dropLng != nil {
		m.Dropoff = &models.Waypoint{Lat: *dropLat, Lng: *dropLng}
	}
	if claimedBy != nil {
		m.ClaimedBy = *claimedBy
	}
	if claimedAt != nil {
		m.ClaimedAt = *claimedAt
	}
	if vehicle != nil {
		m.Vehicle = models.VehicleType(*vehicle)
	}
	return m, nil
}

func (s *Store) GetMission(ctx context.Context, id string) (models.Mission, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = $1`, id)
	return scanMission(row)
}

// ListOpenMissions returns claimed missions still waiting for a transport
// agent, oldest claim first. This is the pool the ranking engine scores.
func (s *Store) ListOpenMissions(ctx context.Context) ([]models.Mission, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+missionColumns+`
		FROM missions
		WHERE delivery_status = $1 AND (expiry_time IS NULL OR expiry_time > NOW())
		ORDER BY claimed_at ASC`, models.StatusWaitingForDelivery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListAgentMissions returns missions currently assigned to the agent,
// excluding delivered ones.
func (s *Store) ListAgentMissions(ctx context.Context, agentID string) ([]models.Mission, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+missionColumns+`
		FROM missions
		WHERE agent_id = $1 AND delivery_status != $2
		ORDER BY claimed_at ASC`, agentID, models.StatusDelivered)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListAgentHistory returns the agent's delivered missions, newest first.
func (s *Store) ListAgentHistory(ctx context.Context, agentID string, limit int) ([]models.Mission, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+missionColumns+`
		FROM missions
		WHERE agent_id = $1 AND delivery_status = $2
		ORDER BY created_at DESC LIMIT $3`, agentID, models.StatusDelivered, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// conditionalUpdate runs the UPDATE and maps "no row matched" to either
// ErrNotFound (mission absent) or ErrConflict (mission in another state).
func (s *Store) conditionalUpdate(ctx context.Context, missionID, query string, args ...any) error {
	tag, err := s.Pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM missions WHERE id = $1)`, missionID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// ClaimMission atomically claims an available mission for an NGO. The
// status predicate in the WHERE clause is the entire concurrency story:
// two racing claims cannot both match.
func (s *Store) ClaimMission(ctx context.Context, missionID, ngoID string, dropoff *models.Waypoint) error {
	var dropLat, dropLng *float64
	if dropoff != nil {
		dropLat, dropLng = &dropoff.Lat, &dropoff.Lng
	}
	return s.conditionalUpdate(ctx, missionID, `
		UPDATE missions
		SET claimed_by = $1, claimed_at = NOW(), delivery_status = $2,
			dropoff_lat = $3, dropoff_lng = $4
		WHERE id = $5 AND delivery_status = $6
	`, ngoID, models.StatusWaitingForDelivery, dropLat, dropLng, missionID, models.StatusAvailable)
}

// ReleaseMission returns a claimed mission to the pool. Only the claiming
// NGO may release, and only before a transport agent accepts.
func (s *Store) ReleaseMission(ctx context.Context, missionID, ngoID string) error {
	return s.conditionalUpdate(ctx, missionID, `
		UPDATE missions
		SET claimed_by = NULL, claimed_at = NULL, delivery_status = $1,
			dropoff_lat = NULL, dropoff_lng = NULL
		WHERE id = $2 AND delivery_status = $3 AND claimed_by = $4
	`, models.StatusAvailable, missionID, models.StatusWaitingForDelivery, ngoID)
}

// AcceptMission assigns a transport agent to a waiting mission.
func (s *Store) AcceptMission(ctx context.Context, missionID, agentID string, vehicle models.VehicleType) error {
	return s.conditionalUpdate(ctx, missionID, `
		UPDATE missions
		SET agent_id = $1, vehicle = $2, delivery_status = $3
		WHERE id = $4 AND delivery_status = $5 AND agent_id IS NULL
	`, agentID, string(vehicle), models.StatusAcceptedByDelivery, missionID, models.StatusWaitingForDelivery)
}

// AdvanceMission moves the mission one step along the delivery chain. The
// expected current status guards against replays and out-of-order updates.
func (s *Store) AdvanceMission(ctx context.Context, missionID, agentID string, from, to models.DeliveryStatus) error {
	return s.conditionalUpdate(ctx, missionID, `
		UPDATE missions
		SET delivery_status = $1
		WHERE id = $2 AND delivery_status = $3 AND agent_id = $4
	`, to, missionID, from, agentID)
}

// ReleaseExpiredMissions returns claimed-but-unaccepted missions whose
// food has expired back to the available pool and reports which missions
// were released. Select and update share one transaction so a concurrent
// accept cannot slip between them.
func (s *Store) ReleaseExpiredMissions(ctx context.Context) ([]models.Mission, error) {
	var out []models.Mission
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+missionColumns+` FROM missions
			WHERE delivery_status = $1 AND expiry_time IS NOT NULL AND expiry_time <= NOW()
			FOR UPDATE`, models.StatusWaitingForDelivery)
		if err != nil {
			return err
		}
		for rows.Next() {
			m, err := scanMission(rows)
			if err != nil {
				rows.Close()
				return err
			}
			out = append(out, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}

		ids := make([]string, len(out))
		for i, m := range out {
			ids[i] = m.ID
		}
		_, err = tx.Exec(ctx, `UPDATE missions
			SET claimed_by = NULL, claimed_at = NULL, delivery_status = $1,
				dropoff_lat = NULL, dropoff_lng = NULL
			WHERE id = ANY($2)`, models.StatusAvailable, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanHazard(row pgx.Row) (models.Hazard, error) {
	var (
		h        models.Hazard
		geometry []byte
	)
	if err := row.Scan(&h.ID, &h.Kind, &geometry, &h.Severity, &h.Active, &h.Label, &h.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Hazard{}, ErrNotFound
		}
		return models.Hazard{}, err
	}
	var points []models.Waypoint
	if err := json.Unmarshal(geometry, &points); err != nil {
		return models.Hazard{}, err
	}
	if h.Kind == models.HazardFlood {
		h.Ring = points
	} else {
		h.Line = points
	}
	return h, nil
}

func (s *Store) ListActiveHazards(ctx context.Context) ([]models.Hazard, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, kind, geometry, severity, active, label, created_at
		FROM hazards WHERE active ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Hazard
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) InsertHazard(ctx context.Context, h models.Hazard) error {
	geometry, err := json.Marshal(h.Geometry())
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO hazards (id, kind, geometry, severity, active, label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, h.ID, h.Kind, geometry, h.Severity, h.Active, h.Label)
	return err
}

func (s *Store) DeactivateHazard(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE hazards SET active = FALSE WHERE id = $1 AND active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertAgentPosition records the latest reported location for an agent.
func (s *Store) UpsertAgentPosition(ctx context.Context, p models.AgentPosition) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO agent_positions (agent_id, lat, lng, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_id) DO UPDATE SET
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			updated_at = EXCLUDED.updated_at
	`, p.AgentID, p.Pos.Lat, p.Pos.Lng, p.At)
	return err
}

func (s *Store) GetAgentPosition(ctx context.Context, agentID string) (models.AgentPosition, error) {
	var p models.AgentPosition
	err := s.Pool.QueryRow(ctx, `SELECT agent_id, lat, lng, updated_at FROM agent_positions WHERE agent_id = $1`, agentID).
		Scan(&p.AgentID, &p.Pos.Lat, &p.Pos.Lng, &p.At)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AgentPosition{}, ErrNotFound
	}
	return p, err
}
