package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crisisgrid/backend/internal/db"
	"github.com/crisisgrid/backend/internal/geo"
	"github.com/crisisgrid/backend/internal/hazard"
	"github.com/crisisgrid/backend/internal/mission"
	"github.com/crisisgrid/backend/internal/models"
	"github.com/crisisgrid/backend/internal/routing"
	"github.com/crisisgrid/backend/internal/tracking"
)

// Store is the persistence surface the handlers use beyond the mission
// service. *db.Store satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	GetMission(ctx context.Context, id string) (models.Mission, error)
	ListAgentMissions(ctx context.Context, agentID string) ([]models.Mission, error)
	ListAgentHistory(ctx context.Context, agentID string, limit int) ([]models.Mission, error)
	ListActiveHazards(ctx context.Context) ([]models.Hazard, error)
	InsertHazard(ctx context.Context, h models.Hazard) error
	DeactivateHazard(ctx context.Context, id string) error
	UpsertAgentPosition(ctx context.Context, p models.AgentPosition) error
	GetAgentPosition(ctx context.Context, agentID string) (models.AgentPosition, error)
}

type Handler struct {
	Store     Store
	Missions  *mission.Service
	Planner   *routing.Planner
	Hazards   *hazard.Model
	Hub       *tracking.Hub
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MissionsList returns the open mission pool ranked for the requesting
// agent. The agent's base position is optional; without it the ranking
// falls back to the urgency factors alone.
func (h *Handler) MissionsList(c *gin.Context) {
	base := queryWaypoint(c, "agent_lat", "agent_lng")
	items, err := h.Missions.RankedPool(c.Request.Context(), base)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list missions", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) MissionDetails(c *gin.Context) {
	m, err := h.Store.GetMission(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeMissionError(c, err, "Failed to get mission")
		return
	}
	c.JSON(http.StatusOK, m)
}

type ClaimRequest struct {
	NGOID   string           `json:"ngo_id" validate:"required"`
	Dropoff *models.Waypoint `json:"dropoff"`
}

func (h *Handler) Claim(c *gin.Context) {
	var req ClaimRequest
	if !h.bind(c, &req) {
		return
	}
	m, err := h.Missions.Claim(c.Request.Context(), c.Param("id"), req.NGOID, req.Dropoff)
	if err != nil {
		h.writeMissionError(c, err, "Failed to claim mission")
		return
	}
	c.JSON(http.StatusOK, m)
}

type ReleaseRequest struct {
	NGOID string `json:"ngo_id" validate:"required"`
}

func (h *Handler) Release(c *gin.Context) {
	var req ReleaseRequest
	if !h.bind(c, &req) {
		return
	}
	m, err := h.Missions.Release(c.Request.Context(), c.Param("id"), req.NGOID)
	if err != nil {
		h.writeMissionError(c, err, "Failed to release mission")
		return
	}
	c.JSON(http.StatusOK, m)
}

type AcceptRequest struct {
	AgentID string  `json:"agent_id" validate:"required"`
	Vehicle string  `json:"vehicle" validate:"required,oneof=bike car truck"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Accept assigns the mission to a transport agent and starts live
// tracking from the agent's reported position.
func (h *Handler) Accept(c *gin.Context) {
	var req AcceptRequest
	if !h.bind(c, &req) {
		return
	}
	m, err := h.Missions.Accept(c.Request.Context(), c.Param("id"), req.AgentID, models.VehicleType(req.Vehicle))
	if err != nil {
		h.writeMissionError(c, err, "Failed to accept mission")
		return
	}

	start := models.Waypoint{Lat: req.Lat, Lng: req.Lng}
	if _, err := h.Hub.Start(m, req.AgentID, start); err != nil {
		// The mission is accepted either way; tracking just cannot run
		// without a dropoff.
		h.Logger.Warn().Err(err).Str("mission_id", m.ID).Msg("tracking not started")
	}
	if err := h.Store.UpsertAgentPosition(c.Request.Context(), models.AgentPosition{
		AgentID: req.AgentID, Pos: start, At: time.Now().UTC(),
	}); err != nil {
		h.Logger.Warn().Err(err).Msg("failed to record agent position")
	}
	c.JSON(http.StatusOK, m)
}

type StatusRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
	Status  string `json:"status" validate:"required,oneof=picked_up delivered"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if !h.bind(c, &req) {
		return
	}
	to := models.DeliveryStatus(req.Status)
	m, err := h.Missions.Advance(c.Request.Context(), c.Param("id"), req.AgentID, to)
	if err != nil {
		h.writeMissionError(c, err, "Failed to update status")
		return
	}

	switch to {
	case models.StatusPickedUp:
		if tr, ok := h.Hub.Get(req.AgentID); ok {
			tr.MarkPickedUp()
		}
	case models.StatusDelivered:
		h.Hub.Stop(req.AgentID)
	}
	c.JSON(http.StatusOK, m)
}

// MissionRoute computes the two-leg hazard-validated route for a mission
// from the given agent position.
func (h *Handler) MissionRoute(c *gin.Context) {
	m, err := h.Store.GetMission(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeMissionError(c, err, "Failed to get mission")
		return
	}
	if m.Dropoff == nil {
		writeError(c, http.StatusBadRequest, "MISSING_DROPOFF", "Mission has no dropoff coordinate", nil)
		return
	}
	agent := queryWaypoint(c, "agent_lat", "agent_lng")
	if agent == nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "agent_lat and agent_lng are required", nil)
		return
	}
	vehicle := m.Vehicle
	if v := c.Query("vehicle"); v != "" {
		vehicle = models.VehicleType(v)
	}

	route, err := h.Planner.ComputeMissionRoute(c.Request.Context(), *agent, m.Pickup, *m.Dropoff, vehicle, h.Hazards.Snapshot())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "ROUTING_ERROR", "Failed to compute route", err.Error())
		return
	}
	resp := gin.H{
		"route":               route,
		"total_distance_text": routing.FormatDistance(route.TotalDistanceM),
		"total_duration_text": routing.FormatDuration(route.TotalDurationS),
	}
	if route.TotalDistanceM == 0 && route.Warning != "" {
		// Degraded straight-line route: the legs carry no oracle metrics,
		// so surface the geometric length of the drawn lines instead.
		straight := geo.PathLengthM(route.Leg1.Path) + geo.PathLengthM(route.Leg2.Path)
		resp["straight_line_distance_text"] = routing.FormatDistance(straight)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AgentMissions(c *gin.Context) {
	items, err := h.Store.ListAgentMissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list agent missions", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) AgentHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := h.Store.ListAgentHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list agent history", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit})
}

type PositionRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AgentPosition records the agent's latest location and feeds the live
// tracker, if one is running.
func (h *Handler) AgentPosition(c *gin.Context) {
	var req PositionRequest
	if !h.bind(c, &req) {
		return
	}
	agentID := c.Param("id")
	pos := models.Waypoint{Lat: req.Lat, Lng: req.Lng}

	if err := h.Store.UpsertAgentPosition(c.Request.Context(), models.AgentPosition{
		AgentID: agentID, Pos: pos, At: time.Now().UTC(),
	}); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to record position", err.Error())
		return
	}
	if tr, ok := h.Hub.Get(agentID); ok {
		tr.UpdatePosition(pos)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) HazardsList(c *gin.Context) {
	items, err := h.Store.ListActiveHazards(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list hazards", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type HazardRequest struct {
	Kind     string            `json:"kind" validate:"required,oneof=flood roadblock"`
	Points   []models.Waypoint `json:"points" validate:"required,min=2"`
	Severity int               `json:"severity" validate:"omitempty,min=1,max=5"`
	Label    string            `json:"label"`
}

// HazardCreate registers a new hazard and pushes the refreshed snapshot
// to every live tracker.
func (h *Handler) HazardCreate(c *gin.Context) {
	var req HazardRequest
	if !h.bind(c, &req) {
		return
	}
	hz := models.Hazard{
		ID:     uuid.NewString(),
		Kind:   models.HazardKind(req.Kind),
		Active: true,
		Label:  req.Label,
	}
	switch hz.Kind {
	case models.HazardFlood:
		if len(req.Points) < 3 {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "flood polygon needs at least 3 points", nil)
			return
		}
		if req.Severity == 0 {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "flood severity is required", nil)
			return
		}
		hz.Ring = req.Points
		hz.Severity = req.Severity
	case models.HazardRoadblock:
		hz.Line = req.Points
	}

	if err := h.Store.InsertHazard(c.Request.Context(), hz); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create hazard", err.Error())
		return
	}
	h.refreshHazards(c.Request.Context())
	c.JSON(http.StatusCreated, hz)
}

func (h *Handler) HazardDeactivate(c *gin.Context) {
	if err := h.Store.DeactivateHazard(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Hazard not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to deactivate hazard", err.Error())
		return
	}
	h.refreshHazards(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) refreshHazards(ctx context.Context) {
	if err := h.Hazards.Refresh(ctx, h.Store); err != nil {
		h.Logger.Warn().Err(err).Msg("hazard snapshot refresh failed")
	}
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) writeMissionError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Mission not found", nil)
	case errors.Is(err, db.ErrConflict):
		writeError(c, http.StatusConflict, "CONFLICT", "Mission is not in the required state", nil)
	case errors.Is(err, mission.ErrExpired):
		writeError(c, http.StatusConflict, "EXPIRED", "Mission food has expired", nil)
	case errors.Is(err, mission.ErrInvalidTransition):
		writeError(c, http.StatusBadRequest, "INVALID_TRANSITION", "Requested status is not reachable", nil)
	default:
		writeError(c, http.StatusInternalServerError, "DB_ERROR", fallback, err.Error())
	}
}

func queryWaypoint(c *gin.Context, latKey, lngKey string) *models.Waypoint {
	latStr, lngStr := c.Query(latKey), c.Query(lngKey)
	if latStr == "" || lngStr == "" {
		return nil
	}
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lng, err2 := strconv.ParseFloat(lngStr, 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &models.Waypoint{Lat: lat, Lng: lng}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
