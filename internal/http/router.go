package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/crisisgrid/backend/internal/config"
	"github.com/crisisgrid/backend/internal/hazard"
	"github.com/crisisgrid/backend/internal/http/handlers"
	"github.com/crisisgrid/backend/internal/http/middleware"
	"github.com/crisisgrid/backend/internal/mission"
	"github.com/crisisgrid/backend/internal/routing"
	"github.com/crisisgrid/backend/internal/tracking"
)

func Router(cfg config.Config, store handlers.Store, missions *mission.Service, planner *routing.Planner, hazards *hazard.Model, hub *tracking.Hub, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:     store,
		Missions:  missions,
		Planner:   planner,
		Hazards:   hazards,
		Hub:       hub,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/missions", h.MissionsList)
		api.GET("/missions/:id", h.MissionDetails)
		api.POST("/missions/:id/claim", h.Claim)
		api.POST("/missions/:id/release", h.Release)
		api.POST("/missions/:id/accept", h.Accept)
		api.POST("/missions/:id/status", h.UpdateStatus)
		api.GET("/missions/:id/route", h.MissionRoute)

		api.GET("/agents/:id/missions", h.AgentMissions)
		api.GET("/agents/:id/history", h.AgentHistory)
		api.POST("/agents/:id/position", h.AgentPosition)

		api.GET("/hazards", h.HazardsList)
	}

	authority := api.Group("")
	authority.Use(middleware.AdminKey(cfg.AdminKey))
	{
		authority.POST("/hazards", h.HazardCreate)
		authority.DELETE("/hazards/:id", h.HazardDeactivate)
	}

	r.GET("/ws/agents/:id", h.AgentFeed)

	return r
}
