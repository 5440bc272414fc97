package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/crisisgrid/backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = 45 * time.Second
)

// AgentFeed is the live tracking socket for one agent: inbound messages
// are position reports, outbound messages are replanned routes.
func (h *Handler) AgentFeed(c *gin.Context) {
	agentID := c.Param("id")
	tr, ok := h.Hub.Get(agentID)
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No active tracking for agent", nil)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})

	// Read pump: position reports until the peer goes away.
	go func() {
		defer close(done)
		conn.SetReadLimit(1 << 12)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			var req PositionRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			pos := models.Waypoint{Lat: req.Lat, Lng: req.Lng}
			tr.UpdatePosition(pos)
			if err := h.Store.UpsertAgentPosition(c.Request.Context(), models.AgentPosition{
				AgentID: agentID, Pos: pos, At: time.Now().UTC(),
			}); err != nil {
				h.Logger.Warn().Err(err).Msg("failed to record agent position")
			}
		}
	}()

	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case u := <-tr.Routes():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
