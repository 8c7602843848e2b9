// Package api wires TurnEngine and RewindEngine onto a thin Gin router,
// grounded on tarsy's cmd/tarsy/main.go inline-handler style.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arcfable/campaignforge/internal/rewind"
	"github.com/arcfable/campaignforge/internal/turn"
)

// requestTimeout bounds Phase A/Phase C's combined transactional work plus
// the LLM call; it does not bound the LLM call alone (spec §7 "Timeouts").
const requestTimeout = 30 * time.Second

type Server struct {
	Engine *turn.Engine
	Rewind *rewind.Engine
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.POST("/campaigns/:id/turns", s.postTurn)
	r.POST("/campaigns/:id/rewind", s.postRewind)
	return r
}

type postTurnRequest struct {
	ActorID   string  `json:"actor_id" binding:"required"`
	Action    string  `json:"action" binding:"required"`
	SessionID *string `json:"session_id"`
}

func (s *Server) postTurn(c *gin.Context) {
	campaignID := c.Param("id")
	var req postTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	input := turn.NewResolveTurnInput(campaignID, req.ActorID, req.Action)
	input.SessionID = req.SessionID
	result := s.Engine.ResolveTurn(ctx, input, nil)

	switch result.Status {
	case turn.StatusOK:
		c.JSON(http.StatusOK, result)
	case turn.StatusBusy:
		c.JSON(http.StatusConflict, result)
	case turn.StatusConflict:
		c.JSON(http.StatusConflict, result)
	default:
		c.JSON(http.StatusInternalServerError, result)
	}
}

type postRewindRequest struct {
	TargetTurnID int64   `json:"target_turn_id" binding:"required"`
	SurfaceRef   *string `json:"surface_ref"`
}

func (s *Server) postRewind(c *gin.Context) {
	campaignID := c.Param("id")
	var req postRewindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var result rewind.Result
	if req.SurfaceRef != nil {
		result = s.Rewind.RewindChannelScoped(ctx, campaignID, req.TargetTurnID, *req.SurfaceRef)
	} else {
		result = s.Rewind.RewindToTurn(ctx, campaignID, req.TargetTurnID)
	}

	switch result.Status {
	case rewind.StatusOK:
		c.JSON(http.StatusOK, result)
	case rewind.StatusConflict:
		c.JSON(http.StatusConflict, result)
	default:
		c.JSON(http.StatusUnprocessableEntity, result)
	}
}
