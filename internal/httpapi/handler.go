// Package httpapi exposes the game service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jacentio/bomberhub/internal/game"
)

// PlayerHeader carries the id of the calling player.
const PlayerHeader = "player-id"

// Service is the game behavior the handlers call.
type Service interface {
	Join(ctx context.Context) (game.JoinResult, error)
	Leave(ctx context.Context, playerID string) error
	Move(ctx context.Context, playerID string, x, y int) (game.Player, error)
}

// Handler serves the session and player endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// MoveRequest is the body of PATCH /players/move.
type MoveRequest struct {
	PositionX *int `json:"positionX" binding:"required"`
	PositionY *int `json:"positionY" binding:"required"`
}

// Join adds the caller to a session.
func (h *Handler) Join(c *gin.Context) {
	res, err := h.service.Join(c.Request.Context())
	if err != nil {
		h.fail(c, "join", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Leave removes the calling player from its session.
func (h *Handler) Leave(c *gin.Context) {
	playerID := c.GetHeader(PlayerHeader)
	if err := h.service.Leave(c.Request.Context(), playerID); err != nil {
		h.fail(c, "leave", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Move sets the position of the calling player.
func (h *Handler) Move(c *gin.Context) {
	playerID := c.GetHeader(PlayerHeader)
	if playerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": PlayerHeader + " header is required"})
		return
	}

	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "positionX and positionY must be integers"})
		return
	}

	player, err := h.service.Move(c.Request.Context(), playerID, *req.PositionX, *req.PositionY)
	if err != nil {
		h.fail(c, "move", err)
		return
	}
	c.JSON(http.StatusOK, player)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, game.ErrPlayerNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return
	}
	h.logger.Error("request failed", "operation", op, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
