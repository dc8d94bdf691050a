package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch *orch.Orchestrator
}

type createRoomRequest struct {
	HostName   string        `json:"hostName" binding:"required"`
	HostUserID domain.UserID `json:"hostUserId" binding:"required"`
}

type deleteRoomRequest struct {
	UserID domain.UserID `json:"userId" binding:"required"`
}

// fail writes {success:false, message} with the status matching err.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindForbidden:
		status = http.StatusForbidden
	case core.KindValidation:
		status = http.StatusBadRequest
	case core.KindRateLimited:
		status = http.StatusTooManyRequests
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"success": false, "message": err.Error()})
}

func bindError(err error) error {
	return errors.Join(core.ErrValidation, err)
}

func (h *handlers) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"status":   healthzResponse,
		"rooms":    len(h.orch.Rooms.List()),
		"sessions": h.orch.Registry.Count(),
	})
}

func (h *handlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	info, err := h.orch.CreateRoom(req.HostName, req.HostUserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"roomId":     info.ID,
		"hostUserId": info.HostUserID,
		"message":    "Room created successfully",
	})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "rooms": h.orch.Rooms.List()})
}

func (h *handlers) getRoom(c *gin.Context) {
	room, err := h.orch.RoomDetails(domain.RoomID(c.Param("roomId")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "room": room})
}

func (h *handlers) deleteRoom(c *gin.Context) {
	var req deleteRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	if err := h.orch.DeleteRoom(domain.RoomID(c.Param("roomId")), req.UserID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Room deleted successfully"})
}

func (h *handlers) userRooms(c *gin.Context) {
	userID := domain.UserID(c.Param("userId"))
	c.JSON(http.StatusOK, gin.H{"success": true, "rooms": h.orch.Rooms.ListByUser(userID)})
}
