package handlers

import (
	"net/http"
	"time"

	"Safii/internal/models"
	"Safii/pkg/response"

	"github.com/gin-gonic/gin"
)

// handleStartTracking opts the signed-in user into tracking mode.
func (h *Handlers) handleStartTracking(c *gin.Context) {
	var req struct {
		CheckInIntervalSeconds int64 `json:"checkInIntervalSeconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := models.CurrentUser(c)

	session, err := h.manager.StartSession(c.Request.Context(), user.ID, user.DisplayName,
		time.Duration(req.CheckInIntervalSeconds)*time.Second)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.Success(c, "tracking started", session)
}

func (h *Handlers) handleGetSession(c *gin.Context) {
	session, err := h.manager.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	response.Success(c, "session", session)
}

// handleCheckIn is the "report safety" action: liveness evidence for the
// session.
func (h *Handlers) handleCheckIn(c *gin.Context) {
	session, err := h.manager.RecordCheckIn(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	response.Success(c, "check-in recorded", gin.H{
		"sessionId":    session.ID,
		"status":       session.Status,
		"lastLiveness": session.LastLiveness,
	})
}

func (h *Handlers) handleStopTracking(c *gin.Context) {
	if err := h.manager.EndSession(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	response.Success(c, "tracking stopped", nil)
}
