package handlers

import (
	"net/http"

	"Safii/internal/models"
	"Safii/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) handleGetAlert(c *gin.Context) {
	alert, err := h.coordinator.Alert(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	response.Success(c, "alert", alert)
}

// handleAcknowledge records the signed-in contact's acknowledgement of the
// alert. Re-sends are no-ops, so the client may retry freely.
func (h *Handlers) handleAcknowledge(c *gin.Context) {
	user := models.CurrentUser(c)
	if err := h.coordinator.Acknowledge(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		respondErr(c, err)
		return
	}
	response.Success(c, "acknowledged", nil)
}

// handleResolve is the tracked user calling the emergency off.
func (h *Handlers) handleResolve(c *gin.Context) {
	user := models.CurrentUser(c)
	if err := h.coordinator.Resolve(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		respondErr(c, err)
		return
	}
	response.Success(c, "resolved", nil)
}

func (h *Handlers) handleListContacts(c *gin.Context) {
	user := models.CurrentUser(c)

	var relations []models.EmergencyContact
	if err := h.db.Where("user_id = ?", user.ID).Order("priority").Find(&relations).Error; err != nil {
		response.Fail(c, "can not load emergency contacts", nil)
		return
	}
	response.Success(c, "emergency contacts", relations)
}

func (h *Handlers) handleAddContact(c *gin.Context) {
	var req struct {
		ContactID string `json:"contactId" binding:"required"`
		Priority  int    `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := models.CurrentUser(c)

	var contact models.User
	if err := h.db.First(&contact, "id = ?", req.ContactID).Error; err != nil {
		response.FailWithStatus(c, http.StatusNotFound, "no such user")
		return
	}

	relation := models.EmergencyContact{
		UserID:    user.ID,
		ContactID: req.ContactID,
		Priority:  req.Priority,
	}
	if err := h.db.Create(&relation).Error; err != nil {
		response.Fail(c, "could not add contact", nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": relation.ID})
}

func (h *Handlers) handleRemoveContact(c *gin.Context) {
	user := models.CurrentUser(c)
	err := h.db.Where("user_id = ? AND contact_id = ?", user.ID, c.Param("contactId")).
		Delete(&models.EmergencyContact{}).Error
	if err != nil {
		response.Fail(c, "could not remove contact", nil)
		return
	}
	response.Success(c, "contact removed", nil)
}
