package handlers

import (
	"net/http"

	"Safii/internal/models"
	"Safii/pkg/middleware"
	"Safii/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm/clause"
)

// handleSignIn exchanges an identity from the external auth provider for a
// cookie session. The uid is trusted input here; verifying the provider token
// happens at the API gateway and is outside this service.
func (h *Handlers) handleSignIn(c *gin.Context) {
	var req struct {
		UID         string `json:"uid" binding:"required"`
		DisplayName string `json:"displayName"`
		Username    string `json:"username"`
		Email       string `json:"email"`
		PhoneNumber string `json:"phoneNumber"`
		PushToken   string `json:"pushToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := models.User{
		ID:          req.UID,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		PushToken:   req.PushToken,
	}
	if user.Username == "" {
		user.Username = req.UID
	}
	err := h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "phone_number", "push_token", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		response.Fail(c, "could not record user", nil)
		return
	}

	if err := middleware.SignIn(c, user.ID); err != nil {
		response.Fail(c, "could not establish session", nil)
		return
	}
	middleware.RecordDeviceAudit(h.db, c, user.ID)
	response.Success(c, "signed in", gin.H{"uid": user.ID, "displayName": user.DisplayName})
}

func (h *Handlers) handleSignOut(c *gin.Context) {
	if err := middleware.SignOut(c); err != nil {
		response.Fail(c, "could not clear session", nil)
		return
	}
	response.Success(c, "signed out", nil)
}
