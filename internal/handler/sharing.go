package handlers

import (
	"net/http"

	"Safii/internal/models"
	"Safii/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// sharingEntry is one row of the unified "who can see me" list, merging
// emergency-session contacts and plain sharing.
type sharingEntry struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Type      string `json:"type"` // "emergency" | "normal"
	SessionID string `json:"sessionId"`
}

func (h *Handlers) handleStartSharing(c *gin.Context) {
	var req struct {
		SharedWithUserIDs []string `json:"sharedWithUserIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := models.CurrentUser(c)

	session := models.SharingSession{
		ID:            uuid.NewString(),
		SharingUserID: user.ID,
		SharedWith:    req.SharedWithUserIDs,
		IsActive:      true,
	}
	if err := h.db.Create(&session).Error; err != nil {
		response.Fail(c, "could not start sharing", nil)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// handleListSharing merges emergency-tracking contacts and normal sharing
// into one deduplicated list, emergency entries first.
func (h *Handlers) handleListSharing(c *gin.Context) {
	user := models.CurrentUser(c)
	entries := make([]sharingEntry, 0)
	seen := make(map[string]bool)

	var trackingSessions []models.TrackingSession
	h.db.Where("tracked_user_id = ? AND status IN ?", user.ID,
		[]string{models.SessionActive, models.SessionMissed, models.SessionEmergency}).
		Find(&trackingSessions)
	for _, ts := range trackingSessions {
		var relations []models.EmergencyContact
		h.db.Where("user_id = ?", user.ID).Order("priority").Find(&relations)
		for _, rel := range relations {
			if seen[rel.ContactID] {
				continue
			}
			seen[rel.ContactID] = true
			entries = append(entries, h.sharingEntryFor(rel.ContactID, "emergency", ts.ID))
		}
	}

	var sharingSessions []models.SharingSession
	h.db.Where("sharing_user_id = ? AND is_active = ?", user.ID, true).Find(&sharingSessions)
	for _, ss := range sharingSessions {
		for _, id := range ss.SharedWith {
			if seen[id] {
				continue
			}
			seen[id] = true
			entries = append(entries, h.sharingEntryFor(id, "normal", ss.ID))
		}
	}

	response.Success(c, "sharing", entries)
}

func (h *Handlers) sharingEntryFor(userID, kind, sessionID string) sharingEntry {
	entry := sharingEntry{UserID: userID, Type: kind, SessionID: sessionID, Username: "Contact"}
	var u models.User
	if err := h.db.First(&u, "id = ?", userID).Error; err == nil {
		entry.Username = u.Username
		entry.AvatarURL = u.AvatarURL
	}
	return entry
}

func (h *Handlers) handleStopSharing(c *gin.Context) {
	user := models.CurrentUser(c)
	err := h.db.Model(&models.SharingSession{}).
		Where("id = ? AND sharing_user_id = ?", c.Param("id"), user.ID).
		Update("is_active", false).Error
	if err != nil {
		response.Fail(c, "could not stop sharing", nil)
		return
	}
	response.Success(c, "sharing stopped", nil)
}

// handleStopSharingWith removes one person from a sharing session without
// ending it for everyone else.
func (h *Handlers) handleStopSharingWith(c *gin.Context) {
	user := models.CurrentUser(c)

	var session models.SharingSession
	err := h.db.First(&session, "id = ? AND sharing_user_id = ?", c.Param("id"), user.ID).Error
	if err != nil {
		response.FailWithStatus(c, http.StatusNotFound, "no such sharing session")
		return
	}

	target := c.Param("contactId")
	kept := make(models.StringList, 0, len(session.SharedWith))
	for _, id := range session.SharedWith {
		if id != target {
			kept = append(kept, id)
		}
	}
	session.SharedWith = kept
	if len(kept) == 0 {
		session.IsActive = false
	}
	if err := h.db.Save(&session).Error; err != nil {
		response.Fail(c, "could not update sharing session", nil)
		return
	}
	response.Success(c, "contact removed from sharing", session)
}
