package handlers

import (
	"net/http"

	"Safii/internal/emergency"
	"Safii/internal/projector"
	"Safii/internal/tracking"
	"Safii/pkg/errors"
	"Safii/pkg/response"
	"Safii/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handlers carries the wired components every endpoint needs.
type Handlers struct {
	db          *gorm.DB
	manager     *tracking.Manager
	coordinator *emergency.Coordinator
	projector   *projector.Projector
	hub         *websocket.Hub
}

func New(db *gorm.DB, manager *tracking.Manager, coordinator *emergency.Coordinator, proj *projector.Projector, hub *websocket.Hub) *Handlers {
	return &Handlers{
		db:          db,
		manager:     manager,
		coordinator: coordinator,
		projector:   proj,
		hub:         hub,
	}
}

// RegisterRoutes attaches the API under prefix; authed wraps routes that need
// a signed-in viewer.
func (h *Handlers) RegisterRoutes(r *gin.Engine, prefix string, authed gin.HandlerFunc) {
	r.GET("/health", h.HealthCheck)

	api := r.Group(prefix)
	api.POST("/auth/session", h.handleSignIn)
	api.DELETE("/auth/session", h.handleSignOut)

	secured := api.Group("", authed)
	secured.POST("/tracking/sessions", h.handleStartTracking)
	secured.GET("/tracking/sessions/:id", h.handleGetSession)
	secured.POST("/tracking/sessions/:id/checkin", h.handleCheckIn)
	secured.DELETE("/tracking/sessions/:id", h.handleStopTracking)

	secured.GET("/alerts/:id", h.handleGetAlert)
	secured.POST("/alerts/:id/acknowledge", h.handleAcknowledge)
	secured.POST("/alerts/:id/resolve", h.handleResolve)

	secured.GET("/contacts", h.handleListContacts)
	secured.POST("/contacts", h.handleAddContact)
	secured.DELETE("/contacts/:contactId", h.handleRemoveContact)

	secured.POST("/sharing/sessions", h.handleStartSharing)
	secured.GET("/sharing", h.handleListSharing)
	secured.DELETE("/sharing/sessions/:id", h.handleStopSharing)
	secured.DELETE("/sharing/sessions/:id/contacts/:contactId", h.handleStopSharingWith)

	// streams live outside /alerts so the :id wildcard stays unambiguous
	secured.GET("/stream/alerts/ws", h.handleAlertSocket)
	secured.GET("/stream/alerts/sse", h.handleAlertSSE)
}

// respondErr maps coded domain errors onto HTTP statuses.
func respondErr(c *gin.Context, err error) {
	switch errors.GetCode(err) {
	case errors.CodeAlreadyTracking:
		response.FailWithStatus(c, http.StatusConflict, err.Error())
	case errors.CodeUnknownSession, errors.CodeUnknownAlert, errors.CodeUnknownContact:
		response.FailWithStatus(c, http.StatusNotFound, err.Error())
	case errors.CodeForbidden:
		response.FailWithStatus(c, http.StatusForbidden, err.Error())
	default:
		response.FailWithStatus(c, http.StatusInternalServerError, err.Error())
	}
}
