package listeners

import (
	"context"
	"time"

	"Safii/internal/emergency"
	"Safii/internal/models"
	"Safii/internal/tracking"
	"Safii/pkg/logger"
	"Safii/pkg/metrics"
	"Safii/pkg/notification"
	"Safii/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InitAlertListeners connects the alert core's signals to their side effects:
// the creation-time notification fanout, and the teardown handshake between
// coordinator and session manager.
func InitAlertListeners(db *gorm.DB, push *notification.ExpoPush, sms *notification.SMS, manager *tracking.Manager, co *emergency.Coordinator) {
	// first notification to every contact when the alert materializes
	util.Sig().Connect(models.SigAlertCreated, func(sender any, params ...any) {
		alert, ok := sender.(*models.EmergencyAlert)
		if !ok {
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			notifyContacts(ctx, db, push, sms, alert)
		}()
	})

	// resolution lets the session wind down
	util.Sig().Connect(models.SigAlertResolved, func(sender any, params ...any) {
		alert, ok := sender.(*models.EmergencyAlert)
		if !ok {
			return
		}
		if err := manager.EndSession(context.Background(), alert.SessionID); err != nil {
			logger.Warn("end session after resolve failed",
				zap.String("session_id", alert.SessionID), zap.Error(err))
		}
	})

	// an ended session tears its alert's projections down
	util.Sig().Connect(models.SigSessionEnded, func(sender any, params ...any) {
		session, ok := sender.(*models.TrackingSession)
		if !ok {
			return
		}
		if err := co.HandleSessionEnded(context.Background(), session.ID); err != nil {
			logger.Warn("alert teardown failed",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	})
}

// notifyContacts pushes to every contact with a token and falls back to SMS.
// Best-effort: failure is logged, never surfaced to the alert operation.
func notifyContacts(ctx context.Context, db *gorm.DB, push *notification.ExpoPush, sms *notification.SMS, alert *models.EmergencyAlert) {
	var users []models.User
	if err := db.WithContext(ctx).Where("id IN ?", alert.ContactIDs()).Find(&users).Error; err != nil {
		logger.Warn("contact lookup for alert fanout failed",
			zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}

	title := "🚨 Emergency Alert from " + alert.TrackedUserName
	body := alert.TrackedUserName + " needs your attention. Please check Safii now."
	data := map[string]interface{}{
		"type":          "emergency_alert",
		"alertId":       alert.ID,
		"trackedUserId": alert.TrackedUserID,
	}

	tokens := make([]string, 0, len(users))
	for _, u := range users {
		if u.PushToken != "" {
			tokens = append(tokens, u.PushToken)
			continue
		}
		if u.PhoneNumber != "" && sms != nil {
			if err := sms.SendAlert(ctx, u.PhoneNumber, alert.TrackedUserName); err != nil {
				logger.Warn("alert sms failed", zap.String("contact_id", u.ID), zap.Error(err))
			}
		}
	}
	if len(tokens) == 0 || push == nil {
		return
	}
	if err := push.PushToTokens(ctx, tokens, title, body, data); err != nil {
		metrics.PushFailed.Add(float64(len(tokens)))
		logger.Warn("alert push failed", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}
	metrics.PushSent.Add(float64(len(tokens)))
}
