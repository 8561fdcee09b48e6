package emergency

import (
	"context"
	"encoding/json"
	"time"

	"Safii/internal/models"
	"Safii/pkg/cache"
	"Safii/pkg/logger"
	"Safii/pkg/notification"

	"go.uber.org/zap"
)

// Reminder re-pushes un-acknowledged contacts on a schedule, up to the
// notification ceiling per contact, then marks fully-acknowledged alerts
// completed. One scan handles every due alert.
type Reminder struct {
	co    *Coordinator
	push  *notification.ExpoPush
	sms   *notification.SMS
	cache cache.Cache
}

func NewReminder(co *Coordinator, push *notification.ExpoPush, sms *notification.SMS, c cache.Cache) *Reminder {
	return &Reminder{co: co, push: push, sms: sms, cache: c}
}

// Run implements scheduler.Job for cron wiring.
func (r *Reminder) Run(ctx context.Context) { r.ScanOnce(ctx, time.Now()) }

// ScanOnce walks alerts that are due for another round of notifications.
func (r *Reminder) ScanOnce(ctx context.Context, now time.Time) {
	var alerts []models.EmergencyAlert
	err := r.co.db.WithContext(ctx).
		Where("overall_status = ? AND next_notify_at <= ?", models.AlertNotifying, now).
		Find(&alerts).Error
	if err != nil {
		logger.Error("reminder scan query failed", zap.Error(err))
		return
	}

	for i := range alerts {
		r.remind(ctx, &alerts[i], now)
	}
}

func (r *Reminder) remind(ctx context.Context, alert *models.EmergencyAlert, now time.Time) {
	notified := make(map[string]bool, len(alert.ContactStatus))
	for contactID, cs := range alert.ContactStatus {
		if cs.Status != models.ContactActive {
			continue
		}
		if cs.NotificationCount >= r.co.maxNotifications {
			// ceiling reached; stop reminding but the contact stays active
			continue
		}
		r.notifyContact(ctx, alert, contactID)
		notified[contactID] = true
	}

	// the pushes above hold the scan open for real time; write against the row
	// as it is now, so an acknowledgement or resolution that landed mid-scan is
	// never overwritten. A contact acknowledged during its own push keeps that
	// status and its count.
	updated, err := r.co.mutateAlert(ctx, alert.ID, func(fresh *models.EmergencyAlert) (bool, error) {
		if fresh.OverallStatus != models.AlertNotifying {
			return false, nil
		}
		stillWaiting := false
		for contactID, cs := range fresh.ContactStatus {
			if cs.Status != models.ContactActive || cs.NotificationCount >= r.co.maxNotifications {
				continue
			}
			stillWaiting = true
			if notified[contactID] {
				cs.NotificationCount++
				fresh.ContactStatus[contactID] = cs
			}
		}
		if stillWaiting {
			fresh.NextNotifyAt = now.Add(r.co.reminderInterval)
		} else {
			// nobody needs further reminders: everyone acknowledged or the
			// ceiling was reached
			fresh.OverallStatus = models.AlertCompleted
			logger.Info("alert reminder cycle completed", zap.String("alert_id", fresh.ID))
		}
		return true, nil
	})
	if err != nil {
		logger.Error("reminder save failed", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}
	if updated != nil {
		r.co.feed.Publish(*updated, false)
	}
}

// notifyContact is best-effort: push when a token exists, SMS otherwise.
// Failure is logged and never fails the scan.
func (r *Reminder) notifyContact(ctx context.Context, alert *models.EmergencyAlert, contactID string) {
	route, err := r.contactRoute(ctx, contactID)
	if err != nil {
		logger.Warn("reminder: contact lookup failed",
			zap.String("contact_id", contactID), zap.Error(err))
		return
	}

	title := "🚨 Emergency Alert from " + alert.TrackedUserName
	body := alert.TrackedUserName + " needs your attention. Please check Safii now."
	data := map[string]interface{}{
		"type":          "emergency_alert",
		"alertId":       alert.ID,
		"trackedUserId": alert.TrackedUserID,
	}

	if route.PushToken != "" && r.push != nil {
		if err := r.push.PushToTokens(ctx, []string{route.PushToken}, title, body, data); err != nil {
			logger.Warn("reminder push failed", zap.String("contact_id", contactID), zap.Error(err))
		}
		return
	}
	if route.PhoneNumber != "" && r.sms != nil {
		if err := r.sms.SendAlert(ctx, route.PhoneNumber, alert.TrackedUserName); err != nil {
			logger.Warn("reminder sms failed", zap.String("contact_id", contactID), zap.Error(err))
		}
	}
}

// contactRoute is the slice of the user record the reminder needs. It is
// cached as a JSON string so the value survives both cache backends unchanged.
type contactRoute struct {
	PushToken   string `json:"pushToken"`
	PhoneNumber string `json:"phoneNumber"`
}

func (r *Reminder) contactRoute(ctx context.Context, contactID string) (contactRoute, error) {
	key := "contact_route:" + contactID
	if r.cache != nil {
		if v, ok := r.cache.Get(ctx, key); ok {
			if s, ok := v.(string); ok {
				var route contactRoute
				if json.Unmarshal([]byte(s), &route) == nil {
					return route, nil
				}
			}
		}
	}

	var user models.User
	if err := r.co.db.WithContext(ctx).First(&user, "id = ?", contactID).Error; err != nil {
		return contactRoute{}, err
	}
	route := contactRoute{PushToken: user.PushToken, PhoneNumber: user.PhoneNumber}
	if r.cache != nil {
		if b, err := json.Marshal(route); err == nil {
			_ = r.cache.Set(ctx, key, string(b), 5*time.Minute)
		}
	}
	return route, nil
}
