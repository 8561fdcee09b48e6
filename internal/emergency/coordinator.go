package emergency

import (
	"context"
	"strings"
	"time"

	"Safii/internal/models"
	"Safii/internal/store"
	"Safii/pkg/errors"
	"Safii/pkg/logger"
	"Safii/pkg/metrics"
	"Safii/pkg/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUnknownAlert   = errors.WithCode(errors.CodeUnknownAlert, "emergency alert does not exist")
	ErrUnknownContact = errors.WithCode(errors.CodeUnknownContact, "contact is not part of this alert")
	ErrNotTrackedUser = errors.WithCode(errors.CodeForbidden, "only the tracked user may resolve an alert")
)

// Coordinator materializes the shared EmergencyAlert for a session in the
// emergency state and mediates contact acknowledgements. Every operation is
// idempotent so callers may retry on transient store failure.
type Coordinator struct {
	db               *gorm.DB
	feed             *store.Feed
	reminderInterval time.Duration
	maxNotifications int
}

func NewCoordinator(db *gorm.DB, feed *store.Feed, reminderInterval time.Duration, maxNotifications int) *Coordinator {
	if reminderInterval <= 0 {
		reminderInterval = 15 * time.Minute
	}
	if maxNotifications <= 0 {
		maxNotifications = 3
	}
	return &Coordinator{
		db:               db,
		feed:             feed,
		reminderInterval: reminderInterval,
		maxNotifications: maxNotifications,
	}
}

// SessionInEmergency satisfies the tracking manager's handoff: look up the
// tracked user's registered contacts and ensure the alert exists.
func (co *Coordinator) SessionInEmergency(ctx context.Context, session *models.TrackingSession) error {
	var relations []models.EmergencyContact
	err := co.db.WithContext(ctx).
		Where("user_id = ?", session.TrackedUserID).
		Order("priority").
		Find(&relations).Error
	if err != nil {
		return errors.Wrap(err, "load emergency contacts")
	}
	contactIDs := make([]string, 0, len(relations))
	for _, r := range relations {
		contactIDs = append(contactIDs, r.ContactID)
	}
	_, err = co.EnsureAlert(ctx, session, contactIDs)
	return err
}

// EnsureAlert creates the alert for a session if none exists, initializing
// every contact to active with the creation timestamp. Called again for the
// same session it returns the existing alert unchanged: at most one alert per
// session, and retries never duplicate.
func (co *Coordinator) EnsureAlert(ctx context.Context, session *models.TrackingSession, contactIDs []string) (*models.EmergencyAlert, error) {
	var existing models.EmergencyAlert
	err := co.db.WithContext(ctx).First(&existing, "session_id = ?", session.ID).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(err, "query alert")
	}

	now := time.Now()
	contactStatus := make(models.ContactStatusMap, len(contactIDs))
	for _, id := range contactIDs {
		contactStatus[id] = models.ContactStatus{
			Status:            models.ContactActive,
			UpdatedAt:         now,
			NotificationCount: 1, // creation-time notification
		}
	}
	alert := &models.EmergencyAlert{
		ID:              uuid.NewString(),
		SessionID:       session.ID,
		TrackedUserID:   session.TrackedUserID,
		TrackedUserName: session.TrackedUserName,
		OverallStatus:   models.AlertNotifying,
		ContactStatus:   contactStatus,
		NextNotifyAt:    now.Add(co.reminderInterval),
	}
	if err := co.db.WithContext(ctx).Create(alert).Error; err != nil {
		// a racing EnsureAlert won on the session_id unique index
		if isUniqueViolation(err) {
			if err2 := co.db.WithContext(ctx).First(&existing, "session_id = ?", session.ID).Error; err2 == nil {
				return &existing, nil
			}
		}
		return nil, errors.Wrap(err, "create alert")
	}

	metrics.AlertsCreated.Inc()
	logger.Info("emergency alert created",
		zap.String("alert_id", alert.ID),
		zap.String("session_id", session.ID),
		zap.Int("contacts", len(contactIDs)))

	co.feed.Publish(*alert, false)
	util.Sig().Emit(models.SigAlertCreated, alert)
	return alert, nil
}

// mutateAlert applies fn to the row as it currently is, inside a transaction,
// and saves only when fn reports a change. Writers using it never save over
// state they did not read, so concurrent mutations of one alert cannot revert
// each other. Returns the saved alert, or nil when fn declined to change it.
func (co *Coordinator) mutateAlert(ctx context.Context, alertID string, fn func(*models.EmergencyAlert) (bool, error)) (*models.EmergencyAlert, error) {
	var alert models.EmergencyAlert
	changed := false
	err := co.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&alert, "id = ?", alertID).Error
		if err == gorm.ErrRecordNotFound {
			return ErrUnknownAlert
		}
		if err != nil {
			return errors.Wrap(err, "load alert")
		}
		changed, err = fn(&alert)
		if err != nil || !changed {
			return err
		}
		if err := tx.Save(&alert).Error; err != nil {
			return errors.Wrap(err, "save alert")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	return &alert, nil
}

// Acknowledge records one contact's acknowledgement. Already-acknowledged or
// resolved contacts are a no-op, not an error: racing acknowledgements are
// expected and statuses only ever move forward.
func (co *Coordinator) Acknowledge(ctx context.Context, alertID, contactID string) error {
	updated, err := co.mutateAlert(ctx, alertID, func(alert *models.EmergencyAlert) (bool, error) {
		cs, ok := alert.ContactStatus[contactID]
		if !ok {
			return false, ErrUnknownContact
		}
		if cs.Status != models.ContactActive {
			return false, nil
		}
		cs.Status = models.ContactAcknowledged
		cs.UpdatedAt = time.Now()
		alert.ContactStatus[contactID] = cs
		if alert.OverallStatus == models.AlertNotifying && allAcknowledged(alert.ContactStatus) {
			alert.OverallStatus = models.AlertCompleted
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	metrics.AlertsAcknowledged.Inc()
	logger.Info("alert acknowledged",
		zap.String("alert_id", alertID), zap.String("contact_id", contactID))

	co.feed.Publish(*updated, false)
	return nil
}

// Resolve is the tracked user calling off the emergency: every contact moves
// to resolved and the session may wind down.
func (co *Coordinator) Resolve(ctx context.Context, alertID, callerID string) error {
	updated, err := co.mutateAlert(ctx, alertID, func(alert *models.EmergencyAlert) (bool, error) {
		if callerID != "" && callerID != alert.TrackedUserID {
			return false, ErrNotTrackedUser
		}
		if alert.OverallStatus == models.AlertResolved {
			return false, nil
		}
		now := time.Now()
		for id, cs := range alert.ContactStatus {
			if cs.Status != models.ContactResolved {
				cs.Status = models.ContactResolved
				cs.UpdatedAt = now
				alert.ContactStatus[id] = cs
			}
		}
		alert.OverallStatus = models.AlertResolved
		return true, nil
	})
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	metrics.AlertsResolved.Inc()
	logger.Info("alert resolved", zap.String("alert_id", alertID))

	co.feed.Publish(*updated, false)
	util.Sig().Emit(models.SigAlertResolved, updated)
	return nil
}

// HandleSessionEnded archives the alert when its session ends; listeners see
// one final event that drops every remaining projection.
func (co *Coordinator) HandleSessionEnded(ctx context.Context, sessionID string) error {
	var alert models.EmergencyAlert
	err := co.db.WithContext(ctx).First(&alert, "session_id = ?", sessionID).Error
	if err == gorm.ErrRecordNotFound {
		return nil // session ended without ever alerting
	}
	if err != nil {
		return errors.Wrap(err, "query alert for ended session")
	}
	co.feed.Publish(alert, true)
	return nil
}

// Alert loads one alert by id.
func (co *Coordinator) Alert(ctx context.Context, alertID string) (*models.EmergencyAlert, error) {
	var alert models.EmergencyAlert
	err := co.db.WithContext(ctx).First(&alert, "id = ?", alertID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrUnknownAlert
	}
	if err != nil {
		return nil, errors.Wrap(err, "load alert")
	}
	return &alert, nil
}

// PrimeFeed republishes every live alert, seeding the feed after a restart so
// new subscribers see current state.
func (co *Coordinator) PrimeFeed(ctx context.Context) error {
	var alerts []models.EmergencyAlert
	err := co.db.WithContext(ctx).
		Where("overall_status = ?", models.AlertNotifying).
		Find(&alerts).Error
	if err != nil {
		return errors.Wrap(err, "load live alerts")
	}
	for i := range alerts {
		co.feed.Publish(alerts[i], false)
	}
	return nil
}

func allAcknowledged(m models.ContactStatusMap) bool {
	for _, cs := range m {
		if cs.Status == models.ContactActive {
			return false
		}
	}
	return true
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
