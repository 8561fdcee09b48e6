package tracking

import (
	"context"
	"time"

	"Safii/internal/models"
	"Safii/pkg/cache"
	"Safii/pkg/errors"
	"Safii/pkg/logger"
	"Safii/pkg/metrics"
	"Safii/pkg/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAlreadyTracking = errors.WithCode(errors.CodeAlreadyTracking, "an active tracking session already exists for this user")
	ErrUnknownSession  = errors.WithCode(errors.CodeUnknownSession, "tracking session does not exist or has ended")
)

// EmergencyNotifier is implemented by the emergency coordinator; the manager
// calls it exactly when a session crosses into the emergency state.
type EmergencyNotifier interface {
	SessionInEmergency(ctx context.Context, session *models.TrackingSession) error
}

// Manager owns the liveness state machine for tracking sessions:
// active ⇄ missed → emergency → ended, with manual stop from any state.
type Manager struct {
	db       *gorm.DB
	cache    cache.Cache
	notifier EmergencyNotifier
	grace    time.Duration
}

func NewManager(db *gorm.DB, c cache.Cache, grace time.Duration) *Manager {
	if grace <= 0 {
		// missed must be observable before emergency
		grace = 30 * time.Second
	}
	return &Manager{db: db, cache: c, grace: grace}
}

// SetNotifier wires the coordinator in after construction, breaking the
// package cycle between tracking and emergency.
func (m *Manager) SetNotifier(n EmergencyNotifier) { m.notifier = n }

// Grace returns the configured grace threshold.
func (m *Manager) Grace() time.Duration { return m.grace }

func liveSessionKey(userID string) string { return "tracking:live:" + userID }

// StartSession creates an active session for the user. Fails with
// ErrAlreadyTracking while any active/missed/emergency session exists.
func (m *Manager) StartSession(ctx context.Context, trackedUserID, name string, checkInInterval time.Duration) (*models.TrackingSession, error) {
	if checkInInterval <= 0 {
		return nil, errors.New("check-in interval must be positive")
	}
	if m.cache != nil && m.cache.Exists(ctx, liveSessionKey(trackedUserID)) {
		return nil, ErrAlreadyTracking
	}

	var count int64
	err := m.db.WithContext(ctx).Model(&models.TrackingSession{}).
		Where("tracked_user_id = ? AND status IN ?", trackedUserID,
			[]string{models.SessionActive, models.SessionMissed, models.SessionEmergency}).
		Count(&count).Error
	if err != nil {
		return nil, errors.Wrap(err, "query live sessions")
	}
	if count > 0 {
		return nil, ErrAlreadyTracking
	}

	now := time.Now()
	session := &models.TrackingSession{
		ID:              uuid.NewString(),
		TrackedUserID:   trackedUserID,
		TrackedUserName: name,
		Status:          models.SessionActive,
		CheckInInterval: int64(checkInInterval / time.Second),
		StartedAt:       now,
		LastLiveness:    now,
	}
	if err := m.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, errors.Wrap(err, "create tracking session")
	}
	if m.cache != nil {
		_ = m.cache.Set(ctx, liveSessionKey(trackedUserID), session.ID, checkInInterval+m.grace)
	}

	metrics.SessionsStarted.Inc()
	logger.Info("tracking session started",
		zap.String("session_id", session.ID),
		zap.String("user_id", trackedUserID),
		zap.Duration("interval", checkInInterval))
	return session, nil
}

// RecordCheckIn registers liveness evidence: last-liveness resets to now and
// a missed session reverts to active.
func (m *Manager) RecordCheckIn(ctx context.Context, sessionID string) (*models.TrackingSession, error) {
	session, err := m.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.LastLiveness = time.Now()
	if session.Status == models.SessionMissed {
		session.Status = models.SessionActive
	}
	if err := m.db.WithContext(ctx).Save(session).Error; err != nil {
		return nil, errors.Wrap(err, "save check-in")
	}
	if m.cache != nil {
		_ = m.cache.Set(ctx, liveSessionKey(session.TrackedUserID), session.ID, session.Interval()+m.grace)
	}
	metrics.CheckIns.Inc()
	return session, nil
}

// EvaluateLiveness applies the deadline policy at time now. It is idempotent
// for non-decreasing now: once emergency, further calls change nothing except
// re-signaling the notifier, whose ensure is itself idempotent. A session past
// interval+grace passes through missed on its way to emergency within the same
// evaluation, so missed is always an observed state.
func (m *Manager) EvaluateLiveness(ctx context.Context, sessionID string, now time.Time) (string, error) {
	session, err := m.liveSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.Status == models.SessionEmergency {
		// a handoff that failed on the transition is retried here on every
		// sweep until the alert exists
		m.signalEmergency(ctx, session)
		return session.Status, nil
	}

	elapsed := now.Sub(session.LastLiveness)
	prev := session.Status

	if elapsed > session.Interval() {
		session.Status = models.SessionMissed
	}
	if elapsed > session.Interval()+m.grace {
		session.Status = models.SessionEmergency
	}
	if session.Status == prev {
		return session.Status, nil
	}

	if err := m.db.WithContext(ctx).Save(session).Error; err != nil {
		return "", errors.Wrap(err, "save liveness transition")
	}
	logger.Info("liveness transition",
		zap.String("session_id", session.ID),
		zap.String("from", prev),
		zap.String("to", session.Status))

	if session.Status == models.SessionEmergency {
		m.signalEmergency(ctx, session)
	}
	return session.Status, nil
}

// signalEmergency hands the session to the emergency coordinator. Failure is
// logged, not returned: the liveness sweep keeps emergency sessions in scope,
// so the next sweep retries until the idempotent ensure succeeds.
func (m *Manager) signalEmergency(ctx context.Context, session *models.TrackingSession) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.SessionInEmergency(ctx, session); err != nil {
		logger.Error("emergency handoff failed", zap.String("session_id", session.ID), zap.Error(err))
	}
}

// EndSession marks the session ended from any prior state. Idempotent.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	var session models.TrackingSession
	err := m.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if err == gorm.ErrRecordNotFound {
		return ErrUnknownSession
	}
	if err != nil {
		return errors.Wrap(err, "load session")
	}
	if session.Status == models.SessionEnded {
		return nil
	}

	now := time.Now()
	session.Status = models.SessionEnded
	session.EndedAt = &now
	if err := m.db.WithContext(ctx).Save(&session).Error; err != nil {
		return errors.Wrap(err, "end session")
	}
	if m.cache != nil {
		_ = m.cache.Delete(ctx, liveSessionKey(session.TrackedUserID))
	}

	metrics.SessionsEnded.Inc()
	logger.Info("tracking session ended", zap.String("session_id", session.ID))
	util.Sig().Emit(models.SigSessionEnded, &session)
	return nil
}

// SweepOnce evaluates every live session against now, emergency sessions
// included so a failed coordinator handoff gets retried. Driven by the
// scheduler; one bad session does not stop the sweep.
func (m *Manager) SweepOnce(ctx context.Context, now time.Time) {
	var sessions []models.TrackingSession
	err := m.db.WithContext(ctx).
		Where("status IN ?", []string{models.SessionActive, models.SessionMissed, models.SessionEmergency}).
		Find(&sessions).Error
	if err != nil {
		logger.Error("liveness sweep query failed", zap.Error(err))
		return
	}
	for i := range sessions {
		if _, err := m.EvaluateLiveness(ctx, sessions[i].ID, now); err != nil {
			logger.Warn("liveness evaluation failed",
				zap.String("session_id", sessions[i].ID), zap.Error(err))
		}
	}
}

// Session loads a session by id regardless of status.
func (m *Manager) Session(ctx context.Context, sessionID string) (*models.TrackingSession, error) {
	var session models.TrackingSession
	err := m.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	return &session, nil
}

func (m *Manager) liveSession(ctx context.Context, sessionID string) (*models.TrackingSession, error) {
	session, err := m.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Live() {
		return nil, ErrUnknownSession
	}
	return session, nil
}
