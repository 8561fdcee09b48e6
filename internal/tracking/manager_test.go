package tracking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"Safii/internal/models"
	"Safii/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type capturingNotifier struct {
	sessions []*models.TrackingSession
}

func (n *capturingNotifier) SessionInEmergency(_ context.Context, s *models.TrackingSession) error {
	n.sessions = append(n.sessions, s)
	return nil
}

func newTestManager(t *testing.T, grace time.Duration) (*Manager, *gorm.DB) {
	t.Helper()
	db, err := util.OpenDatabase("", "")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TrackingSession{}))
	return NewManager(db, nil, grace), db
}

func TestStartSessionRejectsSecondLiveSession(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Second)
	ctx := context.Background()

	_, err := m.StartSession(ctx, "u1", "Alice", time.Minute)
	require.NoError(t, err)

	_, err = m.StartSession(ctx, "u1", "Alice", time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyTracking)

	// a different user is unaffected
	_, err = m.StartSession(ctx, "u2", "Bob", time.Minute)
	assert.NoError(t, err)
}

func TestStartSessionRejectsNonPositiveInterval(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Second)
	_, err := m.StartSession(context.Background(), "u1", "Alice", 0)
	assert.Error(t, err)
}

func TestLivenessDeadlines(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Second)
	ctx := context.Background()

	session, err := m.StartSession(ctx, "u1", "Alice", time.Minute)
	require.NoError(t, err)
	start := session.LastLiveness

	// within the interval nothing changes
	status, err := m.EvaluateLiveness(ctx, session.ID, start.Add(59*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, status)

	// past the interval but within grace: missed
	status, err = m.EvaluateLiveness(ctx, session.ID, start.Add(61*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.SessionMissed, status)

	// past interval+grace: emergency
	status, err = m.EvaluateLiveness(ctx, session.ID, start.Add(95*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.SessionEmergency, status)
}

func TestLivenessSkipsIntermediateMissedObservation(t *testing.T) {
	// a single late evaluation still lands on emergency even though no sweep
	// ever observed the missed state in between
	m, _ := newTestManager(t, 30*time.Second)
	ctx := context.Background()

	session, err := m.StartSession(ctx, "u1", "Alice", time.Minute)
	require.NoError(t, err)

	status, err := m.EvaluateLiveness(ctx, session.ID, session.LastLiveness.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.SessionEmergency, status)
}

func TestCheckInRevertsMissedToActive(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Second)
	ctx := context.Background()

	session, err := m.StartSession(ctx, "u1", "Alice", time.Minute)
	require.NoError(t, err)

	_, err = m.EvaluateLiveness(ctx, session.ID, session.LastLiveness.Add(61*time.Second))
	require.NoError(t, err)

	got, err := m.RecordCheckIn(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.Status)

	// last liveness moved, so the old deadline no longer applies
	status, err := m.EvaluateLiveness(ctx, session.ID, got.LastLiveness.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, status)
}

func TestEmergencyIsTerminalForLiveness(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Second)
	notifier := &capturingNotifier{}
	m.SetNotifier(notifier)
	ctx := context.Background()

	session, err := m.StartSession(ctx, "u1", "Alice", time.Minute)
	require.NoError(t, err)

	deadline := session.LastLiveness.Add(2 * time.Minute)
	_, err = m.EvaluateLiveness(ctx, session.ID, deadline)
	require.NoError(t, err)
	require.Len(t, notifier.sessions, 1)

	// re-evaluating an emergency session changes no state; the handoff is
	// re-signaled, which the coordinator's idempotent ensure absorbs
	status, err := m.EvaluateLiveness(ctx, session.ID, deadline.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.SessionEmergency, status)
	assert.Len(t, notifier.sessions, 2)

	// a check-in records liveness evidence but cannot revive the session
	got, err := m.RecordCheckIn(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEmergency, got.Status)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Second)
	ctx := context.Background()
	defer util.Sig().Reset()

	ended := 0
	util.Sig().Connect(models.SigSessionEnded, func(sender any, params ...any) {
		ended++
	})

	session, err := m.StartSession(ctx, "u1", "Alice", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.EndSession(ctx, session.ID))
	require.NoError(t, m.EndSession(ctx, session.ID))
	assert.Equal(t, 1, ended)

	got, err := m.Session(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, got.Status)
	require.NotNil(t, got.EndedAt)

	// ended sessions reject liveness evidence
	_, err = m.RecordCheckIn(ctx, session.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)

	// and the user may start tracking again
	_, err = m.StartSession(ctx, "u1", "Alice", time.Minute)
	assert.NoError(t, err)
}

func TestEndSessionUnknownID(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Second)
	err := m.EndSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

// flakyNotifier fails its first calls, the way a coordinator behind a briefly
// unavailable store would.
type flakyNotifier struct {
	failures int
	calls    int
}

func (n *flakyNotifier) SessionInEmergency(_ context.Context, _ *models.TrackingSession) error {
	n.calls++
	if n.calls <= n.failures {
		return fmt.Errorf("coordinator unavailable")
	}
	return nil
}

func TestSweepRetriesFailedEmergencyHandoff(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Second)
	notifier := &flakyNotifier{failures: 1}
	m.SetNotifier(notifier)
	ctx := context.Background()

	session, err := m.StartSession(ctx, "u1", "Alice", time.Minute)
	require.NoError(t, err)

	deadline := session.LastLiveness.Add(2 * time.Minute)
	m.SweepOnce(ctx, deadline)
	require.Equal(t, 1, notifier.calls)

	got, err := m.Session(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionEmergency, got.Status)

	// the session stays in the sweep's scope, so the failed handoff is
	// re-attempted instead of sitting in emergency with no alert
	m.SweepOnce(ctx, deadline.Add(5*time.Second))
	assert.Equal(t, 2, notifier.calls)
}

func TestSweepOnceEvaluatesEveryLiveSession(t *testing.T) {
	m, db := newTestManager(t, 30*time.Second)
	ctx := context.Background()

	s1, err := m.StartSession(ctx, "u1", "Alice", time.Minute)
	require.NoError(t, err)
	s2, err := m.StartSession(ctx, "u2", "Bob", 10*time.Minute)
	require.NoError(t, err)

	m.SweepOnce(ctx, s1.LastLiveness.Add(2*time.Minute))

	var got models.TrackingSession
	require.NoError(t, db.First(&got, "id = ?", s1.ID).Error)
	assert.Equal(t, models.SessionEmergency, got.Status)

	var got2 models.TrackingSession
	require.NoError(t, db.First(&got2, "id = ?", s2.ID).Error)
	assert.Equal(t, models.SessionActive, got2.Status)
}
