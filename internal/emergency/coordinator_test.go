package emergency

import (
	"context"
	"testing"
	"time"

	"Safii/internal/models"
	"Safii/internal/store"
	"Safii/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Feed, *gorm.DB) {
	t.Helper()
	db, err := util.OpenDatabase("", "")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.EmergencyContact{},
		&models.TrackingSession{},
		&models.EmergencyAlert{},
	))
	feed := store.NewFeed()
	return NewCoordinator(db, feed, 15*time.Minute, 3), feed, db
}

func emergencySession(id string) *models.TrackingSession {
	return &models.TrackingSession{
		ID:              id,
		TrackedUserID:   "u1",
		TrackedUserName: "Alice",
		Status:          models.SessionEmergency,
		CheckInInterval: 60,
	}
}

func TestEnsureAlertInitializesEveryContactActive(t *testing.T) {
	co, feed, _ := newTestCoordinator(t)
	ctx := context.Background()

	alert, err := co.EnsureAlert(ctx, emergencySession("s1"), []string{"c1", "c2"})
	require.NoError(t, err)

	assert.Equal(t, "Alice", alert.TrackedUserName)
	assert.Equal(t, models.AlertNotifying, alert.OverallStatus)
	require.Len(t, alert.ContactStatus, 2)
	for _, id := range []string{"c1", "c2"} {
		cs := alert.ContactStatus[id]
		assert.Equal(t, models.ContactActive, cs.Status)
		assert.False(t, cs.UpdatedAt.IsZero())
		assert.Equal(t, 1, cs.NotificationCount)
	}
	assert.True(t, alert.NextNotifyAt.After(time.Now()))

	// the creation was committed to the feed
	snap := feed.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, alert.ID, snap[0].DocID)
}

func TestEnsureAlertIsIdempotentPerSession(t *testing.T) {
	co, feed, _ := newTestCoordinator(t)
	ctx := context.Background()
	defer util.Sig().Reset()

	created := 0
	util.Sig().Connect(models.SigAlertCreated, func(sender any, params ...any) {
		created++
	})

	session := emergencySession("s1")
	first, err := co.EnsureAlert(ctx, session, []string{"c1", "c2"})
	require.NoError(t, err)
	firstSeen := first.ContactStatus["c1"].UpdatedAt

	// retries return the existing alert with timestamps untouched
	again, err := co.EnsureAlert(ctx, session, []string{"c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, firstSeen.Equal(again.ContactStatus["c1"].UpdatedAt))

	assert.Equal(t, 1, created)
	assert.Len(t, feed.Snapshot(), 1)
}

func TestAcknowledgeMovesOnlyTheCallingContact(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	alert, err := co.EnsureAlert(ctx, emergencySession("s1"), []string{"c1", "c2"})
	require.NoError(t, err)

	require.NoError(t, co.Acknowledge(ctx, alert.ID, "c1"))

	got, err := co.Alert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContactAcknowledged, got.ContactStatus["c1"].Status)
	assert.Equal(t, models.ContactActive, got.ContactStatus["c2"].Status)
	// one contact still active keeps the alert notifying
	assert.Equal(t, models.AlertNotifying, got.OverallStatus)
}

func TestAcknowledgeIsMonotonic(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	alert, err := co.EnsureAlert(ctx, emergencySession("s1"), []string{"c1"})
	require.NoError(t, err)

	require.NoError(t, co.Acknowledge(ctx, alert.ID, "c1"))
	got, err := co.Alert(ctx, alert.ID)
	require.NoError(t, err)
	acked := got.ContactStatus["c1"].UpdatedAt

	// the duplicate acknowledgement is a no-op, not an error
	require.NoError(t, co.Acknowledge(ctx, alert.ID, "c1"))
	got, err = co.Alert(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, acked.Equal(got.ContactStatus["c1"].UpdatedAt))
}

func TestAcknowledgeUnknowns(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	alert, err := co.EnsureAlert(ctx, emergencySession("s1"), []string{"c1"})
	require.NoError(t, err)

	assert.ErrorIs(t, co.Acknowledge(ctx, "missing", "c1"), ErrUnknownAlert)
	assert.ErrorIs(t, co.Acknowledge(ctx, alert.ID, "stranger"), ErrUnknownContact)
}

func TestAllContactsAcknowledgedCompletesAlert(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	alert, err := co.EnsureAlert(ctx, emergencySession("s1"), []string{"c1", "c2"})
	require.NoError(t, err)

	require.NoError(t, co.Acknowledge(ctx, alert.ID, "c1"))
	require.NoError(t, co.Acknowledge(ctx, alert.ID, "c2"))

	got, err := co.Alert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertCompleted, got.OverallStatus)
}

func TestResolveMovesEveryContact(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	defer util.Sig().Reset()

	resolved := 0
	util.Sig().Connect(models.SigAlertResolved, func(sender any, params ...any) {
		resolved++
	})

	alert, err := co.EnsureAlert(ctx, emergencySession("s1"), []string{"c1", "c2"})
	require.NoError(t, err)
	require.NoError(t, co.Acknowledge(ctx, alert.ID, "c1"))

	require.NoError(t, co.Resolve(ctx, alert.ID, "u1"))

	got, err := co.Alert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, got.OverallStatus)
	for id, cs := range got.ContactStatus {
		assert.Equal(t, models.ContactResolved, cs.Status, "contact %s", id)
	}
	assert.Equal(t, 1, resolved)

	// second resolve is a no-op
	require.NoError(t, co.Resolve(ctx, alert.ID, "u1"))
	assert.Equal(t, 1, resolved)
}

func TestResolveRequiresTrackedUser(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	alert, err := co.EnsureAlert(ctx, emergencySession("s1"), []string{"c1"})
	require.NoError(t, err)

	assert.ErrorIs(t, co.Resolve(ctx, alert.ID, "c1"), ErrNotTrackedUser)
	got, err := co.Alert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertNotifying, got.OverallStatus)
}

func TestSessionInEmergencyLoadsRegisteredContacts(t *testing.T) {
	co, _, db := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.EmergencyContact{UserID: "u1", ContactID: "c1", Priority: 1}).Error)
	require.NoError(t, db.Create(&models.EmergencyContact{UserID: "u1", ContactID: "c2", Priority: 2}).Error)
	require.NoError(t, db.Create(&models.EmergencyContact{UserID: "someone-else", ContactID: "c9", Priority: 1}).Error)

	session := emergencySession("s1")
	require.NoError(t, co.SessionInEmergency(ctx, session))

	var alert models.EmergencyAlert
	require.NoError(t, db.First(&alert, "session_id = ?", session.ID).Error)
	assert.ElementsMatch(t, []string{"c1", "c2"}, alert.ContactIDs())
}

func TestHandleSessionEndedPublishesFinalEvent(t *testing.T) {
	co, feed, _ := newTestCoordinator(t)
	ctx := context.Background()

	session := emergencySession("s1")
	alert, err := co.EnsureAlert(ctx, session, []string{"c1"})
	require.NoError(t, err)

	sub := feed.Subscribe()
	defer sub.Close()

	require.NoError(t, co.HandleSessionEnded(ctx, session.ID))

	select {
	case ev := <-sub.C:
		assert.Equal(t, alert.ID, ev.DocID)
		assert.True(t, ev.SessionEnded)
	case <-time.After(time.Second):
		t.Fatal("no teardown event delivered")
	}

	// a session that never alerted ends quietly
	require.NoError(t, co.HandleSessionEnded(ctx, "never-alerted"))
}

func TestPrimeFeedRepublishesLiveAlerts(t *testing.T) {
	co, feed, _ := newTestCoordinator(t)
	ctx := context.Background()

	alert, err := co.EnsureAlert(ctx, emergencySession("s1"), []string{"c1"})
	require.NoError(t, err)

	rebuilt := store.NewFeed()
	co2 := NewCoordinator(co.db, rebuilt, 15*time.Minute, 3)
	require.NoError(t, co2.PrimeFeed(ctx))

	snap := rebuilt.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, alert.ID, snap[0].DocID)
	_ = feed
}
