package projector

import (
	"testing"
	"time"

	"Safii/internal/models"
	"Safii/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlert(id string, contacts map[string]string) models.EmergencyAlert {
	cs := make(models.ContactStatusMap, len(contacts))
	for contactID, status := range contacts {
		cs[contactID] = models.ContactStatus{Status: status, UpdatedAt: time.Now()}
	}
	return models.EmergencyAlert{
		ID:              id,
		SessionID:       "session-" + id,
		TrackedUserID:   "u1",
		TrackedUserName: "Alice",
		OverallStatus:   models.AlertNotifying,
		ContactStatus:   cs,
	}
}

func nextUpdate(t *testing.T, sub *Subscription) Update {
	t.Helper()
	select {
	case upd, ok := <-sub.C:
		require.True(t, ok, "subscription closed unexpectedly")
		return upd
	case <-time.After(time.Second):
		t.Fatal("no projection update delivered")
		return Update{}
	}
}

func assertNoUpdate(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case upd := <-sub.C:
		t.Fatalf("unexpected %s for alert %s", upd.Action, upd.Alert.AlertID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeReplaysCurrentState(t *testing.T) {
	feed := store.NewFeed()
	feed.Publish(testAlert("a1", map[string]string{"viewer": models.ContactActive}), false)
	feed.Publish(testAlert("a2", map[string]string{"other": models.ContactActive}), false)

	p := New(feed)
	sub := p.Subscribe("viewer")
	defer sub.Close()

	upd := nextUpdate(t, sub)
	assert.Equal(t, ActionShow, upd.Action)
	assert.Equal(t, "a1", upd.Alert.AlertID)
	assert.Equal(t, "Alice", upd.Alert.TrackedUserName)

	// a2 names a different contact; the viewer never hears about it
	assertNoUpdate(t, sub)
}

func TestProjectionFollowsContactStatus(t *testing.T) {
	feed := store.NewFeed()
	p := New(feed)
	sub := p.Subscribe("viewer")
	defer sub.Close()

	feed.Publish(testAlert("a1", map[string]string{
		"viewer": models.ContactActive,
		"other":  models.ContactActive,
	}), false)
	upd := nextUpdate(t, sub)
	assert.Equal(t, ActionShow, upd.Action)

	// someone else acknowledging changes nothing for this viewer
	feed.Publish(testAlert("a1", map[string]string{
		"viewer": models.ContactActive,
		"other":  models.ContactAcknowledged,
	}), false)
	assertNoUpdate(t, sub)

	// the viewer's own acknowledgement dismisses the alert
	feed.Publish(testAlert("a1", map[string]string{
		"viewer": models.ContactAcknowledged,
		"other":  models.ContactAcknowledged,
	}), false)
	upd = nextUpdate(t, sub)
	assert.Equal(t, ActionDismiss, upd.Action)
	assert.Equal(t, "a1", upd.Alert.AlertID)
}

func TestResolutionDismissesEveryViewer(t *testing.T) {
	feed := store.NewFeed()
	p := New(feed)
	subA := p.Subscribe("a")
	defer subA.Close()
	subB := p.Subscribe("b")
	defer subB.Close()

	feed.Publish(testAlert("a1", map[string]string{
		"a": models.ContactActive,
		"b": models.ContactActive,
	}), false)
	assert.Equal(t, ActionShow, nextUpdate(t, subA).Action)
	assert.Equal(t, ActionShow, nextUpdate(t, subB).Action)

	feed.Publish(testAlert("a1", map[string]string{
		"a": models.ContactResolved,
		"b": models.ContactResolved,
	}), false)
	assert.Equal(t, ActionDismiss, nextUpdate(t, subA).Action)
	assert.Equal(t, ActionDismiss, nextUpdate(t, subB).Action)
}

func TestSessionTeardownDismisses(t *testing.T) {
	feed := store.NewFeed()
	p := New(feed)
	sub := p.Subscribe("viewer")
	defer sub.Close()

	alert := testAlert("a1", map[string]string{"viewer": models.ContactActive})
	feed.Publish(alert, false)
	assert.Equal(t, ActionShow, nextUpdate(t, sub).Action)

	// final event for the ended session, contact statuses unchanged
	feed.Publish(alert, true)
	assert.Equal(t, ActionDismiss, nextUpdate(t, sub).Action)
}

func TestStaleRevisionNeverOverwritesNewer(t *testing.T) {
	feed := store.NewFeed()
	// two committed states exist before the subscription starts; the replayed
	// snapshot and the live stream may overlap, but the older revision must
	// never win
	feed.Publish(testAlert("a1", map[string]string{"viewer": models.ContactActive}), false)
	feed.Publish(testAlert("a1", map[string]string{"viewer": models.ContactAcknowledged}), false)

	p := New(feed)
	sub := p.Subscribe("viewer")
	defer sub.Close()

	// newest state: acknowledged, so nothing is ever shown
	assertNoUpdate(t, sub)
}

func TestCloseStopsDelivery(t *testing.T) {
	feed := store.NewFeed()
	p := New(feed)
	sub := p.Subscribe("viewer")

	sub.Close()
	sub.Close() // double close is safe

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				assert.Equal(t, 0, feed.SubscriberCount())
				return
			}
		case <-deadline:
			t.Fatal("subscription channel never closed")
		}
	}
}
