package projector

import (
	"sync"
	"time"

	"Safii/internal/models"
	"Safii/internal/store"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Actions emitted as a viewer's projection changes. Show opens the alert
// modal on the viewer's device, Dismiss closes it.
const (
	ActionShow    = "show"
	ActionDismiss = "dismiss"
)

// ProjectedAlert is the per-viewer view of one relevant alert.
type ProjectedAlert struct {
	AlertID         string    `json:"alertId"`
	TrackedUserID   string    `json:"trackedUserId"`
	TrackedUserName string    `json:"trackedUserName"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Update is one projection change delivered to a subscriber.
type Update struct {
	Action string         `json:"action"`
	Alert  ProjectedAlert `json:"alert"`
}

// Subscription is a live, per-viewer projection stream. The owner must call
// Close on every exit path; an unclosed subscription leaks its feed
// connection.
type Subscription struct {
	C <-chan Update

	feedSub *store.Subscription
	done    chan struct{}
	once    sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.feedSub.Close()
	})
}

// Projector derives "alerts relevant to me right now" for each viewer from
// the alert change feed. An alert is relevant to a viewer while the viewer is
// one of its contacts, that contact's status is still active, and the parent
// session has not ended.
type Projector struct {
	feed *store.Feed
}

func New(feed *store.Feed) *Projector { return &Projector{feed: feed} }

// revisionGuardSize bounds the per-subscription memory of the stale-snapshot
// guard; a viewer rarely watches more than a handful of alerts at once.
const revisionGuardSize = 256

// Subscribe opens a projection stream for one viewing identity. Current state
// is replayed first, then live updates follow in per-document commit order;
// a stale snapshot never overwrites a newer one.
func (p *Projector) Subscribe(viewerID string) *Subscription {
	feedSub := p.feed.Subscribe()
	out := make(chan Update, 32)
	done := make(chan struct{})

	sub := &Subscription{C: out, feedSub: feedSub, done: done}

	go func() {
		defer close(out)

		seen, _ := lru.New[string, uint64](revisionGuardSize)
		showing := make(map[string]bool)

		apply := func(ev store.Event) {
			if last, ok := seen.Get(ev.DocID); ok && ev.Revision <= last {
				return
			}
			seen.Add(ev.DocID, ev.Revision)

			relevant := relevantTo(viewerID, ev)
			switch {
			case relevant && !showing[ev.DocID]:
				showing[ev.DocID] = true
				select {
				case out <- Update{Action: ActionShow, Alert: project(ev.Alert)}:
				case <-done:
				}
			case !relevant && showing[ev.DocID]:
				delete(showing, ev.DocID)
				select {
				case out <- Update{Action: ActionDismiss, Alert: project(ev.Alert)}:
				case <-done:
				}
			}
		}

		// replay current state before live events
		for _, ev := range p.feed.Snapshot() {
			apply(ev)
		}
		for {
			select {
			case <-done:
				return
			case ev, ok := <-feedSub.C:
				if !ok {
					return
				}
				apply(ev)
			}
		}
	}()

	return sub
}

func relevantTo(viewerID string, ev store.Event) bool {
	if ev.SessionEnded {
		return false
	}
	cs, ok := ev.Alert.ContactStatus[viewerID]
	return ok && cs.Status == models.ContactActive
}

func project(alert models.EmergencyAlert) ProjectedAlert {
	return ProjectedAlert{
		AlertID:         alert.ID,
		TrackedUserID:   alert.TrackedUserID,
		TrackedUserName: alert.TrackedUserName,
		CreatedAt:       alert.CreatedAt,
	}
}
