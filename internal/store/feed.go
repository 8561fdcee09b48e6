package store

import (
	"sync"

	"Safii/internal/models"
)

// Event is one committed write to an alert document. Revision increases by
// one per document; subscribers use it to discard stale snapshots.
type Event struct {
	DocID        string
	Revision     uint64
	Alert        models.EmergencyAlert
	SessionEnded bool
}

// Subscription delivers events in commit order until Close.
type Subscription struct {
	C chan Event

	feed *Feed
	id   int
	once sync.Once
}

// Close stops delivery and releases the subscription. Safe to call twice.
// An event already queued is still delivered.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.unsubscribe(s.id)
	})
}

// Feed is the in-process stand-in for the hosted document store's change
// stream: per-document revision counters define the commit order every
// subscriber observes. There is no cross-document ordering guarantee.
type Feed struct {
	mu     sync.Mutex
	nextID int
	revs   map[string]uint64
	latest map[string]Event
	subs   map[int]*Subscription
}

func NewFeed() *Feed {
	return &Feed{
		revs:   make(map[string]uint64),
		latest: make(map[string]Event),
		subs:   make(map[int]*Subscription),
	}
}

// Publish commits one alert snapshot and fans it out. Callers publish after
// the database write succeeds, under the same call path, so feed order
// matches commit order per document.
func (f *Feed) Publish(alert models.EmergencyAlert, sessionEnded bool) Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.revs[alert.ID]++
	ev := Event{
		DocID:        alert.ID,
		Revision:     f.revs[alert.ID],
		Alert:        alert,
		SessionEnded: sessionEnded,
	}
	f.latest[alert.ID] = ev

	for _, sub := range f.subs {
		f.deliver(sub, ev)
	}
	return ev
}

// deliver never blocks the publisher. Events are full snapshots, so when a
// slow subscriber's buffer fills the oldest queued event is dropped; the
// subscriber still converges on the newest revision.
func (f *Feed) deliver(sub *Subscription, ev Event) {
	for {
		select {
		case sub.C <- ev:
			return
		default:
			select {
			case <-sub.C:
			default:
			}
		}
	}
}

// Subscribe registers a new subscriber. The caller must Close the returned
// subscription on every exit path.
func (f *Feed) Subscribe() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &Subscription{
		C:    make(chan Event, 64),
		feed: f,
		id:   f.nextID,
	}
	f.subs[sub.id] = sub
	return sub
}

func (f *Feed) unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

// Snapshot returns the latest event per document, used to seed a new
// subscriber with current state before live events arrive.
func (f *Feed) Snapshot() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	events := make([]Event, 0, len(f.latest))
	for _, ev := range f.latest {
		events = append(events, ev)
	}
	return events
}

// Close drops every subscriber and closes their channels. Used on shutdown;
// Publish after Close would panic, so stop publishers first.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subs {
		close(sub.C)
		delete(f.subs, id)
	}
}

// SubscriberCount is exposed for tests and metrics.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
