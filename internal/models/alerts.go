package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Per-contact acknowledgement states. Monotonic: active may move to
// acknowledged or resolved, never back.
const (
	ContactActive       = "active"
	ContactAcknowledged = "acknowledged"
	ContactResolved     = "resolved"
)

// Overall alert states.
const (
	AlertNotifying = "notifying"
	AlertCompleted = "completed" // no contact needs further reminders
	AlertResolved  = "resolved"  // tracked user called it off
)

// Signals emitted by the alert core.
const (
	SigAlertCreated  = "alert:created"
	SigAlertResolved = "alert:resolved"
	SigSessionEnded  = "session:ended"
)

// ContactStatus is one contact's slice of the shared alert record. It is only
// addressable through its parent alert.
type ContactStatus struct {
	Status            string    `json:"status"`
	UpdatedAt         time.Time `json:"updatedAt"`
	NotificationCount int       `json:"notificationCount"`
}

// ContactStatusMap serializes the per-contact map into a single text column,
// matching the shared document shape `{ [contactId]: { status, updatedAt } }`.
type ContactStatusMap map[string]ContactStatus

func (m ContactStatusMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *ContactStatusMap) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = nil
		return nil
	}
	return fmt.Errorf("cannot scan %T into ContactStatusMap", value)
}

// EmergencyAlert is the shared record coordinating notification and
// acknowledgement across contacts for one emergency episode. One per session.
type EmergencyAlert struct {
	ID              string           `gorm:"primaryKey;size:64" json:"id"`
	SessionID       string           `gorm:"size:64;uniqueIndex" json:"sessionId"`
	TrackedUserID   string           `gorm:"size:64;index" json:"trackedUserId"`
	TrackedUserName string           `gorm:"size:128" json:"trackedUserName"`
	OverallStatus   string           `gorm:"size:16;index" json:"overallStatus"`
	ContactStatus   ContactStatusMap `gorm:"type:text" json:"contactStatus"`
	NextNotifyAt    time.Time        `json:"nextNotificationTime"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// ContactIDs returns the fixed set of contact keys.
func (a *EmergencyAlert) ContactIDs() []string {
	ids := make([]string, 0, len(a.ContactStatus))
	for id := range a.ContactStatus {
		ids = append(ids, id)
	}
	return ids
}
