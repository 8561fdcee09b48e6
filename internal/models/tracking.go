package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Tracking session lifecycle. ended is terminal.
const (
	SessionActive    = "active"
	SessionMissed    = "missed"
	SessionEmergency = "emergency"
	SessionEnded     = "ended"
)

// TrackingSession is one opted-in tracking run for one user. At most one
// non-ended session per tracked user exists at a time.
type TrackingSession struct {
	ID               string `gorm:"primaryKey;size:64"`
	TrackedUserID    string `gorm:"size:64;index"`
	TrackedUserName  string `gorm:"size:128"`
	Status           string `gorm:"size:16;index"`
	CheckInInterval  int64  // seconds
	StartedAt        time.Time
	LastLiveness     time.Time
	EndedAt          *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Interval returns the check-in interval as a duration.
func (s *TrackingSession) Interval() time.Duration {
	return time.Duration(s.CheckInInterval) * time.Second
}

// Live reports whether the session still participates in liveness evaluation.
func (s *TrackingSession) Live() bool {
	return s.Status == SessionActive || s.Status == SessionMissed || s.Status == SessionEmergency
}

// StringList stores a JSON string array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	}
	return fmt.Errorf("cannot scan %T into StringList", value)
}

// SharingSession is plain (non-emergency) location sharing with friends.
type SharingSession struct {
	ID            string     `gorm:"primaryKey;size:64" json:"id"`
	SharingUserID string     `gorm:"size:64;index" json:"sharingUserId"`
	SharedWith    StringList `gorm:"type:text" json:"sharedWithUserIds"`
	IsActive      bool       `gorm:"index" json:"isActive"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
