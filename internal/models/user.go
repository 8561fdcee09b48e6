package models

import (
	"time"

	"github.com/gin-gonic/gin"
)

// context key set by the auth middleware
const CtxUserKey = "current_user"

// User mirrors the auth provider's identity record plus the device fields the
// alert pipeline needs (push token for Expo, phone for the SMS fallback).
type User struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	Username    string `gorm:"size:64;uniqueIndex" json:"username"`
	DisplayName string `gorm:"size:128" json:"displayName"`
	Email       string `gorm:"size:128" json:"email"`
	PhoneNumber string `gorm:"size:32" json:"phoneNumber"`
	PushToken   string `gorm:"size:256" json:"-"`
	AvatarURL   string `gorm:"size:1024" json:"avatarUrl"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EmergencyContact links a tracked user to one person who gets alerted.
// Priority orders who is listed first on the contact's screens.
type EmergencyContact struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UserID    string `gorm:"size:64;index:idx_user_contact,unique" json:"user_id"`
	ContactID string `gorm:"size:64;index:idx_user_contact,unique" json:"contact_id"`
	Priority  int    `json:"priority"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CurrentUser returns the signed-in user placed on the context by the auth
// middleware, or nil on unauthenticated routes.
func CurrentUser(c *gin.Context) *User {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*User)
	return u
}
