package middleware

import (
	"time"

	"Safii/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DeviceAudit is a row per sign-in recording which device the identity came
// from; support uses it when a user reports an account they don't recognize.
type DeviceAudit struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string `gorm:"size:64;index" json:"user_id"`
	IPAddress string `gorm:"size:64" json:"ip_address"`
	Platform  string `gorm:"size:64" json:"platform"`
	OS        string `gorm:"size:64" json:"os"`
	Browser   string `gorm:"size:64" json:"browser"`
	CreatedAt time.Time
}

// RecordDeviceAudit persists the device fingerprint of a sign-in. Failure is
// logged, never blocks the sign-in.
func RecordDeviceAudit(db *gorm.DB, c *gin.Context, userID string) {
	ua := user_agent.New(c.GetHeader("User-Agent"))
	browser, version := ua.Browser()

	audit := DeviceAudit{
		UserID:    userID,
		IPAddress: c.ClientIP(),
		Platform:  ua.Platform(),
		OS:        ua.OS(),
		Browser:   browser + " " + version,
	}
	if err := db.Create(&audit).Error; err != nil {
		logger.Warn("device audit write failed", zap.String("user_id", userID), zap.Error(err))
	}
}
