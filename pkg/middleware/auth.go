package middleware

import (
	"net/http"

	"Safii/internal/models"
	"Safii/pkg/response"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const sessionUIDKey = "uid"

// SignIn records the authenticated identity on the cookie session. The
// identity itself comes from the external auth provider; this layer only
// remembers it.
func SignIn(c *gin.Context, uid string) error {
	session := sessions.Default(c)
	session.Set(sessionUIDKey, uid)
	return session.Save()
}

// SignOut clears the session.
func SignOut(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}

// AuthRequired resolves the session's uid to a User and aborts with 401 when
// there is none. The user lands on the context for models.CurrentUser.
func AuthRequired(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		uid, _ := session.Get(sessionUIDKey).(string)
		if uid == "" {
			response.FailWithStatus(c, http.StatusUnauthorized, "not signed in")
			c.Abort()
			return
		}

		var user models.User
		if err := db.First(&user, "id = ?", uid).Error; err != nil {
			response.FailWithStatus(c, http.StatusUnauthorized, "unknown user")
			c.Abort()
			return
		}
		c.Set(models.CtxUserKey, &user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}
