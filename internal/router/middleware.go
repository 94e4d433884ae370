package router

import (
	"net/http"

	"eyetrack-go/internal/config"
	"eyetrack-go/internal/handlers"
	"eyetrack-go/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionDirtyKey = "session_dirty"

// SaveSession writes the cookie session once when the middleware before it
// issued a nonce or token. Every Save emits its own Set-Cookie header.
func SaveSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(sessionDirtyKey) {
			if err := sessions.Default(c).Save(); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
				return
			}
		}
		c.Next()
	}
}

// SessionOwner only lets through requests from the browser that started the
// experiment session named in the path.
func SessionOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		owned, _ := session.Get(handlers.SessionKey).(string)
		if owned == "" || owned != c.Param("id") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not your session"})
			return
		}
		c.Next()
	}
}

// AdminRequired checks HTTP basic credentials against the configured admin.
// The admin is read on every request so a reloaded config applies at once.
func AdminRequired(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin := models.Admin{
			Username:     config.Conf.Admin.Username,
			PasswordHash: config.Conf.Admin.PasswordHash,
		}
		user, password, ok := c.Request.BasicAuth()
		if !ok || user != admin.Username || !admin.CheckPassword(password) {
			if ok {
				log.Warn("Rejected admin login", zap.String("user", user), zap.String("client_ip", c.ClientIP()))
			}
			c.Header("WWW-Authenticate", `Basic realm="results"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
