package router

import (
	"errors"
	"fmt"
	"net/http"

	"eyetrack-go/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const CspNonceContextKey = "csp_nonce"

// NonceMiddleware keeps a CSP nonce per cookie session and adds it to the
// context for the Content-Security-Policy header and templates. A new nonce is
// written by SaveSession.
func NonceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		nonce, _ := session.Get(CspNonceContextKey).(string)
		if nonce == "" {
			var err error
			nonce, err = utils.GenerateSecureToken(32)
			if err != nil {
				c.AbortWithError(http.StatusInternalServerError, errors.New("failed to generate CSP nonce"))
				return
			}
			session.Set(CspNonceContextKey, nonce)
			c.Set(sessionDirtyKey, true)
		}

		c.Set(CspNonceContextKey, nonce)
		c.Next()
	}
}

// ContentSecurityPolicy allows scripts from this origin, the CDN the gaze
// tracker and charts load from, and inline scripts carrying the nonce.
func ContentSecurityPolicy() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce := c.GetString(CspNonceContextKey)
		c.Header("Content-Security-Policy", fmt.Sprintf(
			"default-src 'self'; script-src 'self' https://cdn.jsdelivr.net 'nonce-%s'; style-src 'self' 'unsafe-inline'; img-src 'self' data: blob:; media-src 'self' blob: mediastream:; worker-src 'self' blob:; connect-src 'self'",
			nonce,
		))
		c.Next()
	}
}
