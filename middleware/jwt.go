// Package middleware contains any custom middleware used in the app
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"wopsai/auth-api/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

// NewJWTMiddleware authenticates requests with a stateless access token,
// taken from the Authorization header or the auth_token cookie. No store
// lookup happens here; revocation lives at the refresh-token layer.
func NewJWTMiddleware() gin.HandlerFunc {
	secret := []byte(viper.GetString("auth.jwt_secret"))

	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		tokenStr := ""

		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenStr = strings.TrimPrefix(h, "Bearer ")
		} else if cookie, err := c.Cookie("auth_token"); err == nil {
			tokenStr = cookie
		}

		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "No access token provided",
				"requestID": requestID,
			})
			return
		}

		claims, err := security.ParseAccessToken(secret, tokenStr)
		if err != nil {
			msg := "token_invalid"
			if errors.Is(err, security.ErrCredentialExpired) {
				msg = "token_expired"
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     msg,
				"requestID": requestID,
			})
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}
