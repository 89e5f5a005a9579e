package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type logoutBody struct {
	RefreshToken string `json:"refreshToken"`
}

// UserLogout revokes a refresh token. Idempotent: logging out twice is
// still a logout.
func (a *API) UserLogout(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	var data logoutBody
	if err := c.ShouldBind(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Error("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if err := a.Accounts.Logout(c.Request.Context(), data.RefreshToken); err != nil {
		writeError(c, requestID, err)
		return
	}

	secure := false
	c.SetCookie("auth_token", "", -1, "/", "", secure, true)
	c.SetCookie("logged_in", "", -1, "/", "", secure, false)

	c.JSON(http.StatusOK, gin.H{
		"message":   "Logged out",
		"requestID": requestID,
	})
}
