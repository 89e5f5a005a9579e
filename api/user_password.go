package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type setPasswordBody struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

// UserSetPassword finishes signup: password stored, account activated,
// and the user logged straight in
func (a *API) UserSetPassword(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	var data setPasswordBody
	if err := c.ShouldBind(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Error("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	pair, user, err := a.Accounts.SetPassword(c.Request.Context(), data.Email, data.Token, data.Password)
	if err != nil {
		writeError(c, requestID, err)
		return
	}

	setAuthCookies(c, pair.AccessToken, pair.ExpiresIn)

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresIn":    pair.ExpiresIn,
		"user":         user,
	})
}

func setAuthCookies(c *gin.Context, accessToken string, maxAge int) {
	secure := viper.GetBool("host.ssl.enabled")

	c.SetCookie("auth_token", accessToken, maxAge, "/", "", secure, true)
	c.SetCookie("logged_in", "1", maxAge, "/", "", secure, false)
}
