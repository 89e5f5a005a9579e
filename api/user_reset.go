package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type resetRequestBody struct {
	Email string `json:"email"`
}

// UserRequestReset always answers the same way whether or not the email
// exists, so the endpoint can't be used to enumerate accounts
func (a *API) UserRequestReset(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	var data resetRequestBody
	if err := c.ShouldBind(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Error("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if err := a.Accounts.RequestPasswordReset(c.Request.Context(), data.Email); err != nil {
		writeError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "If that email exists, a reset link has been sent",
		"requestID": requestID,
	})
}

type resetConfirmBody struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// UserConfirmReset replaces the password and logs every device out; the
// returned pair belongs to the device that completed the reset
func (a *API) UserConfirmReset(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	var data resetConfirmBody
	if err := c.ShouldBind(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Error("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	pair, user, err := a.Accounts.ConfirmPasswordReset(c.Request.Context(), data.Email, data.Token, data.NewPassword)
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
