package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

// UserRefresh exchanges a refresh token for a new pair. The presented
// token is dead afterwards whether or not the client saw the response.
func (a *API) UserRefresh(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	var data refreshBody
	if err := c.ShouldBind(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Error("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if data.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No refresh token provided",
			"requestID": requestID,
		})
		return
	}

	pair, err := a.Accounts.Refresh(c.Request.Context(), data.RefreshToken)
	if err != nil {
		writeError(c, requestID, err)
		return
	}

	setAuthCookies(c, pair.AccessToken, pair.ExpiresIn)

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresIn":    pair.ExpiresIn,
	})
}
