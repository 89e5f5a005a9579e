package api

import (
	"errors"
	"net/http"

	"wopsai/auth-api/internal/account"

	"github.com/gin-gonic/gin"
)

// UserFetch returns the record of whoever the access token belongs to
func (a *API) UserFetch(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	user, err := a.Accounts.User(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, account.ErrUnauthorized) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "User not found",
				"requestID": requestID,
			})
			return
		}

		writeError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":      user,
		"requestID": requestID,
	})
}
