package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UsageFetch reports today's consumption without charging anything
func (a *API) UsageFetch(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	count, ceiling, err := a.Accounts.Usage(c.Request.Context(), userID)
	if err != nil {
		writeError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"used":      count,
		"limit":     ceiling,
		"remaining": ceiling - count,
		"requestID": requestID,
	})
}

type usageBody struct {
	Cost int `json:"cost"`
}

// UsageConsume is what the chat pipeline calls before doing billable
// work. The charge either fully lands or the request fails with the
// quota error, there is no partial state.
func (a *API) UsageConsume(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	data := usageBody{Cost: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBind(&data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Invalid request body",
				"requestID": requestID,
			})

			zap.L().Error("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
			return
		}
	}

	count, err := a.Accounts.CheckAndIncrementUsage(c.Request.Context(), userID, data.Cost)
	if err != nil {
		writeError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"used":      count,
		"requestID": requestID,
	})
}
