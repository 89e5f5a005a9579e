package api

import (
	"errors"
	"net/http"

	"wopsai/auth-api/internal/account"
	"wopsai/auth-api/validators"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var validationErrs = []error{
	validators.ErrEmailEmpty,
	validators.ErrEmailInvalid,
	validators.ErrPasswordEmpty,
	validators.ErrPasswordTooShort,
	validators.ErrPasswordTooLong,
	validators.ErrPasswordTooSimple,
}

// writeError maps the account error taxonomy onto HTTP statuses. Every
// branch keeps enough detail for a user-facing message without saying
// whether an email exists.
func writeError(c *gin.Context, requestID string, err error) {
	for _, v := range validationErrs {
		if errors.Is(err, v) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     v.Error(),
				"requestID": requestID,
			})
			return
		}
	}

	switch {
	case errors.Is(err, account.ErrDomainNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "This email domain is not allowed to register",
			"requestID": requestID,
		})
	case errors.Is(err, account.ErrAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "This email is already registered. Please login or use a different email",
			"requestID": requestID,
		})
	case errors.Is(err, account.ErrTokenExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Token expired",
			"requestID": requestID,
		})
	case errors.Is(err, account.ErrTokenInvalid):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Token invalid or already used",
			"requestID": requestID,
		})
	case errors.Is(err, account.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     "Invalid credentials",
			"requestID": requestID,
		})
	case errors.Is(err, account.ErrAccountLocked):
		c.JSON(http.StatusLocked, gin.H{
			"error":     "Account temporarily locked after too many failed logins",
			"requestID": requestID,
		})
	case errors.Is(err, account.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     "Daily usage quota exceeded",
			"requestID": requestID,
		})
	case errors.Is(err, account.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     "Unauthorized",
			"requestID": requestID,
		})
	case errors.Is(err, account.ErrStoreUnavailable):
		// The one error worth a caller-side retry
		c.Header("Retry-After", "2")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "Service temporarily unavailable, please retry",
			"requestID": requestID,
		})

		zap.L().Error("Store unavailable", zap.Error(err), zap.String("requestID", requestID))
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Unhandled error", zap.Error(err), zap.String("requestID", requestID))
	}
}
