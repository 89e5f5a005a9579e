package store

import (
	"time"

	"wopsai/auth-api/internal/model"

	"go.uber.org/zap"
)

// StartTokenCleanup periodically deletes expired verification and refresh
// tokens from the local store. Expiry is already checked lazily on every
// validation, this just keeps the tables from growing forever. The
// DynamoDB backend relies on native TTL instead, so this is a no-op there.
func StartTokenCleanup(s Store, every time.Duration) {
	gs, ok := s.(*gormStore)
	if !ok {
		return
	}

	ticker := time.NewTicker(every)

	zap.L().Debug("Token cleanup attached", zap.Duration("tick_every", every))

	go func() {
		for range ticker.C {
			now := time.Now()

			err := gs.db.
				Where("expires_at < ?", now).
				Delete(&model.VerificationToken{}).
				Error
			if err != nil {
				zap.L().Error("Failed to clean up expired verification tokens", zap.Error(err))
				continue
			}

			err = gs.db.
				Where("expires_at < ?", now).
				Delete(&model.RefreshToken{}).
				Error
			if err != nil {
				zap.L().Error("Failed to clean up expired refresh tokens", zap.Error(err))
			}
		}
	}()
}
