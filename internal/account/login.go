package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"wopsai/auth-api/internal/model"
	"wopsai/auth-api/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newRefreshToken(userID string, ttl time.Duration) (*model.RefreshToken, error) {
	return &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}, nil
}

// Login checks credentials and issues a token pair. Failures feed the
// lockout counter; a locked account rejects even the correct password
// until the window passes.
func (m *Manager) Login(ctx context.Context, email, password string) (*TokenPair, *model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := m.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}

		return nil, nil, mapStoreErr(err)
	}

	if u.Locked(time.Now()) {
		return nil, nil, ErrAccountLocked
	}

	if !u.Active || u.PasswordHash == "" {
		m.recordFailure(ctx, u.ID)
		return nil, nil, ErrInvalidCredentials
	}

	ok, err := m.argon.VerifyPasswd(password, u.PasswordHash)
	if err != nil {
		return nil, nil, err
	}

	if !ok {
		m.recordFailure(ctx, u.ID)
		return nil, nil, ErrInvalidCredentials
	}

	if err := m.store.ResetLoginFailures(ctx, u.ID); err != nil {
		return nil, nil, mapStoreErr(err)
	}

	u.FailedLogins = 0
	u.LockUntil = nil

	pair, err := m.issueTokens(ctx, u)
	if err != nil {
		return nil, nil, err
	}

	return pair, u, nil
}

func (m *Manager) recordFailure(ctx context.Context, userID string) {
	n, err := m.store.RecordLoginFailure(ctx, userID, m.lockThreshold, m.lockDuration)
	if err != nil {
		zap.L().Error("Failed to record login failure", zap.Error(err), zap.String("userID", userID))
		return
	}

	if n >= m.lockThreshold {
		zap.L().Warn("Account locked after repeated login failures",
			zap.String("userID", userID),
			zap.Int("failures", n))
	}
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair comes back. Single-use tokens keep a stolen refresh token from
// being replayed quietly.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	rt, err := m.store.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenInvalid
		}

		return nil, mapStoreErr(err)
	}

	if rt.Revoked {
		return nil, ErrTokenInvalid
	}

	if rt.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	// Conditional revoke: of two concurrent refreshes only one survives
	if err := m.store.RevokeRefreshToken(ctx, rt.ID); err != nil {
		if errors.Is(err, store.ErrConditionFailed) || errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenInvalid
		}

		return nil, mapStoreErr(err)
	}

	u, err := m.store.GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenInvalid
		}

		return nil, mapStoreErr(err)
	}

	if !u.Active {
		return nil, ErrTokenInvalid
	}

	return m.issueTokens(ctx, u)
}

// Logout revokes a refresh token. Revoking one that's already gone is a
// success, the second call observes the same end state as the first.
func (m *Manager) Logout(ctx context.Context, refreshToken string) error {
	err := m.store.RevokeRefreshToken(ctx, refreshToken)
	if err != nil && !errors.Is(err, store.ErrConditionFailed) && !errors.Is(err, store.ErrNotFound) {
		return mapStoreErr(err)
	}

	return nil
}
