package account

import (
	"context"
	"errors"
	"strings"

	"wopsai/auth-api/internal/model"
	"wopsai/auth-api/internal/store"
	"wopsai/auth-api/validators"
)

// SetPassword finishes signup: it consumes the assertion token from
// VerifyEmail, stores the password hash, activates the account and logs
// the user straight in.
func (m *Manager) SetPassword(ctx context.Context, email, token, password string) (*TokenPair, *model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validators.PasswordValidator(password); err != nil {
		return nil, nil, err
	}

	if err := m.consume(ctx, email, token, model.PurposeVerified); err != nil {
		return nil, nil, err
	}

	u, err := m.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrTokenInvalid
		}

		return nil, nil, mapStoreErr(err)
	}

	hash, err := m.argon.GenerateFromPassword(password)
	if err != nil {
		return nil, nil, err
	}

	u.PasswordHash = hash
	u.Active = true

	if err := m.store.UpdateUser(ctx, u); err != nil {
		return nil, nil, mapStoreErr(err)
	}

	pair, err := m.issueTokens(ctx, u)
	if err != nil {
		return nil, nil, err
	}

	return pair, u, nil
}

// RequestPasswordReset always reports success so callers can't probe
// which emails exist. A token is only issued and mailed when the account
// is real and active.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := m.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}

		return mapStoreErr(err)
	}

	if !u.Active {
		return nil
	}

	token, err := m.issueVerification(ctx, email, model.PurposeReset, m.resetTTL)
	if err != nil {
		return err
	}

	m.notify(email, model.PurposeReset, token)

	return nil
}

// ConfirmPasswordReset swaps the password hash and kills every live
// refresh token for the user, forcing a re-login on all devices, then
// issues a fresh pair for the device that performed the reset.
func (m *Manager) ConfirmPasswordReset(ctx context.Context, email, token, newPassword string) (*TokenPair, *model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validators.PasswordValidator(newPassword); err != nil {
		return nil, nil, err
	}

	if err := m.consume(ctx, email, token, model.PurposeReset); err != nil {
		return nil, nil, err
	}

	u, err := m.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrTokenInvalid
		}

		return nil, nil, mapStoreErr(err)
	}

	hash, err := m.argon.GenerateFromPassword(newPassword)
	if err != nil {
		return nil, nil, err
	}

	u.PasswordHash = hash

	if err := m.store.UpdateUser(ctx, u); err != nil {
		return nil, nil, mapStoreErr(err)
	}

	if err := m.store.RevokeAllRefreshTokens(ctx, u.ID); err != nil {
		return nil, nil, mapStoreErr(err)
	}

	pair, err := m.issueTokens(ctx, u)
	if err != nil {
		return nil, nil, err
	}

	return pair, u, nil
}
