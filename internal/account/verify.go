package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"wopsai/auth-api/internal/model"
	"wopsai/auth-api/internal/store"
)

// VerifyEmail redeems a verification token and hands back a short-lived
// assertion token. The caller proves control of the mailbox here; the
// account only activates once set-password presents that assertion.
func (m *Manager) VerifyEmail(ctx context.Context, email, token string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := m.consume(ctx, email, token, model.PurposeVerify); err != nil {
		return "", err
	}

	return m.issueVerification(ctx, email, model.PurposeVerified, m.assertTTL)
}

// consume validates and burns a single-use token in one conditional
// write. Purpose and email must match, expiry is checked before the
// consume so an expired token reports as expired even if unused.
func (m *Manager) consume(ctx context.Context, email, token, purpose string) error {
	t, err := m.store.GetToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenInvalid
		}

		return mapStoreErr(err)
	}

	if t.Used || t.Purpose != purpose || !strings.EqualFold(t.Email, email) {
		return ErrTokenInvalid
	}

	if t.ExpiresAt.Before(time.Now()) {
		return ErrTokenExpired
	}

	if err := m.store.ConsumeToken(ctx, token); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return ErrTokenInvalid
		}

		return mapStoreErr(err)
	}

	return nil
}
