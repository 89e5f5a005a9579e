package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"wopsai/auth-api/internal/model"
	"wopsai/auth-api/internal/store"
	"wopsai/auth-api/pkg/security"
	"wopsai/auth-api/validators"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const tokenSize = 32

// Register starts the signup flow: an inactive user row plus a
// verification token mailed out-of-band. Calling it again for the same
// email re-issues a fresh token instead of erroring, so a lost mail is
// recoverable by just registering again.
func (m *Manager) Register(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validators.EmailValidator(email); err != nil {
		return err
	}

	if !m.domainAllowed(email) {
		return ErrDomainNotAllowed
	}

	existing, err := m.store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return mapStoreErr(err)
	}

	if existing != nil && existing.Active {
		return ErrAlreadyRegistered
	}

	if existing == nil {
		userID, err := gonanoid.Generate(idCharset, 16)
		if err != nil {
			return err
		}

		role := model.RoleUser
		if m.bootstrapAdmin != "" && email == m.bootstrapAdmin {
			role = model.RoleAdmin
		}

		u := &model.User{
			ID:        userID,
			Email:     email,
			Role:      role,
			Plan:      model.PlanFree,
			Active:    false,
			CreatedAt: time.Now(),
		}

		if err := m.store.CreateUser(ctx, u); err != nil {
			// Lost a race with a concurrent registration for the same
			// email; the token below still goes to the right address
			if !errors.Is(err, store.ErrDuplicate) {
				return mapStoreErr(err)
			}
		}
	}

	token, err := m.issueVerification(ctx, email, model.PurposeVerify, m.verifyTTL)
	if err != nil {
		return err
	}

	m.notify(email, model.PurposeVerify, token)

	return nil
}

// issueVerification creates and stores a fresh single-use token,
// invalidating any outstanding one for the same (email, purpose)
func (m *Manager) issueVerification(ctx context.Context, email, purpose string, ttl time.Duration) (string, error) {
	token, err := security.GenerateToken(tokenSize)
	if err != nil {
		return "", err
	}

	t := &model.VerificationToken{
		Token:     token,
		Email:     email,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}

	if err := m.store.PutToken(ctx, t); err != nil {
		return "", mapStoreErr(err)
	}

	return token, nil
}
