// Package account holds the business rules of the auth subsystem:
// registration, verification, login, token rotation, password resets and
// usage metering. It talks to the world through the store and notifier
// interfaces only.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wopsai/auth-api/internal/model"
	"wopsai/auth-api/internal/service"
	"wopsai/auth-api/internal/store"
	"wopsai/auth-api/pkg/security"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Manager struct {
	store    store.Store
	notifier service.Notifier
	argon    *security.ArgonHash

	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	verifyTTL  time.Duration
	resetTTL   time.Duration
	assertTTL  time.Duration

	lockThreshold int
	lockDuration  time.Duration

	allowedDomains []string
	ceilings       map[model.Plan]int
	bootstrapAdmin string
}

// TokenPair is what a completed login hands back: a stateless access
// token and a stored, revocable refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

func NewManager(s store.Store, n service.Notifier) *Manager {
	ceilings := map[model.Plan]int{
		model.PlanFree:       viper.GetInt("auth.plans.free"),
		model.PlanPremium:    viper.GetInt("auth.plans.premium"),
		model.PlanEnterprise: viper.GetInt("auth.plans.enterprise"),
	}

	var domains []string
	for _, d := range strings.Split(viper.GetString("auth.allowed_domains"), ",") {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}

	return &Manager{
		store:          s,
		notifier:       n,
		argon:          security.NewArgon(),
		jwtSecret:      []byte(viper.GetString("auth.jwt_secret")),
		accessTTL:      viper.GetDuration("auth.access_ttl"),
		refreshTTL:     viper.GetDuration("auth.refresh_ttl"),
		verifyTTL:      viper.GetDuration("auth.verify_ttl"),
		resetTTL:       viper.GetDuration("auth.reset_ttl"),
		assertTTL:      viper.GetDuration("auth.assert_ttl"),
		lockThreshold:  viper.GetInt("auth.lock_threshold"),
		lockDuration:   viper.GetDuration("auth.lock_duration"),
		allowedDomains: domains,
		ceilings:       ceilings,
		bootstrapAdmin: strings.ToLower(viper.GetString("auth.bootstrap_admin_email")),
	}
}

func (m *Manager) domainAllowed(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}

	domain := strings.ToLower(email[at+1:])

	for _, d := range m.allowedDomains {
		if domain == d {
			return true
		}
	}

	return false
}

// mapStoreErr turns backend failures into the one retryable error of the
// taxonomy, leaving sentinel errors from this package untouched
func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return err
}

// notify dispatches a verification or reset message without blocking the
// caller. Delivery is best-effort: a broken SMTP relay must never fail a
// registration.
func (m *Manager) notify(email, purpose, token string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := m.notifier.Send(ctx, email, purpose, token); err != nil {
			zap.L().Error("Failed to dispatch notification",
				zap.Error(err),
				zap.String("purpose", purpose))
		}
	}()
}

func (m *Manager) issueTokens(ctx context.Context, u *model.User) (*TokenPair, error) {
	access, err := security.MakeAccessToken(m.jwtSecret, u.ID, string(u.Role), m.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token, %w", err)
	}

	rt, err := newRefreshToken(u.ID, m.refreshTTL)
	if err != nil {
		return nil, err
	}

	if err := m.store.PutRefreshToken(ctx, rt); err != nil {
		return nil, mapStoreErr(err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rt.ID,
		ExpiresIn:    int(m.accessTTL.Seconds()),
	}, nil
}

// ValidateAccess checks an access token with no store round-trip. This is
// what the chat pipeline calls on every request.
func (m *Manager) ValidateAccess(token string) (userID string, role model.Role, err error) {
	claims, err := security.ParseAccessToken(m.jwtSecret, token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	return claims.UserID, model.Role(claims.Role), nil
}

// CurrentUser resolves an access token to the full user record
func (m *Manager) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	userID, _, err := m.ValidateAccess(token)
	if err != nil {
		return nil, err
	}

	return m.User(ctx, userID)
}

// User fetches a user by id. A missing record reports as ErrUnauthorized
// since the only ids in circulation come from signed credentials.
func (m *Manager) User(ctx context.Context, userID string) (*model.User, error) {
	u, err := m.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}

		return nil, mapStoreErr(err)
	}

	return u, nil
}
