package account

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wopsai/auth-api/internal/model"
	"wopsai/auth-api/internal/store"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentToken struct {
	email   string
	purpose string
	token   string
}

// fakeNotifier captures dispatched tokens so tests can redeem them the
// way a user clicking a mail link would
type fakeNotifier struct {
	ch chan sentToken
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan sentToken, 16)}
}

func (n *fakeNotifier) Send(_ context.Context, email, purpose, token string) error {
	n.ch <- sentToken{email: email, purpose: purpose, token: token}
	return nil
}

// waitToken blocks for the next notification, which arrives on a
// goroutine the manager fires
func (n *fakeNotifier) waitToken(t *testing.T) sentToken {
	t.Helper()

	select {
	case s := <-n.ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("no notification arrived")
		return sentToken{}
	}
}

func (n *fakeNotifier) expectNone(t *testing.T) {
	t.Helper()

	select {
	case s := <-n.ch:
		t.Fatalf("unexpected notification for %s (%s)", s.email, s.purpose)
	case <-time.After(200 * time.Millisecond):
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeNotifier) {
	t.Helper()

	viper.Set("storage.driver", "sqlite")
	viper.Set("storage.path", "file:"+filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=5000&_txlock=immediate")

	viper.Set("auth.jwt_secret", "test-secret-test-secret-test-secret")
	viper.Set("auth.access_ttl", 30*time.Minute)
	viper.Set("auth.refresh_ttl", 7*24*time.Hour)
	viper.Set("auth.verify_ttl", 24*time.Hour)
	viper.Set("auth.reset_ttl", time.Hour)
	viper.Set("auth.assert_ttl", 15*time.Minute)
	viper.Set("auth.lock_threshold", 5)
	viper.Set("auth.lock_duration", 30*time.Minute)
	viper.Set("auth.allowed_domains", "clipboardhealth.com,wops-ai.com")
	viper.Set("auth.plans.free", 10)
	viper.Set("auth.plans.premium", 100)
	viper.Set("auth.plans.enterprise", 1000)
	viper.Set("auth.bootstrap_admin_email", "")

	s, err := store.NewGorm(5 * time.Second)
	require.NoError(t, err)

	n := newFakeNotifier()

	return NewManager(s, n), n
}

// signup walks a user through register, verify and set-password and
// returns the login token pair
func signup(t *testing.T, m *Manager, n *fakeNotifier, email, password string) *TokenPair {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, email))

	sent := n.waitToken(t)
	require.Equal(t, model.PurposeVerify, sent.purpose)

	assertion, err := m.VerifyEmail(ctx, email, sent.token)
	require.NoError(t, err)

	pair, u, err := m.SetPassword(ctx, email, assertion, password)
	require.NoError(t, err)
	require.True(t, u.Active)

	return pair
}

func TestSignupAndLogin(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	pair := signup(t, m, n, "bob@clipboardhealth.com", "hunter2hunter2")
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	userID, role, err := m.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.NotEmpty(t, userID)
	assert.Equal(t, model.RoleUser, role)

	u, err := m.CurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "bob@clipboardhealth.com", u.Email)

	_, _, err = m.Login(ctx, "bob@clipboardhealth.com", "hunter2hunter2")
	require.NoError(t, err)

	_, _, err = m.Login(ctx, "bob@clipboardhealth.com", "wrong-password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = m.Login(ctx, "nobody@clipboardhealth.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDomainNotAllowed(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Register(context.Background(), "eve@gmail.com")
	assert.ErrorIs(t, err, ErrDomainNotAllowed)
}

func TestRegisterAgainReissuesToken(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "bob@clipboardhealth.com"))
	first := n.waitToken(t)

	require.NoError(t, m.Register(ctx, "bob@clipboardhealth.com"))
	second := n.waitToken(t)

	require.NotEqual(t, first.token, second.token)

	// re-registering invalidates the earlier token
	_, err := m.VerifyEmail(ctx, "bob@clipboardhealth.com", first.token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = m.VerifyEmail(ctx, "bob@clipboardhealth.com", second.token)
	assert.NoError(t, err)
}

func TestRegisterAlreadyActive(t *testing.T) {
	m, n := newTestManager(t)

	signup(t, m, n, "bob@clipboardhealth.com", "hunter2hunter2")

	err := m.Register(context.Background(), "bob@clipboardhealth.com")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestVerifyTokenSingleUse(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "bob@clipboardhealth.com"))
	sent := n.waitToken(t)

	_, err := m.VerifyEmail(ctx, "bob@clipboardhealth.com", sent.token)
	require.NoError(t, err)

	_, err = m.VerifyEmail(ctx, "bob@clipboardhealth.com", sent.token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyTokenWrongEmail(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "bob@clipboardhealth.com"))
	sent := n.waitToken(t)

	_, err := m.VerifyEmail(ctx, "alice@clipboardhealth.com", sent.token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyTokenExpired(t *testing.T) {
	m, n := newTestManager(t)
	m.verifyTTL = -time.Minute
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "bob@clipboardhealth.com"))
	sent := n.waitToken(t)

	_, err := m.VerifyEmail(ctx, "bob@clipboardhealth.com", sent.token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestLoginLockout(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	signup(t, m, n, "bob@clipboardhealth.com", "hunter2hunter2")

	for range 5 {
		_, _, err := m.Login(ctx, "bob@clipboardhealth.com", "wrong-password1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// locked now, even with the right password
	_, _, err := m.Login(ctx, "bob@clipboardhealth.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestRefreshRotation(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	pair := signup(t, m, n, "bob@clipboardhealth.com", "hunter2hunter2")

	next, err := m.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// the rotated-out token is dead
	_, err = m.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// the new one still works
	_, err = m.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestLogoutIdempotent(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	pair := signup(t, m, n, "bob@clipboardhealth.com", "hunter2hunter2")

	require.NoError(t, m.Logout(ctx, pair.RefreshToken))
	require.NoError(t, m.Logout(ctx, pair.RefreshToken))
	require.NoError(t, m.Logout(ctx, "never-existed"))

	_, err := m.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestPasswordResetRevokesSessions(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	first := signup(t, m, n, "bob@clipboardhealth.com", "hunter2hunter2")

	second, _, err := m.Login(ctx, "bob@clipboardhealth.com", "hunter2hunter2")
	require.NoError(t, err)

	require.NoError(t, m.RequestPasswordReset(ctx, "bob@clipboardhealth.com"))
	sent := n.waitToken(t)
	require.Equal(t, model.PurposeReset, sent.purpose)

	fresh, _, err := m.ConfirmPasswordReset(ctx, "bob@clipboardhealth.com", sent.token, "newpassword99")
	require.NoError(t, err)

	// every session from before the reset is gone
	_, err = m.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = m.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// the pair issued by the reset itself survives
	_, err = m.Refresh(ctx, fresh.RefreshToken)
	assert.NoError(t, err)

	_, _, err = m.Login(ctx, "bob@clipboardhealth.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = m.Login(ctx, "bob@clipboardhealth.com", "newpassword99")
	assert.NoError(t, err)
}

func TestPasswordResetUnknownEmailSilent(t *testing.T) {
	m, n := newTestManager(t)

	require.NoError(t, m.RequestPasswordReset(context.Background(), "ghost@clipboardhealth.com"))
	n.expectNone(t)
}

func TestUsageQuota(t *testing.T) {
	m, n := newTestManager(t)
	m.ceilings[model.PlanFree] = 3
	ctx := context.Background()

	pair := signup(t, m, n, "bob@clipboardhealth.com", "hunter2hunter2")

	userID, _, err := m.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		count, err := m.CheckAndIncrementUsage(ctx, userID, 1)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	_, err = m.CheckAndIncrementUsage(ctx, userID, 1)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	count, ceiling, err := m.Usage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, ceiling)
}

func TestUsageQuotaConcurrent(t *testing.T) {
	m, n := newTestManager(t)
	m.ceilings[model.PlanFree] = 5
	ctx := context.Background()

	pair := signup(t, m, n, "bob@clipboardhealth.com", "hunter2hunter2")

	userID, _, err := m.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := m.CheckAndIncrementUsage(ctx, userID, 1); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 5, wins)
}

func TestUsageCostAboveCeiling(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	pair := signup(t, m, n, "bob@clipboardhealth.com", "hunter2hunter2")

	userID, _, err := m.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)

	_, err = m.CheckAndIncrementUsage(ctx, userID, 11)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestValidateAccessGarbage(t *testing.T) {
	m, _ := newTestManager(t)

	_, _, err := m.ValidateAccess("not.a.jwt")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
