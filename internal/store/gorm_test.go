package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wopsai/auth-api/internal/model"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	viper.Set("storage.driver", "sqlite")
	viper.Set("storage.path", "file:"+filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=5000&_txlock=immediate")

	s, err := NewGorm(5 * time.Second)
	require.NoError(t, err)

	return s
}

func seedUser(t *testing.T, s Store, id, email string) *model.User {
	t.Helper()

	u := &model.User{
		ID:        id,
		Email:     email,
		Role:      model.RoleUser,
		Plan:      model.PlanFree,
		Active:    true,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateUser(context.Background(), u))

	return u
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "u1", "bob@clipboardhealth.com")

	u, err := s.GetUserByEmail(ctx, "bob@clipboardhealth.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	u.Active = false
	u.PasswordHash = "hash"
	require.NoError(t, s.UpdateUser(ctx, u))

	got, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.GetUserByEmail(ctx, "nobody@clipboardhealth.com")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.CreateUser(ctx, &model.User{ID: "u2", Email: "bob@clipboardhealth.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestConsumeTokenSingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tok := &model.VerificationToken{
		Token:     "tok1",
		Email:     "bob@clipboardhealth.com",
		Purpose:   model.PurposeVerify,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.PutToken(ctx, tok))

	require.NoError(t, s.ConsumeToken(ctx, "tok1"))
	assert.ErrorIs(t, s.ConsumeToken(ctx, "tok1"), ErrConditionFailed)
	assert.ErrorIs(t, s.ConsumeToken(ctx, "missing"), ErrConditionFailed)
}

func TestConsumeTokenConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutToken(ctx, &model.VerificationToken{
		Token:     "racy",
		Email:     "bob@clipboardhealth.com",
		Purpose:   model.PurposeVerify,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}))

	const workers = 8

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := s.ConsumeToken(ctx, "racy"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPutTokenInvalidatesOutstanding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(token string) *model.VerificationToken {
		return &model.VerificationToken{
			Token:     token,
			Email:     "bob@clipboardhealth.com",
			Purpose:   model.PurposeVerify,
			ExpiresAt: time.Now().Add(time.Hour),
			CreatedAt: time.Now(),
		}
	}

	require.NoError(t, s.PutToken(ctx, mk("t1")))
	require.NoError(t, s.PutToken(ctx, mk("t2")))

	t1, err := s.GetToken(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, t1.Used)

	t2, err := s.GetToken(ctx, "t2")
	require.NoError(t, err)
	assert.False(t, t2.Used)
}

func TestPutTokenLeavesOtherPurposesAlone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutToken(ctx, &model.VerificationToken{
		Token: "verify-tok", Email: "bob@clipboardhealth.com", Purpose: model.PurposeVerify,
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}))
	require.NoError(t, s.PutToken(ctx, &model.VerificationToken{
		Token: "reset-tok", Email: "bob@clipboardhealth.com", Purpose: model.PurposeReset,
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}))

	v, err := s.GetToken(ctx, "verify-tok")
	require.NoError(t, err)
	assert.False(t, v.Used)
}

func TestRefreshTokenRevocation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "u1", "bob@clipboardhealth.com")

	mk := func(id string) {
		require.NoError(t, s.PutRefreshToken(ctx, &model.RefreshToken{
			ID: id, UserID: "u1", ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
		}))
	}

	mk("r1")
	mk("r2")

	require.NoError(t, s.RevokeRefreshToken(ctx, "r1"))
	assert.ErrorIs(t, s.RevokeRefreshToken(ctx, "r1"), ErrConditionFailed)
	assert.ErrorIs(t, s.RevokeRefreshToken(ctx, "missing"), ErrNotFound)

	require.NoError(t, s.RevokeAllRefreshTokens(ctx, "u1"))

	r2, err := s.GetRefreshToken(ctx, "r2")
	require.NoError(t, err)
	assert.True(t, r2.Revoked)
}

func TestIncrementUsageCeiling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "u1", "bob@clipboardhealth.com")
	date := model.UsageDate(time.Now())

	for i := 1; i <= 3; i++ {
		n, err := s.IncrementUsage(ctx, "u1", date, 1, 3)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	_, err := s.IncrementUsage(ctx, "u1", date, 1, 3)
	assert.ErrorIs(t, err, ErrConditionFailed)

	n, err := s.GetUsage(ctx, "u1", date)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIncrementUsageConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "u1", "bob@clipboardhealth.com")
	date := model.UsageDate(time.Now())

	const ceiling = 20
	const attempts = 30

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := s.IncrementUsage(ctx, "u1", date, 1, ceiling); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, ceiling, wins)

	n, err := s.GetUsage(ctx, "u1", date)
	require.NoError(t, err)
	assert.Equal(t, ceiling, n)
}

func TestRecordLoginFailureLockout(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "u1", "bob@clipboardhealth.com")

	for i := 1; i <= 4; i++ {
		n, err := s.RecordLoginFailure(ctx, "u1", 5, 30*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	u, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, u.LockUntil)

	n, err := s.RecordLoginFailure(ctx, "u1", 5, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	u, err = s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.LockUntil)
	assert.True(t, u.Locked(time.Now()))

	require.NoError(t, s.ResetLoginFailures(ctx, "u1"))

	u, err = s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, u.FailedLogins)
	assert.Nil(t, u.LockUntil)
	assert.NotNil(t, u.LastLogin)
}
