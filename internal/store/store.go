// Package store persists users, verification tokens, refresh tokens and
// usage counters. Two interchangeable backends exist: a gorm-backed local
// store (sqlite or postgres) and a DynamoDB store for AWS deployments.
// The account package never sees which one it talks to.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wopsai/auth-api/internal/model"

	"github.com/spf13/viper"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	// ErrConditionFailed means a conditional write lost: the token was
	// consumed already, the quota ceiling was hit, and so on
	ErrConditionFailed = errors.New("conditional write failed")
	ErrUnavailable     = errors.New("store unavailable")
)

type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	UpdateUser(ctx context.Context, u *model.User) error

	// PutToken stores t and invalidates any outstanding unconsumed token
	// for the same (email, purpose) pair
	PutToken(ctx context.Context, t *model.VerificationToken) error
	GetToken(ctx context.Context, token string) (*model.VerificationToken, error)
	// ConsumeToken marks a token used iff it wasn't already. The loser of
	// a double redemption gets ErrConditionFailed.
	ConsumeToken(ctx context.Context, token string) error

	PutRefreshToken(ctx context.Context, t *model.RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*model.RefreshToken, error)
	// RevokeRefreshToken revokes iff not yet revoked, ErrConditionFailed
	// otherwise. Rotation relies on this to keep refresh tokens single-use.
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	GetUsage(ctx context.Context, userID, date string) (int, error)
	// IncrementUsage adds cost to the day's counter iff the result stays
	// at or under ceiling, returning the new count. ErrConditionFailed
	// when the ceiling would be exceeded.
	IncrementUsage(ctx context.Context, userID, date string, cost, ceiling int) (int, error)

	// RecordLoginFailure bumps the failed-login counter and, at
	// threshold, stamps the lockout. Returns the new counter value.
	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockFor time.Duration) (int, error)
	// ResetLoginFailures zeroes the counter, clears the lockout and
	// records a successful login
	ResetLoginFailures(ctx context.Context, userID string) error
}

// New selects the backend from storage.type. "local" runs gorm over
// sqlite or postgres, "dynamodb" talks to the managed tables.
func New() (Store, error) {
	timeout := viper.GetDuration("storage.timeout")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	switch t := viper.GetString("storage.type"); t {
	case "local":
		return NewGorm(timeout)
	case "dynamodb":
		return NewDynamo(timeout)
	default:
		return nil, fmt.Errorf("unknown storage type %q", t)
	}
}
