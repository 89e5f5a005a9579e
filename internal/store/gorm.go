package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wopsai/auth-api/internal/model"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewGorm opens the local store. storage.driver picks sqlite (default)
// or postgres, matching how the service runs in development vs a
// self-hosted deployment.
func NewGorm(timeout time.Duration) (Store, error) {
	var dial gorm.Dialector

	switch d := viper.GetString("storage.driver"); d {
	case "", "sqlite":
		path := viper.GetString("storage.path")
		if path == "" {
			path = "auth.db"
		}
		dial = sqlite.Open(path)
	case "postgres":
		dial = postgres.Open(viper.GetString("storage.dsn"))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", d)
	}

	db, err := gorm.Open(dial, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database, %w", err)
	}

	err = db.AutoMigrate(model.User{}, model.VerificationToken{}, model.RefreshToken{}, model.UsageRecord{})
	if err != nil {
		return nil, fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return &gormStore{db: db, timeout: timeout}, nil
}

// newGormWith wraps an already-open connection; used by tests
func newGormWith(db *gorm.DB, timeout time.Duration) Store {
	return &gormStore{db: db, timeout: timeout}
}

func (s *gormStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func mapGormErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (s *gormStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var u model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, mapGormErr(err)
	}

	return &u, nil
}

func (s *gormStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var u model.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, mapGormErr(err)
	}

	return &u, nil
}

func (s *gormStore) CreateUser(ctx context.Context, u *model.User) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	return mapGormErr(s.db.WithContext(ctx).Create(u).Error)
}

func (s *gormStore) UpdateUser(ctx context.Context, u *model.User) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	// Save writes zero values too, which matters for clearing lock_until
	// and failed_logins
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", u.ID).
		Select("email", "password_hash", "role", "plan", "active", "failed_logins", "lock_until", "last_login").
		Updates(u)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *gormStore) PutToken(ctx context.Context, t *model.VerificationToken) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		// Only one live token per (email, purpose) at a time
		if err := tx.Model(&model.VerificationToken{}).
			Where("email = ? AND purpose = ? AND used = ?", t.Email, t.Purpose, false).
			Updates(map[string]any{"used": true, "used_at": now}).Error; err != nil {
			return err
		}

		return tx.Create(t).Error
	})

	return mapGormErr(err)
}

func (s *gormStore) GetToken(ctx context.Context, token string) (*model.VerificationToken, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var t model.VerificationToken
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&t).Error; err != nil {
		return nil, mapGormErr(err)
	}

	return &t, nil
}

func (s *gormStore) ConsumeToken(ctx context.Context, token string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&model.VerificationToken{}).
		Where("token = ? AND used = ?", token, false).
		Updates(map[string]any{"used": true, "used_at": time.Now()})
	if res.Error != nil {
		return mapGormErr(res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrConditionFailed
	}

	return nil
}

func (s *gormStore) PutRefreshToken(ctx context.Context, t *model.RefreshToken) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	return mapGormErr(s.db.WithContext(ctx).Create(t).Error)
}

func (s *gormStore) GetRefreshToken(ctx context.Context, id string) (*model.RefreshToken, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var t model.RefreshToken
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, mapGormErr(err)
	}

	return &t, nil
}

func (s *gormStore) RevokeRefreshToken(ctx context.Context, id string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("id = ? AND revoked = ?", id, false).
		Update("revoked", true)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}

	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.RefreshToken{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return mapGormErr(err)
		}

		if count == 0 {
			return ErrNotFound
		}

		return ErrConditionFailed
	}

	return nil
}

func (s *gormStore) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	return mapGormErr(s.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error)
}

func (s *gormStore) GetUsage(ctx context.Context, userID, date string) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var r model.UsageRecord
	err := s.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, date).First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}

		return 0, mapGormErr(err)
	}

	return r.Count, nil
}

func (s *gormStore) IncrementUsage(ctx context.Context, userID, date string, cost, ceiling int) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var newCount int

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Make sure the day's row exists, then bump it with the ceiling
		// check inside the UPDATE itself so concurrent requests can't
		// jointly slip past the quota
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.UsageRecord{UserID: userID, Date: date, Count: 0}).Error; err != nil {
			return err
		}

		res := tx.Model(&model.UsageRecord{}).
			Where("user_id = ? AND date = ? AND count + ? <= ?", userID, date, cost, ceiling).
			Updates(map[string]any{
				"count":      gorm.Expr("count + ?", cost),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}

		var r model.UsageRecord
		if err := tx.Where("user_id = ? AND date = ?", userID, date).First(&r).Error; err != nil {
			return err
		}

		newCount = r.Count
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConditionFailed) {
			return 0, ErrConditionFailed
		}

		return 0, mapGormErr(err)
	}

	return newCount, nil
}

func (s *gormStore) RecordLoginFailure(ctx context.Context, userID string, threshold int, lockFor time.Duration) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var failures int

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.User{}).
			Where("id = ?", userID).
			Update("failed_logins", gorm.Expr("failed_logins + 1"))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var u model.User
		if err := tx.Where("id = ?", userID).First(&u).Error; err != nil {
			return err
		}

		failures = u.FailedLogins

		if failures >= threshold {
			lockUntil := time.Now().Add(lockFor)
			return tx.Model(&model.User{}).
				Where("id = ?", userID).
				Update("lock_until", lockUntil).Error
		}

		return nil
	})
	if err != nil {
		return 0, mapGormErr(err)
	}

	return failures, nil
}

func (s *gormStore) ResetLoginFailures(ctx context.Context, userID string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	now := time.Now()

	return mapGormErr(s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"failed_logins": 0,
			"lock_until":    nil,
			"last_login":    now,
		}).Error)
}
