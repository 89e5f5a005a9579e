// Package model holds the records persisted by the credential store
package model

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleUser     Role = "user"
	RoleReadonly Role = "readonly"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

type User struct {
	ID           string     `gorm:"primaryKey" dynamodbav:"user_id" json:"userID"`
	Email        string     `gorm:"uniqueIndex;not null" dynamodbav:"email" json:"email"`
	PasswordHash string     `dynamodbav:"password_hash" json:"-"`
	Role         Role       `gorm:"default:user" dynamodbav:"role" json:"role"`
	Plan         Plan       `gorm:"default:free" dynamodbav:"usage_plan" json:"plan"`
	Active       bool       `gorm:"default:false" dynamodbav:"active" json:"active"`
	FailedLogins int        `dynamodbav:"failed_logins" json:"-"`
	LockUntil    *time.Time `dynamodbav:"lock_until,unixtime" json:"-"`
	LastLogin    *time.Time `dynamodbav:"last_login,unixtime" json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `dynamodbav:"created_at,unixtime" json:"createdAt"`
}

// Locked reports whether the account is inside a lockout window
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}
