package model

import "time"

// Verification token purposes. "verified" is the short-lived assertion
// handed out by a successful email verification and consumed by the
// set-password call.
const (
	PurposeVerify   = "verify"
	PurposeReset    = "reset"
	PurposeVerified = "verified"
)

type VerificationToken struct {
	Token     string     `gorm:"primaryKey" dynamodbav:"token"`
	Email     string     `gorm:"index:idx_tokens_email_purpose" dynamodbav:"email"`
	Purpose   string     `gorm:"index:idx_tokens_email_purpose" dynamodbav:"purpose"`
	ExpiresAt time.Time  `dynamodbav:"expires_at,unixtime"`
	Used      bool       `dynamodbav:"used"`
	UsedAt    *time.Time `dynamodbav:"used_at,unixtime"`
	CreatedAt time.Time  `dynamodbav:"created_at,unixtime"`
}

// RefreshToken is one renewable login session. The ID doubles as the
// opaque secret handed to the client.
type RefreshToken struct {
	ID        string    `gorm:"primaryKey" dynamodbav:"token_id"`
	UserID    string    `gorm:"index" dynamodbav:"user_id"`
	ExpiresAt time.Time `dynamodbav:"expires_at,unixtime"`
	Revoked   bool      `dynamodbav:"revoked"`
	CreatedAt time.Time `dynamodbav:"created_at,unixtime"`
}
