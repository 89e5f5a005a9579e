package account

import "errors"

// The full error taxonomy callers can branch on. Every failed operation
// returns exactly one of these, possibly wrapped.
var (
	ErrDomainNotAllowed   = errors.New("email domain not allowed")
	ErrAlreadyRegistered  = errors.New("email already registered")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrQuotaExceeded      = errors.New("usage quota exceeded")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
)
