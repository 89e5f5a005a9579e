package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrCredentialInvalid = errors.New("access credential invalid")
	ErrCredentialExpired = errors.New("access credential expired")
)

// AccessClaims is the payload of a stateless access credential. Holding
// one is proof of identity until exp, no store lookup involved.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Role   string `json:"role"`
}

func MakeAccessToken(secret []byte, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Role:   role,
	})

	return t.SignedString(secret)
}

// ParseAccessToken validates the signature and expiry of an access token
// and returns its claims. Expired tokens are reported separately so the
// caller can tell the client to refresh instead of re-login.
func ParseAccessToken(secret []byte, tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}

		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrCredentialExpired
		}

		return nil, ErrCredentialInvalid
	}

	if !token.Valid || claims.UserID == "" {
		return nil, ErrCredentialInvalid
	}

	return claims, nil
}
