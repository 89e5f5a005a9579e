package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := MakeAccessToken(testSecret, "user-1", "admin", time.Minute)
	require.NoError(t, err)

	claims, err := ParseAccessToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	token, err := MakeAccessToken(testSecret, "user-1", "user", time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken([]byte("other-secret"), token)
	assert.ErrorIs(t, err, ErrCredentialInvalid)
}

func TestAccessTokenExpired(t *testing.T) {
	token, err := MakeAccessToken(testSecret, "user-1", "user", -time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(testSecret, token)
	assert.ErrorIs(t, err, ErrCredentialExpired)
}

func TestAccessTokenGarbage(t *testing.T) {
	for _, bad := range []string{"", "garbage", "a.b.c"} {
		_, err := ParseAccessToken(testSecret, bad)
		assert.ErrorIs(t, err, ErrCredentialInvalid)
	}
}
