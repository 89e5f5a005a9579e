package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgonRoundTrip(t *testing.T) {
	a := NewArgon()

	hash, err := a.GenerateFromPassword("correct horse battery 1")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := a.VerifyPasswd("correct horse battery 1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.VerifyPasswd("wrong password 1", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgonHashesAreSalted(t *testing.T) {
	a := NewArgon()

	h1, err := a.GenerateFromPassword("samepassword1")
	require.NoError(t, err)

	h2, err := a.GenerateFromPassword("samepassword1")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestArgonRejectsMalformedHash(t *testing.T) {
	a := NewArgon()

	for _, bad := range []string{"", "notahash", "$argon2id$v=19$m=65536"} {
		_, err := a.VerifyPasswd("whatever1", bad)
		assert.Error(t, err)
	}
}
