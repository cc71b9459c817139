// AngelaMos | 2026
// security_test.go

package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCredential_RoundTrip(t *testing.T) {
	hash, err := HashCredential("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	assert.NotContains(t, hash, "correct horse")

	ok, err := VerifyCredential("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyCredential("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashCredential_SaltsDiffer(t *testing.T) {
	a, err := HashCredential("same")
	require.NoError(t, err)
	b, err := HashCredential("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerifyCredential_MalformedHash(t *testing.T) {
	_, err := VerifyCredential("x", "plaintext")
	assert.Error(t, err)

	_, err = VerifyCredential("x", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA")
	assert.Error(t, err)
}

func TestVerifyCredentialTimingSafe_MissingHashNeverVerifies(t *testing.T) {
	ok, newHash, err := VerifyCredentialTimingSafe(
		"dummy_credential_for_timing_attack_prevention",
		nil,
	)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, newHash)

	empty := ""
	ok, _, err = VerifyCredentialTimingSafe("anything", &empty)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyCredentialWithRehash_OutdatedParams(t *testing.T) {
	current, err := HashCredential("pw")
	require.NoError(t, err)

	parts := strings.Split(current, "$")
	parts[3] = "m=32768,t=1,p=4"
	outdated := strings.Join(parts, "$")

	// The hash no longer matches under the altered params, so verification
	// must fail rather than rehash.
	ok, newHash, err := VerifyCredentialWithRehash("pw", outdated)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, newHash)

	ok, newHash, err = VerifyCredentialWithRehash("pw", current)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, newHash)
}
