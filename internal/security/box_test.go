package security_test

import (
	"strings"
	"testing"

	"github.com/devforge-dev/devforge/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpen_RoundTrip(t *testing.T) {
	box, err := security.NewBox(testKey)
	require.NoError(t, err)

	sealed, err := box.Seal("gho_example_token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "gho_example_token")

	plaintext, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "gho_example_token", plaintext)
}

func TestSeal_NonDeterministic(t *testing.T) {
	box, err := security.NewBox(testKey)
	require.NoError(t, err)

	a, err := box.Seal("secret")
	require.NoError(t, err)
	b, err := box.Seal("secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewBox_InvalidKey(t *testing.T) {
	_, err := security.NewBox("not-hex")
	assert.ErrorIs(t, err, security.ErrInvalidKey)

	_, err = security.NewBox("abcd")
	assert.ErrorIs(t, err, security.ErrInvalidKey)
}

func TestOpen_WrongKey(t *testing.T) {
	box, err := security.NewBox(testKey)
	require.NoError(t, err)
	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	other, err := security.NewBox(strings.Repeat("ff", 32))
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, security.ErrDecryptionFailure)
}

func TestOpen_Malformed(t *testing.T) {
	box, err := security.NewBox(testKey)
	require.NoError(t, err)

	_, err = box.Open("@@@not-base64@@@")
	assert.ErrorIs(t, err, security.ErrMalformedToken)

	_, err = box.Open("c2hvcnQ=") // too short for a nonce
	assert.ErrorIs(t, err, security.ErrMalformedToken)
}
