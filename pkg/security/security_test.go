package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipherFromSecret("test-secret")
	require.NoError(t, err)

	enc, err := c.Encrypt("0772123456")
	require.NoError(t, err)
	require.NotContains(t, enc, "0772123456")

	plain, err := c.Decrypt(enc)
	require.NoError(t, err)
	require.Equal(t, "0772123456", plain)

	other, err := NewCipherFromSecret("other-secret")
	require.NoError(t, err)
	_, err = other.Decrypt(enc)
	require.Error(t, err)
}

func TestNewCipherRequiresSecret(t *testing.T) {
	_, err := NewCipherFromSecret(" ")
	require.ErrorIs(t, err, ErrMissingKey)
}

func TestMask(t *testing.T) {
	require.Equal(t, "******3456", Mask("0772123456"))
	require.Equal(t, "***", Mask("123"))
}

func TestPIN(t *testing.T) {
	hash, err := HashPIN("1234")
	require.NoError(t, err)

	require.True(t, CheckPIN(hash, "1234"))
	require.False(t, CheckPIN(hash, "0000"))
	require.False(t, CheckPIN("", "1234"))
}
