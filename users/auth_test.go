package users

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHashMethod(t *testing.T) {
	tests := []struct {
		name   string
		method HashMethod
	}{
		{name: "no_password", method: HashNone},
		{name: "plaintext_password", method: HashPlainText},
		{name: "double_sha1_password", method: HashDoubleSha1},
		{name: "sha256_password", method: HashSha256},
		{name: "bcrypt_password", method: HashBcrypt},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			method, err := ParseHashMethod(test.name)
			require.NoError(t, err)
			require.Equal(t, test.method, method)
			require.Equal(t, test.name, method.String())
		})
	}
}

func TestParseHashMethodUnknown(t *testing.T) {
	_, err := ParseHashMethod("rot13_password")
	require.Error(t, err)
}

func TestPasswordRoundTrip(t *testing.T) {
	methods := []HashMethod{HashPlainText, HashDoubleSha1, HashSha256, HashBcrypt}
	for _, method := range methods {
		t.Run(method.String(), func(t *testing.T) {
			auth, err := NewAuthInfo(method, "s3cret")
			require.NoError(t, err)
			require.Equal(t, method, auth.Method)
			require.True(t, auth.VerifyPassword("s3cret"))
			require.False(t, auth.VerifyPassword("guess"))
			require.False(t, auth.VerifyPassword(""))
		})
	}
}

func TestNoPasswordVerifiesAnything(t *testing.T) {
	auth, err := NewAuthInfo(HashNone, "")
	require.NoError(t, err)
	require.Nil(t, auth.HashValue)
	require.True(t, auth.VerifyPassword(""))
	require.True(t, auth.VerifyPassword("anything"))
}

func TestBcryptHashesAreSalted(t *testing.T) {
	auth1, err := NewAuthInfo(HashBcrypt, "s3cret")
	require.NoError(t, err)
	auth2, err := NewAuthInfo(HashBcrypt, "s3cret")
	require.NoError(t, err)
	require.NotEqual(t, auth1.HashValue, auth2.HashValue)
	require.True(t, auth1.VerifyPassword("s3cret"))
	require.True(t, auth2.VerifyPassword("s3cret"))
}

func TestBcryptLongPasswordsHashInFull(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	// The first 72 bytes match, the tail differs
	other := append([]byte{}, long...)
	other[99] = 'b'

	auth, err := NewAuthInfo(HashBcrypt, string(long))
	require.NoError(t, err)
	require.True(t, auth.VerifyPassword(string(long)))
	require.False(t, auth.VerifyPassword(string(other)))
}

func TestSha256Deterministic(t *testing.T) {
	auth1, err := NewAuthInfo(HashSha256, "s3cret")
	require.NoError(t, err)
	auth2, err := NewAuthInfo(HashSha256, "s3cret")
	require.NoError(t, err)
	require.Equal(t, auth1.HashValue, auth2.HashValue)
}
