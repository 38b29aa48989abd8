package cryptoutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := NewVault(key)
	require.NoError(t, err)
	return v
}

func TestVaultRoundTrip(t *testing.T) {
	v := newTestVault(t)

	tests := []string{
		"my secret value",
		`{"access_token":"tok","refresh_token":"ref"}`,
		"a",
		strings.Repeat("x", 4096),
		"unicode: héllo wörld ✓",
	}

	for _, plaintext := range tests {
		ciphertext, err := v.Encrypt(plaintext)
		require.NoError(t, err)

		// Three colon-delimited hex segments.
		parts := strings.Split(ciphertext, ":")
		require.Len(t, parts, 3)
		assert.NotContains(t, ciphertext, plaintext)

		decrypted, err := v.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestVaultEncryptIsRandomized(t *testing.T) {
	v := newTestVault(t)

	a, err := v.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := v.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVaultTamperedSegmentsFailAuthentication(t *testing.T) {
	v := newTestVault(t)

	ciphertext, err := v.Encrypt("tamper target")
	require.NoError(t, err)
	parts := strings.Split(ciphertext, ":")
	require.Len(t, parts, 3)

	flipHex := func(s string) string {
		b := []byte(s)
		if b[0] == '0' {
			b[0] = '1'
		} else {
			b[0] = '0'
		}
		return string(b)
	}

	for i := range parts {
		mutated := append([]string(nil), parts...)
		mutated[i] = flipHex(mutated[i])
		_, err := v.Decrypt(strings.Join(mutated, ":"))
		require.ErrorIs(t, err, ErrDecryptFailed, "tampering segment %d", i)
	}
}

func TestVaultMalformedCiphertextIsDistinguishable(t *testing.T) {
	v := newTestVault(t)

	tests := []struct {
		name  string
		input string
	}{
		{name: "two segments", input: "abcd:ef01"},
		{name: "four segments", input: "ab:cd:ef:01"},
		{name: "empty", input: ""},
		{name: "not hex", input: "zz:zz:zz"},
		{name: "wrong iv length", input: "abcd:" + strings.Repeat("00", 16) + ":abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decrypt(tt.input)
			require.ErrorIs(t, err, ErrMalformedCiphertext)
			assert.NotErrorIs(t, err, ErrDecryptFailed)
		})
	}
}

func TestVaultWrongKeyFailsAuthentication(t *testing.T) {
	v := newTestVault(t)
	other, err := NewVault([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	ciphertext, err := v.Encrypt("cross-key")
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	require.ErrorIs(t, err, ErrDecryptFailed)
}

func TestNewVaultFromKeyString(t *testing.T) {
	// Empty key is a configuration error.
	_, err := NewVaultFromKeyString("")
	require.ErrorIs(t, err, ErrNoKey)

	// 64-char hex decodes to the raw key.
	hexVault, err := NewVaultFromKeyString(strings.Repeat("ab", 32))
	require.NoError(t, err)

	// Arbitrary strings are hashed to a key.
	passVault, err := NewVaultFromKeyString("correct horse battery staple")
	require.NoError(t, err)

	ct, err := passVault.Encrypt("v")
	require.NoError(t, err)
	_, err = hexVault.Decrypt(ct)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestNewVaultKeyLength(t *testing.T) {
	_, err := NewVault([]byte("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")

	_, err = NewVault(make([]byte, 64))
	require.Error(t, err)
}
