package hpke

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	secret, public, err := GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte(`{"title":"x"}`)
	aad := []byte("/data/ns/repo")

	enc, ct, err := Encrypt(plaintext, public, aad)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ct)

	decrypted, err := Decrypt(ct, enc, secret, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestWrongAADFails(t *testing.T) {
	secret, public, err := GenerateKeyPair()
	require.NoError(t, err)

	enc, ct, err := Encrypt([]byte(`{"title":"x"}`), public, []byte("/data/ns/repo"))
	require.NoError(t, err)

	_, err = Decrypt(ct, enc, secret, []byte("/data/ns/post"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecrypt))
}

func TestWrongKeyFails(t *testing.T) {
	_, public, err := GenerateKeyPair()
	require.NoError(t, err)
	otherSecret, _, err := GenerateKeyPair()
	require.NoError(t, err)

	enc, ct, err := Encrypt([]byte("secret"), public, []byte("/path"))
	require.NoError(t, err)

	_, err = Decrypt(ct, enc, otherSecret, []byte("/path"))
	require.Error(t, err)
}

func TestTamperedCiphertextFails(t *testing.T) {
	secret, public, err := GenerateKeyPair()
	require.NoError(t, err)

	enc, ct, err := Encrypt([]byte("secret"), public, []byte("/path"))
	require.NoError(t, err)

	ct[0] ^= 0xff
	_, err = Decrypt(ct, enc, secret, []byte("/path"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecrypt))
}

func TestEncryptionIsFresh(t *testing.T) {
	_, public, err := GenerateKeyPair()
	require.NoError(t, err)

	aad := []byte("/test/path")
	enc1, ct1, err := Encrypt([]byte("data"), public, aad)
	require.NoError(t, err)
	enc2, ct2, err := Encrypt([]byte("data"), public, aad)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(enc1, enc2), "ephemeral sender key per call")
	assert.False(t, bytes.Equal(ct1, ct2))
}

func TestKeyPairsAreDistinct(t *testing.T) {
	s1, p1, err := GenerateKeyPair()
	require.NoError(t, err)
	s2, p2, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.False(t, bytes.Equal(s1, s2))
	assert.False(t, bytes.Equal(p1, p2))
	assert.Len(t, p1, 32, "X25519 public keys are 32 bytes")
	assert.Len(t, s1, 32)
}

func TestInvalidKeyMaterial(t *testing.T) {
	_, _, err := Encrypt([]byte("x"), []byte("short"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidKey))

	_, err = Decrypt([]byte("x"), []byte("x"), []byte("short"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidKey))
}
