package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestNewAESGCMFromBase64Key(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "valid", key: base64.StdEncoding.EncodeToString(testKey())},
		{name: "empty", key: "", wantErr: ErrEmptyKey},
		{name: "short", key: base64.StdEncoding.EncodeToString([]byte("short")), wantErr: ErrKeySize},
		{name: "long", key: base64.StdEncoding.EncodeToString(make([]byte, 64)), wantErr: ErrKeySize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAESGCMFromBase64Key(tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, enc)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, enc)
		})
	}

	t.Run("invalid base64", func(t *testing.T) {
		_, err := NewAESGCMFromBase64Key("not-valid-base64!!!")
		assert.ErrorContains(t, err, "decode cache key")
	})
}

func TestAESEncrypter_RoundTrip(t *testing.T) {
	enc, err := NewAESGCM(testKey(), "launch_result")
	require.NoError(t, err)

	for _, plaintext := range [][]byte{
		[]byte(`{"uid":"u1"}`),
		{},
		bytes.Repeat([]byte("x"), 64*1024),
	} {
		sealed, err := enc.Encrypt(plaintext)
		require.NoError(t, err)
		assert.Greater(t, len(sealed), len(plaintext))

		opened, err := enc.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, len(plaintext), len(opened))
		assert.True(t, bytes.Equal(plaintext, opened))
	}
}

func TestAESEncrypter_NonceIsRandom(t *testing.T) {
	enc, err := NewAESGCM(testKey(), "")
	require.NoError(t, err)

	a, err := enc.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := enc.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAESEncrypter_Decrypt_Rejects(t *testing.T) {
	enc, err := NewAESGCM(testKey(), "launch_result")
	require.NoError(t, err)
	sealed, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	t.Run("short input", func(t *testing.T) {
		_, err := enc.Decrypt([]byte("abc"))
		assert.ErrorIs(t, err, ErrShortCiphertext)
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[len(tampered)-1] ^= 0xff
		_, err := enc.Decrypt(tampered)
		assert.Error(t, err)
	})

	t.Run("other label", func(t *testing.T) {
		_, err := enc.WithLabel("pending_purchases").Decrypt(sealed)
		assert.Error(t, err)
	})

	t.Run("other key", func(t *testing.T) {
		other := testKey()
		other[0] = 0xff
		enc2, err := NewAESGCM(other, "launch_result")
		require.NoError(t, err)
		_, err = enc2.Decrypt(sealed)
		assert.Error(t, err)
	})
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	enc, err := NewAESGCMFromBase64Key(key)
	require.NoError(t, err)
	assert.NotNil(t, enc)

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
