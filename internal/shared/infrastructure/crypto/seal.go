// Package crypto seals cached session data at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

var (
	ErrEmptyKey        = errors.New("cache key is empty")
	ErrKeySize         = fmt.Errorf("cache key must be %d bytes", KeySize)
	ErrShortCiphertext = errors.New("sealed data too short")
)

// Encrypter seals and opens opaque blobs.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AESEncrypter seals with AES-256-GCM. The nonce is stored as a prefix and
// the optional label is bound as associated data, so a blob sealed for one
// cache cannot be opened as another.
type AESEncrypter struct {
	aead  cipher.AEAD
	label []byte
}

// NewAESGCM creates an encrypter from a raw key.
func NewAESGCM(key []byte, label string) (*AESEncrypter, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESEncrypter{aead: aead, label: []byte(label)}, nil
}

// NewAESGCMFromBase64Key creates an encrypter from a standard base64 key,
// as read from ENTITLEKIT_CACHE_KEY.
func NewAESGCMFromBase64Key(encodedKey string) (*AESEncrypter, error) {
	if encodedKey == "" {
		return nil, ErrEmptyKey
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode cache key: %w", err)
	}
	return NewAESGCM(key, "")
}

// WithLabel returns an encrypter sharing the key but bound to another label.
func (e *AESEncrypter) WithLabel(label string) *AESEncrypter {
	return &AESEncrypter{aead: e.aead, label: []byte(label)}
}

func (e *AESEncrypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.aead.Seal(nonce, nonce, plaintext, e.label), nil
}

func (e *AESEncrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	n := e.aead.NonceSize()
	if len(ciphertext) < n+e.aead.Overhead() {
		return nil, ErrShortCiphertext
	}
	return e.aead.Open(nil, ciphertext[:n], ciphertext[n:], e.label)
}

// GenerateKey returns a fresh random key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

var _ Encrypter = (*AESEncrypter)(nil)
