// Package crypto provides authenticated field encryption for secrets at
// rest (OAuth app secrets, access and refresh tokens). Ciphertexts are
// base64(nonce || sealed) under XChaCha20-Poly1305.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidKey        = errors.New("secret key must be 32 bytes")
	ErrMalformedCiphered = errors.New("malformed ciphertext")
)

type SecretBox struct {
	key []byte
}

// NewSecretBox expects a hex-encoded 256-bit key.
func NewSecretBox(hexKey string) (*SecretBox, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	return &SecretBox{key: key}, nil
}

func (sb *SecretBox) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	aead, err := chacha20poly1305.NewX(sb.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (sb *SecretBox) Decrypt(ciphered string) (string, error) {
	if ciphered == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphered)
	if err != nil {
		return "", ErrMalformedCiphered
	}

	aead, err := chacha20poly1305.NewX(sb.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrMalformedCiphered
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
