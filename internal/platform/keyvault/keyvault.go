package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// Sealer wraps record encryption keys with AES-256-GCM under a master key so
// that no key material is ever stored in plaintext.
type Sealer struct {
	aead cipher.AEAD
}

// New creates a Sealer from a 64-character hex master key (32 bytes).
func New(masterKeyHex string) (*Sealer, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("keyvault: master key is not valid hex: %w", err)
	}
	return NewFromBytes(key)
}

// NewFromBytes creates a Sealer from a raw 32-byte AES-256 key.
func NewFromBytes(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("keyvault: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keyvault: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keyvault: create GCM: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts a record key and returns a base64 envelope with the nonce
// prepended.
func (s *Sealer) Seal(recordKey string) (string, error) {
	sealed, err := s.SealBytes([]byte(recordKey))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decodes the base64 envelope, extracts the prepended nonce, and returns
// the record key.
func (s *Sealer) Open(envelope string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("keyvault: base64 decode: %w", err)
	}

	key, err := s.OpenBytes(data)
	if err != nil {
		return "", err
	}
	return string(key), nil
}

// SealBytes encrypts the data and returns the nonce prepended to the ciphertext.
func (s *Sealer) SealBytes(data []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("keyvault: generate nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, so the result is nonce + ciphertext.
	return s.aead.Seal(nonce, nonce, data, nil), nil
}

// OpenBytes extracts the nonce from the front of data and decrypts the remainder.
func (s *Sealer) OpenBytes(data []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("keyvault: envelope too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	key, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("keyvault: open envelope: %w", err)
	}
	return key, nil
}
