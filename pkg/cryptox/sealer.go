// Package cryptox holds the small cryptographic helpers used by the shelf
// client (sealing persisted values) and the fake backend (passwords, opaque
// refresh tokens).
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrEmptyKeyMaterial = errors.New("cryptox: empty key material")
	ErrCiphertextShort  = errors.New("cryptox: ciphertext too short")
	ErrOpen             = errors.New("cryptox: decryption failed")
)

// Sealer encrypts values before they hit disk and decrypts them on the way
// back. The associated data binds a ciphertext to its storage key, so a value
// copied under another key fails to open.
type Sealer interface {
	Seal(plaintext, associatedData []byte) ([]byte, error)
	Open(ciphertext, associatedData []byte) ([]byte, error)
}

// XSealer is an XChaCha20-Poly1305 Sealer. Output layout:
// [24-byte nonce][ciphertext][16-byte tag].
type XSealer struct {
	key []byte
}

// NewSealer derives a 256-bit key from material with HKDF-SHA256.
func NewSealer(material []byte) (*XSealer, error) {
	if len(material) == 0 {
		return nil, ErrEmptyKeyMaterial
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, material, nil, []byte("shelf/kvstore/v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return &XSealer{key: key}, nil
}

// NewSealerFromFile reads key material from path, creating the file with
// fresh random material (mode 0600) when it does not exist yet.
func NewSealerFromFile(path string) (*XSealer, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		data = []byte(MustGenerateToken(TokenSize256))
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write key file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	return NewSealer([]byte(strings.TrimSpace(string(data))))
}

// Seal encrypts plaintext bound to associatedData, prefixing a random nonce.
func (s *XSealer) Seal(plaintext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Open reverses Seal. It fails with ErrOpen on a wrong key or tampered data.
func (s *XSealer) Open(ciphertext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertextShort
	}

	nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, associatedData)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}
