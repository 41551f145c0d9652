package identity

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// NewIV draws a fresh 128-bit (well, chacha20poly1305's 96-bit) nonce.
// spec.md §6 only requires "any 128-bit-nonce AEAD"; chacha20poly1305 (a
// golang.org/x/crypto package already in the teacher's go.mod) uses a
// 96-bit nonce, zero-padded into the 128-bit `iv` wire field.
func NewIV() ([16]byte, error) {
	var iv [16]byte
	if _, err := io.ReadFull(rand.Reader, iv[:chacha20poly1305.NonceSize]); err != nil {
		return iv, err
	}
	return iv, nil
}

// Seal encrypts plaintext under key (a 32-byte ECDH shared secret) with iv,
// returning ciphertext with the AEAD tag co-located (spec.md §6).
func Seal(key [32]byte, iv [16]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, iv[:chacha20poly1305.NonceSize], plaintext, nil), nil
}

// Open decrypts ciphertext (with its AEAD tag appended) under key and iv.
func Open(key [32]byte, iv [16]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, iv[:chacha20poly1305.NonceSize], ciphertext, nil)
}
