// Package cryptox seals backup snapshots with a passphrase. Keys are
// derived with argon2id and data is encrypted with XChaCha20-Poly1305.
//
// A sealed blob is laid out as
//
//	magic(4) | salt(16) | nonce(24) | ciphertext
//
// and the magic plus salt are authenticated as additional data.
package cryptox

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/medsync/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	SaltSize = 16
	KeySize  = chacha20poly1305.KeySize
)

var magic = []byte("MSB1")

var (
	ErrNotSealed       = errors.New("not a sealed backup")
	ErrDecryptFailed   = errors.New("wrong passphrase or corrupted backup")
	ErrEmptyPassphrase = errors.New("passphrase is empty")
)

// DeriveKey stretches a passphrase into a 32-byte key.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// Seal encrypts plaintext under a key derived from passphrase with a fresh
// salt and nonce.
func Seal(plaintext, passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	salt := common.GenerateRandByteArray(SaltSize)
	key := DeriveKey(passphrase, salt)
	defer common.WipeByteArray(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	nonce := common.GenerateRandByteArray(aead.NonceSize())

	header := make([]byte, 0, len(magic)+SaltSize+len(nonce))
	header = append(header, magic...)
	header = append(header, salt...)
	ad := header[:len(magic)+SaltSize]
	header = append(header, nonce...)

	return aead.Seal(header, nonce, plaintext, ad), nil
}

// Open reverses Seal.
func Open(sealed, passphrase []byte) ([]byte, error) {
	headerSize := len(magic) + SaltSize + chacha20poly1305.NonceSizeX
	if len(sealed) < headerSize+chacha20poly1305.Overhead || !bytes.Equal(sealed[:len(magic)], magic) {
		return nil, ErrNotSealed
	}
	ad := sealed[:len(magic)+SaltSize]
	salt := sealed[len(magic) : len(magic)+SaltSize]
	nonce := sealed[len(magic)+SaltSize : headerSize]

	key := DeriveKey(passphrase, salt)
	defer common.WipeByteArray(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, sealed[headerSize:], ad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
