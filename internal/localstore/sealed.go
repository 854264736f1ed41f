// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package localstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/jeranaias/contractchat/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// SealedPrefix marks an encrypted value: ENC:base64(nonce|ciphertext|tag).
const SealedPrefix = "ENC:"

// MasterKeySize is the size of the random master key file.
const MasterKeySize = 32

// keyInfo binds derived keys to this store format.
const keyInfo = "contractchat localstore v1"

var (
	// ErrInvalidCiphertext indicates a sealed value that cannot be decoded.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrDecryptionFailed indicates a wrong master key or tampered value.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// =============================================================================
// MASTER KEY
// =============================================================================

// LoadOrCreateMasterKey reads the master key at path, creating a random one
// with owner-only permissions when the file does not exist.
func LoadOrCreateMasterKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != MasterKeySize {
			return nil, fmt.Errorf("master key %s: want %d bytes, got %d", path, MasterKeySize, len(data))
		}
		return data, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read master key: %w", err)
	}

	key := make([]byte, MasterKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	if err := util.AtomicWriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to write master key: %w", err)
	}
	return key, nil
}

// deriveKey expands the master key into the AES-256 value key.
func deriveKey(master []byte) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

// zeroBytes clears key material.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// =============================================================================
// SEALED STORE
// =============================================================================

// SealedStore encrypts values with AES-256-GCM before handing them to the
// wrapped Store. The storage key is authenticated as additional data, so a
// value copied under another key fails to open. Values written before
// sealing was enabled are returned as stored and sealed on the next Set.
type SealedStore struct {
	inner Store
	aead  cipher.AEAD
}

// NewSealedStore wraps inner with encryption keyed by master.
func NewSealedStore(inner Store, master []byte) (*SealedStore, error) {
	if len(master) != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes", MasterKeySize)
	}
	key, err := deriveKey(master)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SealedStore{inner: inner, aead: aead}, nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Get implements Store.
func (s *SealedStore) Get(key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(key)
	if err != nil || !ok {
		return raw, ok, err
	}
	if !IsSealed(raw) {
		return raw, true, nil
	}
	plain, err := s.open(key, raw)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", key, err)
	}
	return plain, true, nil
}

// Set implements Store.
func (s *SealedStore) Set(key, value string) error {
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.inner.Set(key, sealed)
}

// Delete implements Store.
func (s *SealedStore) Delete(key string) error {
	return s.inner.Delete(key)
}

// Keys implements Store.
func (s *SealedStore) Keys() ([]string, error) {
	return s.inner.Keys()
}

// Close implements Store.
func (s *SealedStore) Close() error {
	return s.inner.Close()
}

func (s *SealedStore) seal(key, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

func (s *SealedStore) open(key, value string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	n := s.aead.NonceSize()
	if len(data) < n+s.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], []byte(key))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
