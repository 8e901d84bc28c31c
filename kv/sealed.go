package kv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4

	// KeySealSalt holds the base64 salt the sealing key is derived from.
	KeySealSalt = "korebog.seal.salt"
)

// ErrSealed is returned when a sealed value cannot be opened with the current passphrase.
var ErrSealed = errors.New("sealed value cannot be opened")

var _ Store = (*Sealed)(nil)

// Sealed encrypts selected keys with AES-256-GCM before they reach the inner
// store. Other keys pass through untouched.
type Sealed struct {
	inner Store
	aead  cipher.AEAD
	keys  map[string]struct{}
}

// NewSealed derives the key from passphrase with Argon2id. The salt is created
// on first use and kept in the inner store.
func NewSealed(inner Store, passphrase string, keys ...string) (*Sealed, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	salt, err := loadOrCreateSalt(inner)
	if err != nil {
		return nil, err
	}

	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	sealedKeys := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		sealedKeys[k] = struct{}{}
	}
	return &Sealed{inner: inner, aead: gcm, keys: sealedKeys}, nil
}

func loadOrCreateSalt(inner Store) ([]byte, error) {
	encoded, ok, err := inner.Get(KeySealSalt)
	if err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	if ok {
		salt, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(salt) != saltSize {
			return nil, fmt.Errorf("corrupt salt")
		}
		return salt, nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := inner.Set(KeySealSalt, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, fmt.Errorf("store salt: %w", err)
	}
	return salt, nil
}

func (s *Sealed) Get(key string) (string, bool, error) {
	value, ok, err := s.inner.Get(key)
	if err != nil || !ok || !s.sealed(key) {
		return value, ok, err
	}

	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil || len(raw) < s.aead.NonceSize() {
		return "", false, fmt.Errorf("%q: %w", key, ErrSealed)
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("%q: %w", key, ErrSealed)
	}
	return string(plaintext), true, nil
}

// Set seals with the key name as additional data, so values cannot be swapped between keys.
func (s *Sealed) Set(key, value string) error {
	if !s.sealed(key) {
		return s.inner.Set(key, value)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.inner.Set(key, base64.StdEncoding.EncodeToString(out))
}

func (s *Sealed) Remove(key string) error {
	return s.inner.Remove(key)
}

// Close closes the inner store when it can be closed.
func (s *Sealed) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Sealed) sealed(key string) bool {
	if len(s.keys) == 0 {
		return key != KeySealSalt
	}
	_, ok := s.keys[key]
	return ok
}
