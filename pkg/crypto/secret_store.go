// Package crypto provides encryption utilities for provider credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// tokenSeparator delimits the nonce, ciphertext and tag fields of a token.
	tokenSeparator = ":"
	// tagSize is the GCM authentication tag length in bytes.
	tagSize = 16
	// maskPlaceholder is returned by Mask for secrets too short to partially reveal.
	maskPlaceholder = "********"
	// maskVisible is the number of characters Mask reveals at each end.
	maskVisible = 4
)

var (
	// ErrMissingSecret is returned when the deployment secret is empty.
	// Callers must treat this as fatal; encryption is never silently disabled.
	ErrMissingSecret = errors.New("deployment secret is not configured")
	// ErrDecryptionFailed is matched by every DecryptionError via errors.Is.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// DecryptionError reports why a token could not be decrypted.
// No partial plaintext is ever returned alongside it.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDecryptionFailed.Error(), e.Reason)
}

// Is lets errors.Is(err, ErrDecryptionFailed) match any DecryptionError.
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryptionFailed
}

// SecretStore encrypts provider credentials with AES-256-GCM.
// Tokens have the form hex(nonce):hex(ciphertext):hex(tag).
type SecretStore struct {
	gcm cipher.AEAD
}

// NewSecretStore derives a 256-bit key by hashing the deployment secret with SHA-256.
// An empty secret is a configuration error.
func NewSecretStore(secret string) (*SecretStore, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}

	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecretStore{gcm: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (s *SecretStore) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal returns ciphertext || tag; the tag is stored as its own field.
	sealed := s.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(ciphertext),
		hex.EncodeToString(tag),
	}, tokenSeparator), nil
}

// Decrypt opens a token produced by Encrypt. It fails with a *DecryptionError
// when the token is malformed or the authentication tag does not verify.
func (s *SecretStore) Decrypt(token string) (string, error) {
	parts := strings.Split(token, tokenSeparator)
	if len(parts) != 3 {
		return "", &DecryptionError{Reason: fmt.Sprintf("expected 3 token components, got %d", len(parts))}
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != s.gcm.NonceSize() {
		return "", &DecryptionError{Reason: "invalid nonce"}
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", &DecryptionError{Reason: "invalid ciphertext encoding"}
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != tagSize {
		return "", &DecryptionError{Reason: "invalid authentication tag"}
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := s.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &DecryptionError{Reason: "authentication failed"}
	}

	return string(plaintext), nil
}

// Mask returns a display form of a secret: "sk-a...wxyz".
// Secrets of 8 characters or fewer collapse to a fixed placeholder.
func Mask(secret string) string {
	runes := []rune(secret)
	if len(runes) <= 2*maskVisible {
		return maskPlaceholder
	}
	return string(runes[:maskVisible]) + "..." + string(runes[len(runes)-maskVisible:])
}
