package crypt

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// GenerateKey produces a fresh cryptographically random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypt: generate key: %w", err)
	}
	return key, nil
}

// GenerateSalt produces n cryptographically random bytes for key derivation.
func GenerateSalt(n int) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypt: generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 32-byte key from a password using PBKDF2-SHA256.
// It is a pure function of its arguments.
func DeriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
}

// Argon2Params tunes Argon2id key derivation.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultArgon2Params are reasonable interactive-login parameters.
var DefaultArgon2Params = Argon2Params{Time: 1, Memory: 64 * 1024, Threads: 4}

// DeriveKeyArgon2 derives a 32-byte key from a password using Argon2id.
func DeriveKeyArgon2(password string, salt []byte, p Argon2Params) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, KeySize)
}
