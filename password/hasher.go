package password

import (
	"errors"
	"fmt"
)

const (
	// DefaultMinPasswordBytes is the shortest password accepted by Hash.
	DefaultMinPasswordBytes = 10
	// DefaultMaxPasswordBytes bounds the work an attacker can force per guess.
	DefaultMaxPasswordBytes = 1024
)

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
)

// Hasher hashes and verifies passwords. Implementations must be safe for
// concurrent use.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Upgrader is implemented by hashers that can tell when a stored hash was
// made with weaker parameters than they currently use.
type Upgrader interface {
	NeedsUpgrade(encodedHash string) (bool, error)
}

var (
	_ Hasher   = (*Argon2)(nil)
	_ Hasher   = (*Bcrypt)(nil)
	_ Upgrader = (*Argon2)(nil)
	_ Upgrader = (*Bcrypt)(nil)
)

func lengthBounds(minBytes, maxBytes int) (int, int) {
	if minBytes <= 0 {
		minBytes = DefaultMinPasswordBytes
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPasswordBytes
	}
	return minBytes, maxBytes
}

func checkLength(password string, minBytes, maxBytes int) error {
	if len(password) < minBytes {
		return fmt.Errorf("%w: must be at least %d bytes", ErrPasswordTooShort, minBytes)
	}
	if len(password) > maxBytes {
		return fmt.Errorf("%w: must be at most %d bytes", ErrPasswordTooLong, maxBytes)
	}
	return nil
}
