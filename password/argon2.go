package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedHash is returned when a stored hash is not an argon2id PHC
// string this package can verify.
var ErrMalformedHash = errors.New("malformed argon2id hash")

// Floors for both configured and stored parameters. Hashes below them are
// refused rather than verified.
const (
	floorMemoryKiB = 8 * 1024
	floorTime      = 1
	floorThreads   = 1
	floorSaltBytes = 16
	floorKeyBytes  = 16
)

var b64 = base64.RawStdEncoding

// Config holds Argon2id cost parameters. Zero MinPasswordBytes and
// MaxPasswordBytes fall back to the package defaults.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinPasswordBytes int
	MaxPasswordBytes int
}

// DefaultConfig returns the parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < floorMemoryKiB:
		return fmt.Errorf("argon2 memory must be >= %d KiB", floorMemoryKiB)
	case c.Time < floorTime:
		return fmt.Errorf("argon2 time must be >= %d", floorTime)
	case c.Parallelism < floorThreads:
		return fmt.Errorf("argon2 parallelism must be >= %d", floorThreads)
	case c.SaltLength < floorSaltBytes:
		return fmt.Errorf("argon2 salt length must be >= %d bytes", floorSaltBytes)
	case c.KeyLength < floorKeyBytes:
		return fmt.Errorf("argon2 key length must be >= %d bytes", floorKeyBytes)
	}
	return nil
}

// phc is a decoded argon2id hash.
type phc struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads, b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
}

// decodePHC parses $argon2id$v=19$m=..,t=..,p=..$salt$key.
func decodePHC(encoded string) (phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return phc{}, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return phc{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}

	var p phc
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil || n != 3 {
		return phc{}, fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, fields[3])
	}
	if p.memory < floorMemoryKiB || p.time < floorTime || p.threads < floorThreads {
		return phc{}, fmt.Errorf("%w: parameters below floor", ErrMalformedHash)
	}

	var err error
	if p.salt, err = b64.DecodeString(fields[4]); err != nil || len(p.salt) < floorSaltBytes {
		return phc{}, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if p.key, err = b64.DecodeString(fields[5]); err != nil || len(p.key) < floorKeyBytes {
		return phc{}, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return p, nil
}

// Argon2 is a [Hasher] producing PHC-encoded argon2id hashes.
type Argon2 struct {
	cfg Config
}

// NewArgon2 validates cfg against the parameter floors.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.MinPasswordBytes, cfg.MaxPasswordBytes = lengthBounds(cfg.MinPasswordBytes, cfg.MaxPasswordBytes)
	return &Argon2{cfg: cfg}, nil
}

// Hash derives a new salted hash of password. The raw bytes are hashed; no
// Unicode normalization is applied.
func (a *Argon2) Hash(password string) (string, error) {
	if err := checkLength(password, a.cfg.MinPasswordBytes, a.cfg.MaxPasswordBytes); err != nil {
		return "", err
	}

	p := phc{
		memory:  a.cfg.Memory,
		time:    a.cfg.Time,
		threads: a.cfg.Parallelism,
		salt:    make([]byte, a.cfg.SaltLength),
		key:     make([]byte, a.cfg.KeyLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	p.key = p.derive(password)
	return p.String(), nil
}

// Verify reports whether password matches encodedHash. A malformed hash is
// an error; a mismatch is (false, nil).
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.cfg.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(password), p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters or a different key length than a uses.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.threads < a.cfg.Parallelism ||
		uint32(len(p.key)) != a.cfg.KeyLength, nil
}
