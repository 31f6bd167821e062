package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// testArgon2 keeps argon2 at its floor parameters so the shared tests stay fast.
func testArgon2(t *testing.T) *Argon2 {
	t.Helper()
	h, err := NewArgon2(Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return h
}

func testBcrypt(t *testing.T) *Bcrypt {
	t.Helper()
	h, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	return h
}

type hasherCase struct {
	name     string
	hasher   Hasher
	maxBytes int
}

func hasherCases(t *testing.T) []hasherCase {
	return []hasherCase{
		{name: "argon2id", hasher: testArgon2(t), maxBytes: DefaultMaxPasswordBytes},
		{name: "bcrypt", hasher: testBcrypt(t), maxBytes: bcryptMaxBytes},
	}
}

func TestHasherRoundTrip(t *testing.T) {
	for _, tc := range hasherCases(t) {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := tc.hasher.Hash("correct-horse-battery")
			if err != nil {
				t.Fatalf("Hash error: %v", err)
			}
			if strings.Contains(hash, "correct-horse-battery") {
				t.Fatal("hash must not contain the password")
			}

			ok, err := tc.hasher.Verify("correct-horse-battery", hash)
			if err != nil || !ok {
				t.Fatalf("expected match: ok=%v err=%v", ok, err)
			}
			ok, err = tc.hasher.Verify("correct-horse-batterY", hash)
			if err != nil || ok {
				t.Fatalf("expected mismatch without error: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestHasherSaltsEveryHash(t *testing.T) {
	for _, tc := range hasherCases(t) {
		t.Run(tc.name, func(t *testing.T) {
			a, err := tc.hasher.Hash("same-password-twice")
			if err != nil {
				t.Fatalf("Hash error: %v", err)
			}
			b, err := tc.hasher.Hash("same-password-twice")
			if err != nil {
				t.Fatalf("Hash error: %v", err)
			}
			if a == b {
				t.Fatal("expected distinct hashes for the same password")
			}
			for _, h := range []string{a, b} {
				if ok, err := tc.hasher.Verify("same-password-twice", h); err != nil || !ok {
					t.Fatalf("expected both hashes to verify: ok=%v err=%v", ok, err)
				}
			}
		})
	}
}

func TestHasherLengthBounds(t *testing.T) {
	for _, tc := range hasherCases(t) {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.hasher.Hash(""); !errors.Is(err, ErrPasswordTooShort) {
				t.Fatalf("expected ErrPasswordTooShort for empty password, got %v", err)
			}
			if _, err := tc.hasher.Hash(strings.Repeat("s", DefaultMinPasswordBytes-1)); !errors.Is(err, ErrPasswordTooShort) {
				t.Fatalf("expected ErrPasswordTooShort, got %v", err)
			}
			if _, err := tc.hasher.Hash(strings.Repeat("s", DefaultMinPasswordBytes)); err != nil {
				t.Fatalf("expected minimum length to be accepted: %v", err)
			}

			longest := strings.Repeat("l", tc.maxBytes)
			hash, err := tc.hasher.Hash(longest)
			if err != nil {
				t.Fatalf("expected maximum length to be accepted: %v", err)
			}
			if ok, err := tc.hasher.Verify(longest, hash); err != nil || !ok {
				t.Fatalf("expected maximum length to verify: ok=%v err=%v", ok, err)
			}
			if _, err := tc.hasher.Hash(longest + "l"); !errors.Is(err, ErrPasswordTooLong) {
				t.Fatalf("expected ErrPasswordTooLong from Hash, got %v", err)
			}
			if _, err := tc.hasher.Verify(longest+"l", hash); !errors.Is(err, ErrPasswordTooLong) {
				t.Fatalf("expected ErrPasswordTooLong from Verify, got %v", err)
			}
		})
	}
}

func TestHasherRejectsForeignHashes(t *testing.T) {
	argon, bc := testArgon2(t), testBcrypt(t)
	argonHash, err := argon.Hash("cross-check-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	bcryptHash, err := bc.Hash("cross-check-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if _, err := argon.Verify("cross-check-password", bcryptHash); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected argon2 to reject a bcrypt hash, got %v", err)
	}
	if _, err := bc.Verify("cross-check-password", argonHash); err == nil {
		t.Fatal("expected bcrypt to reject an argon2 hash")
	}
	for _, tc := range hasherCases(t) {
		if _, err := tc.hasher.Verify("cross-check-password", "not-a-hash"); err == nil {
			t.Fatalf("%s: expected malformed hash to error", tc.name)
		}
	}
}

func TestArgon2EncodesPHC(t *testing.T) {
	hash, err := testArgon2(t).Hash("phc-format-check")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}
	fields := strings.Split(hash, "$")
	if len(fields) != 6 || strings.ContainsRune(fields[4]+fields[5], '=') {
		t.Fatalf("expected unpadded base64 salt and key: %s", hash)
	}
}

func TestArgon2RejectsTamperedHashes(t *testing.T) {
	h := testArgon2(t)
	hash, err := h.Hash("tamper-check-pass")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	tampered := []string{
		strings.Replace(hash, "$v=19$", "$v=18$", 1),
		strings.Replace(hash, "$argon2id$", "$argon2i$", 1),
		strings.Replace(hash, "m=8192", "m=1024", 1),
		strings.Replace(hash, ",p=1", "", 1),
		hash[:strings.LastIndex(hash, "$")] + "$!!!",
	}
	for _, bad := range tampered {
		if _, err := h.Verify("tamper-check-pass", bad); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("expected ErrMalformedHash for %q, got %v", bad, err)
		}
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak := testArgon2(t)
	strong, err := NewArgon2(Config{Memory: 16 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := weak.Hash("upgrade-me-please")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if up, err := strong.NeedsUpgrade(hash); err != nil || !up {
		t.Fatalf("expected upgrade: up=%v err=%v", up, err)
	}
	if up, err := weak.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("expected no upgrade: up=%v err=%v", up, err)
	}
	if ok, err := strong.Verify("upgrade-me-please", hash); err != nil || !ok {
		t.Fatalf("stronger hasher must still verify old hashes: ok=%v err=%v", ok, err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("expected %+v to be rejected", cfg)
		}
	}
}
