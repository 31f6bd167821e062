package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// MaxLength is the longest code that fits comfortably in an int64 range.
const MaxLength = 18

// ErrInvalidLength is returned for lengths outside 1..MaxLength.
var ErrInvalidLength = errors.New("invalid otp length")

// Generate returns a uniformly distributed numeric code of exactly length
// digits, drawn from crypto/rand over [10^(length-1), 10^length-1].
func Generate(length int) (string, error) {
	if length < 1 || length > MaxLength {
		return "", ErrInvalidLength
	}

	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	high := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	span := new(big.Int).Sub(high, low)

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	n.Add(n, low)

	code := fmt.Sprintf("%0*d", length, n.Int64())
	if len(code) != length {
		return "", fmt.Errorf("otp generation produced %d digits", len(code))
	}
	return code, nil
}

// Hash returns the hex HMAC-SHA256 of code under secret.
func Hash(code string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the hash of code and compares it in constant time.
// Malformed hashes simply fail.
func Verify(code, storedHash string, secret []byte) bool {
	want, err := hex.DecodeString(storedHash)
	if err != nil || len(want) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(code))
	return hmac.Equal(mac.Sum(nil), want)
}
