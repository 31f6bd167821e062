// Package identifier normalizes the user-supplied identifiers that key the
// session index and the rate limiter. The same person must always map to the
// same string, whatever casing or phone formatting they typed.
package identifier

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// Kind is the shape an identifier was classified as.
type Kind string

const (
	KindEmail    Kind = "email"
	KindUsername Kind = "username"
	KindPhone    Kind = "phone"
)

var (
	ErrEmpty        = errors.New("identifier is empty")
	ErrInvalidEmail = errors.New("identifier is not a valid email address")
	ErrInvalidPhone = errors.New("identifier is not a valid phone number")

	// ErrInvalidUsername marks a username that would be read back as an
	// email address or a phone number at signin.
	ErrInvalidUsername = errors.New("username looks like an email address or phone number")
)

// Normalizer turns raw identifiers into their canonical form.
// DefaultRegion is the ISO 3166 region used for phone numbers written
// without a country code; empty means such numbers are rejected.
type Normalizer struct {
	DefaultRegion string
}

// New returns a Normalizer for the given default phone region.
func New(defaultRegion string) Normalizer {
	return Normalizer{DefaultRegion: strings.ToUpper(strings.TrimSpace(defaultRegion))}
}

// Email trims and lower-cases an email address.
func (n Normalizer) Email(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrEmpty
	}
	if err := is.Email.Validate(s); err != nil {
		return "", ErrInvalidEmail
	}
	return s, nil
}

// Username trims and lower-cases a username. Names containing "@" or
// shaped like a phone number are rejected so Classify maps them back here.
func (n Normalizer) Username(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrEmpty
	}
	if strings.Contains(s, "@") || looksLikePhone(s) {
		return "", ErrInvalidUsername
	}
	return s, nil
}

// Phone parses a phone number and formats it as E.164.
func (n Normalizer) Phone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmpty
	}
	region := n.DefaultRegion
	if strings.HasPrefix(s, "+") {
		region = ""
	} else if region == "" {
		return "", ErrInvalidPhone
	}
	num, err := phonenumbers.Parse(s, region)
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Classify guesses what kind of identifier raw is and normalizes it.
// Anything with an '@' is an email, anything made only of digits and
// phone punctuation is a phone number, the rest is a username.
func (n Normalizer) Classify(raw string) (Kind, string, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return "", "", ErrEmpty
	case strings.Contains(s, "@"):
		v, err := n.Email(s)
		return KindEmail, v, err
	case looksLikePhone(s):
		v, err := n.Phone(s)
		return KindPhone, v, err
	default:
		v, err := n.Username(s)
		return KindUsername, v, err
	}
}

// Normalize is Classify without the kind.
func (n Normalizer) Normalize(raw string) (string, error) {
	_, v, err := n.Classify(raw)
	return v, err
}

func looksLikePhone(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ', r == '-', r == '(', r == ')', r == '.':
		default:
			return false
		}
	}
	return digits >= 4
}
