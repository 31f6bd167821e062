package session

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Kind is the flow family a session belongs to. A session never changes kind.
type Kind string

const (
	KindSignupVerify  Kind = "SIGNUP_VERIFY"
	KindResetPassword Kind = "RESET_PASSWORD"
	KindSignin        Kind = "SIGNIN"
)

// Valid reports whether k is one of the known flow families.
func (k Kind) Valid() bool {
	switch k {
	case KindSignupVerify, KindResetPassword, KindSignin:
		return true
	}
	return false
}

// UsesOTP reports whether sessions of this kind carry OTP state.
func (k Kind) UsesOTP() bool {
	return k == KindSignupVerify || k == KindResetPassword
}

// Family returns the identifier-index namespace for k. SIGNIN sessions are
// not reachable through the index and return an empty family.
func (k Kind) Family() Family {
	switch k {
	case KindSignupVerify:
		return FamilySignup
	case KindResetPassword:
		return FamilyReset
	}
	return ""
}

// Family namespaces identifier-index entries.
type Family string

const (
	FamilySignup Family = "signup"
	FamilyReset  Family = "reset"
)

// ErrEmptyIdentity is returned when an identity carries no identifier at all.
var ErrEmptyIdentity = errors.New("identity has no identifier")

// Identity is the snapshot of who a session is for, copied at creation time.
// It is never refreshed from the directory afterwards.
type Identity struct {
	Email       string `json:"email,omitempty"`
	Username    string `json:"username,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

// Validate checks the shape of the snapshot. At least one of email,
// username or phone number must be present.
func (i Identity) Validate() error {
	if i.Email == "" && i.Username == "" && i.PhoneNumber == "" {
		return ErrEmptyIdentity
	}
	return validation.ValidateStruct(&i,
		validation.Field(&i.Email, is.Email, validation.Length(3, 254)),
		validation.Field(&i.Username, validation.Length(3, 64)),
		validation.Field(&i.PhoneNumber, validation.Length(8, 16)),
		validation.Field(&i.UserID, validation.Length(0, 128)),
	)
}

// Identifiers returns the non-empty identifiers of the snapshot.
func (i Identity) Identifiers() []string {
	out := make([]string, 0, 3)
	for _, v := range []string{i.Email, i.Username, i.PhoneNumber} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Session is the ephemeral record behind every flow. It is stored as a flat
// JSON object; all timestamps are epoch milliseconds.
type Session struct {
	ID   string `json:"id"`
	Type Kind   `json:"type"`

	Identity

	OTPHash        string `json:"otpHash,omitempty"`
	OTPExpiresAt   int64  `json:"otpExpiresAt,omitempty"`
	OTPAttempts    int    `json:"otpAttempts"`
	OTPResendCount int    `json:"otpResendCount"`

	Used     bool `json:"used"`
	Verified bool `json:"verified"`

	LastActivityAt int64 `json:"lastActivityAt,omitempty"`
	CreatedAt      int64 `json:"createdAt"`
}

// Clone returns a shallow copy; Session has no reference fields.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
