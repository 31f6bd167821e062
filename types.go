package authsession

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/MrEthical07/authsession/session"
)

// Channel is the out-of-band medium an OTP is delivered through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// OTPMessage is handed to the Notifier once per issued code. Code is the
// only place the plaintext exists after the session is written.
type OTPMessage struct {
	Channel     Channel
	Destination string
	Code        string
	Kind        session.Kind
	SessionID   string
	UserID      string
	ExpiresAt   time.Time
}

// Notifier delivers OTPs. It runs on a detached context with a timeout;
// its error is logged and counted but never reaches the caller of the flow.
type Notifier interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg OTPMessage) error

func (f NotifierFunc) SendOTP(ctx context.Context, msg OTPMessage) error {
	return f(ctx, msg)
}

// TokenPair is returned by sign-in, refresh and rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// SignupInput starts the signup-verification flow. At least one of Email or
// PhoneNumber is required so the OTP can be delivered.
type SignupInput struct {
	Email       string
	Username    string
	PhoneNumber string
	Password    string
}

// Validate checks the presence rules; format checks happen during
// identifier normalization.
func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, requiredUnless(in.PhoneNumber != "")...),
		validation.Field(&in.PhoneNumber, requiredUnless(in.Email != "")...),
		validation.Field(&in.Password, validation.Required),
	)
}

// ResumeInput addresses an in-flight flow either by the session id the
// client holds or by the identifier it started the flow with. SessionID
// wins when both are set.
type ResumeInput struct {
	SessionID  string
	Identifier string
}

func (in ResumeInput) validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.SessionID, requiredUnless(in.Identifier != "")...),
		validation.Field(&in.Identifier, requiredUnless(in.SessionID != "")...),
	)
}

func requiredUnless(satisfied bool) []validation.Rule {
	if satisfied {
		return nil
	}
	return []validation.Rule{validation.Required}
}

// VerifyInput completes a signup verification.
type VerifyInput struct {
	ResumeInput
	Code string
}

// ResetInput completes a password reset.
type ResetInput struct {
	ResumeInput
	Code        string
	NewPassword string
}

// AccessClaims is what ValidateAccess extracts from a valid access token.
type AccessClaims struct {
	UserID    string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionInfo is the introspection view of a session. The OTP hash is
// deliberately absent.
type SessionInfo struct {
	ID             string
	Kind           session.Kind
	Identity       session.Identity
	OTPExpiresAt   time.Time
	OTPAttempts    int
	OTPResendCount int
	LastActivityAt time.Time
	CreatedAt      time.Time
}

func sessionInfo(s *session.Session) SessionInfo {
	info := SessionInfo{
		ID:             s.ID,
		Kind:           s.Type,
		Identity:       s.Identity,
		OTPAttempts:    s.OTPAttempts,
		OTPResendCount: s.OTPResendCount,
		CreatedAt:      time.UnixMilli(s.CreatedAt),
	}
	if s.OTPExpiresAt > 0 {
		info.OTPExpiresAt = time.UnixMilli(s.OTPExpiresAt)
	}
	if s.LastActivityAt > 0 {
		info.LastActivityAt = time.UnixMilli(s.LastActivityAt)
	}
	return info
}

// HealthStatus reports backend availability.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}
