package authsession

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Build it from DefaultConfig or
// LoadConfig, then adjust fields before passing it to Builder.WithConfig.
type Config struct {
	JWT        JWTConfig        `mapstructure:"jwt"`
	Session    SessionConfig    `mapstructure:"session"`
	OTP        OTPConfig        `mapstructure:"otp"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Identifier IdentifierConfig `mapstructure:"identifier"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token issuance. For "hs256" AccessKey and RefreshKey
// are shared secrets; for "ed25519" they are private keys (raw or PEM) and
// the public keys are derived when omitted.
type JWTConfig struct {
	Issuer           string        `mapstructure:"issuer"`
	AccessTTL        time.Duration `mapstructure:"access_ttl"`
	RefreshTTL       time.Duration `mapstructure:"refresh_ttl"`
	SigningMethod    string        `mapstructure:"signing_method"`
	AccessKey        string        `mapstructure:"access_key"`
	AccessPublicKey  string        `mapstructure:"access_public_key"`
	RefreshKey       string        `mapstructure:"refresh_key"`
	RefreshPublicKey string        `mapstructure:"refresh_public_key"`
	Leeway           time.Duration `mapstructure:"leeway"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetimes and revocation policy.
type SessionConfig struct {
	KeyPrefix string `mapstructure:"key_prefix"`
	// SignupTTL and ResetTTL bound how long an OTP session and its index
	// entries live. They should cover OTP.ResendWindow.
	SignupTTL time.Duration `mapstructure:"signup_ttl"`
	ResetTTL  time.Duration `mapstructure:"reset_ttl"`
	// InactivityDays invalidates a SIGNIN session on refresh when no
	// activity was recorded for longer. Zero disables the check.
	InactivityDays        int           `mapstructure:"inactivity_days"`
	RevokeOnPasswordReset bool          `mapstructure:"revoke_on_password_reset"`
	StrictAccess          bool          `mapstructure:"strict_access"`
	ClaimTTL              time.Duration `mapstructure:"claim_ttl"`
}

// Inactivity returns InactivityDays as a duration.
func (c SessionConfig) Inactivity() time.Duration {
	return time.Duration(c.InactivityDays) * 24 * time.Hour
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls code generation, resend ceilings and verify policy.
type OTPConfig struct {
	Length int           `mapstructure:"length"`
	TTL    time.Duration `mapstructure:"ttl"`
	// Secret keys the HMAC over stored codes.
	Secret       string        `mapstructure:"secret"`
	MaxResends   int           `mapstructure:"max_resends"`
	ResendWindow time.Duration `mapstructure:"resend_window"`
	// EnforceExpiry rejects codes past their explicit expiry even when the
	// record has not been evicted yet.
	EnforceExpiry bool `mapstructure:"enforce_expiry"`
	// MaxAttempts caps wrong guesses per session id. Zero disables the cap.
	MaxAttempts int `mapstructure:"max_attempts"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateRule is a fixed-window budget. A zero Limit disables the rule.
type RateRule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// RateLimitConfig holds one rule per rate-limited action.
type RateLimitConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Signup  RateRule `mapstructure:"signup"`
	Resend  RateRule `mapstructure:"resend"`
	Verify  RateRule `mapstructure:"verify"`
	Signin  RateRule `mapstructure:"signin"`
	Reset   RateRule `mapstructure:"reset"`
	Refresh RateRule `mapstructure:"refresh"`
}

// NotifyConfig bounds asynchronous OTP delivery.
type NotifyConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// IdentifierConfig controls identifier normalization.
type IdentifierConfig struct {
	// DefaultRegion is the ISO 3166 region assumed for phone numbers
	// without a country code. Empty rejects such numbers.
	DefaultRegion string `mapstructure:"default_region"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production-leaning defaults. JWT keys and the OTP
// secret are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:        "authsession",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    15 * 24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        5 * time.Second,
		},
		Session: SessionConfig{
			KeyPrefix:             "ots",
			SignupTTL:             time.Hour,
			ResetTTL:              time.Hour,
			InactivityDays:        7,
			RevokeOnPasswordReset: true,
			StrictAccess:          false,
			ClaimTTL:              30 * time.Second,
		},
		OTP: OTPConfig{
			Length:        6,
			TTL:           10 * time.Minute,
			MaxResends:    5,
			ResendWindow:  time.Hour,
			EnforceExpiry: true,
			MaxAttempts:   5,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Signup:  RateRule{Limit: 10, Window: time.Hour},
			Resend:  RateRule{Limit: 10, Window: 15 * time.Minute},
			Verify:  RateRule{Limit: 20, Window: 15 * time.Minute},
			Signin:  RateRule{Limit: 10, Window: 15 * time.Minute},
			Reset:   RateRule{Limit: 5, Window: 15 * time.Minute},
			Refresh: RateRule{Limit: 60, Window: time.Minute},
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks internal consistency. It does not parse key material;
// Build does that.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.AccessKey == "" || c.JWT.RefreshKey == "" {
		return errors.New("JWT AccessKey and RefreshKey are required")
	}
	if c.JWT.AccessKey == c.JWT.RefreshKey {
		return errors.New("JWT AccessKey and RefreshKey must differ")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Session
	if c.Session.SignupTTL <= 0 || c.Session.ResetTTL <= 0 {
		return errors.New("Session SignupTTL and ResetTTL must be > 0")
	}
	if c.Session.InactivityDays < 0 {
		return errors.New("Session InactivityDays must be >= 0")
	}
	if c.Session.ClaimTTL <= 0 {
		return errors.New("Session ClaimTTL must be > 0")
	}

	// OTP
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		return errors.New("OTP Length must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if len(c.OTP.Secret) < 16 {
		return errors.New("OTP Secret must be at least 16 bytes")
	}
	if c.OTP.MaxResends < 0 {
		return errors.New("OTP MaxResends must be >= 0")
	}
	if c.OTP.MaxResends > 0 && c.OTP.ResendWindow <= 0 {
		return errors.New("OTP ResendWindow must be > 0 when MaxResends is set")
	}
	if c.OTP.MaxAttempts < 0 {
		return errors.New("OTP MaxAttempts must be >= 0")
	}

	// Rate limits
	for name, r := range map[string]RateRule{
		"Signup":  c.RateLimit.Signup,
		"Resend":  c.RateLimit.Resend,
		"Verify":  c.RateLimit.Verify,
		"Signin":  c.RateLimit.Signin,
		"Reset":   c.RateLimit.Reset,
		"Refresh": c.RateLimit.Refresh,
	} {
		if r.Limit < 0 {
			return errors.New("RateLimit " + name + " Limit must be >= 0")
		}
		if r.Limit > 0 && r.Window <= 0 {
			return errors.New("RateLimit " + name + " Window must be > 0")
		}
	}

	if c.Notify.Timeout <= 0 {
		return errors.New("Notify Timeout must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
