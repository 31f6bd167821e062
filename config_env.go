package authsession

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by LoadConfig,
// e.g. AUTHSESSION_OTP_SECRET or AUTHSESSION_JWT_ACCESS_TTL.
const EnvPrefix = "AUTHSESSION"

// LoadConfig builds a Config from DefaultConfig, an optional file at path
// (any format viper understands) and AUTHSESSION_* environment variables,
// in increasing order of precedence. Durations accept time.ParseDuration
// syntax. The result is validated.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal; viper only consults the environment for keys it knows about.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("jwt.issuer", d.JWT.Issuer)
	v.SetDefault("jwt.access_ttl", d.JWT.AccessTTL)
	v.SetDefault("jwt.refresh_ttl", d.JWT.RefreshTTL)
	v.SetDefault("jwt.signing_method", d.JWT.SigningMethod)
	v.SetDefault("jwt.access_key", d.JWT.AccessKey)
	v.SetDefault("jwt.access_public_key", d.JWT.AccessPublicKey)
	v.SetDefault("jwt.refresh_key", d.JWT.RefreshKey)
	v.SetDefault("jwt.refresh_public_key", d.JWT.RefreshPublicKey)
	v.SetDefault("jwt.leeway", d.JWT.Leeway)

	v.SetDefault("session.key_prefix", d.Session.KeyPrefix)
	v.SetDefault("session.signup_ttl", d.Session.SignupTTL)
	v.SetDefault("session.reset_ttl", d.Session.ResetTTL)
	v.SetDefault("session.inactivity_days", d.Session.InactivityDays)
	v.SetDefault("session.revoke_on_password_reset", d.Session.RevokeOnPasswordReset)
	v.SetDefault("session.strict_access", d.Session.StrictAccess)
	v.SetDefault("session.claim_ttl", d.Session.ClaimTTL)

	v.SetDefault("otp.length", d.OTP.Length)
	v.SetDefault("otp.ttl", d.OTP.TTL)
	v.SetDefault("otp.secret", d.OTP.Secret)
	v.SetDefault("otp.max_resends", d.OTP.MaxResends)
	v.SetDefault("otp.resend_window", d.OTP.ResendWindow)
	v.SetDefault("otp.enforce_expiry", d.OTP.EnforceExpiry)
	v.SetDefault("otp.max_attempts", d.OTP.MaxAttempts)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	for name, r := range map[string]RateRule{
		"signup":  d.RateLimit.Signup,
		"resend":  d.RateLimit.Resend,
		"verify":  d.RateLimit.Verify,
		"signin":  d.RateLimit.Signin,
		"reset":   d.RateLimit.Reset,
		"refresh": d.RateLimit.Refresh,
	} {
		v.SetDefault("rate_limit."+name+".limit", r.Limit)
		v.SetDefault("rate_limit."+name+".window", r.Window)
	}

	v.SetDefault("notify.timeout", d.Notify.Timeout)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("identifier.default_region", d.Identifier.DefaultRegion)
}
