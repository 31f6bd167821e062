package authsession

import "time"

// SecurityReport summarizes the effective security posture of an Engine.
// It holds no key material.
type SecurityReport struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	OTPLength             int
	OTPTTL                time.Duration
	OTPExpiryEnforced     bool
	OTPMaxAttempts        int
	OTPMaxResends         int
	InactivityLimit       time.Duration
	RevokeOnPasswordReset bool
	StrictAccess          bool
	RateLimitingActive    bool
	AuditEnabled          bool
	NotifierConfigured    bool
	LintWarnings          []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config
	return SecurityReport{
		SigningAlgorithm:      cfg.JWT.SigningMethod,
		AccessTTL:             cfg.JWT.AccessTTL,
		RefreshTTL:            cfg.JWT.RefreshTTL,
		OTPLength:             cfg.OTP.Length,
		OTPTTL:                cfg.OTP.TTL,
		OTPExpiryEnforced:     cfg.OTP.EnforceExpiry,
		OTPMaxAttempts:        cfg.OTP.MaxAttempts,
		OTPMaxResends:         cfg.OTP.MaxResends,
		InactivityLimit:       cfg.Session.Inactivity(),
		RevokeOnPasswordReset: cfg.Session.RevokeOnPasswordReset,
		StrictAccess:          cfg.Session.StrictAccess,
		RateLimitingActive:    cfg.RateLimit.Enabled,
		AuditEnabled:          e.audit != nil,
		NotifierConfigured:    e.notifier != nil,
		LintWarnings:          cfg.Lint().Codes(),
	}
}
