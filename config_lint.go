package authsession

import (
	"errors"
	"strings"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	}
	return "UNKNOWN"
}

// LintWarning is one finding of Config.Lint. Code is stable and meant for
// programmatic checks.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of findings of Config.Lint.
type LintResult []LintWarning

// Codes returns the codes of all findings.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// BySeverity returns the findings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins the findings at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	msgs := make([]string, len(hits))
	for i, w := range hits {
		msgs[i] = w.Severity.String() + " " + w.Code + ": " + w.Message
	}
	return errors.New("config lint: " + strings.Join(msgs, "; "))
}

// Lint reports settings that are valid but weaken the engine. It never
// fails; use AsError to turn findings into a startup gate.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "JWT leeway above 1m widens the expiry window")
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens live longer than 15m")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "refresh tokens live longer than 30 days")
	}
	if c.JWT.SigningMethod == "hs256" {
		add("signing_hs256", LintInfo, "hs256 shares the signing secret with every verifier")
	}

	minFlowTTL := c.Session.SignupTTL
	if c.Session.ResetTTL < minFlowTTL {
		minFlowTTL = c.Session.ResetTTL
	}
	if c.OTP.MaxResends > 0 && c.OTP.ResendWindow > minFlowTTL {
		add("resend_window_outlives_session", LintHigh,
			"resend window is longer than the OTP session TTL; the window anchor expires before the window closes")
	}
	if c.OTP.TTL > minFlowTTL {
		add("otp_ttl_outlives_session", LintInfo, "OTP TTL is longer than the session that carries it")
	}
	if !c.OTP.EnforceExpiry {
		add("otp_expiry_not_enforced", LintWarn, "codes stay valid until the session is evicted")
	}

	rateLimited := c.RateLimit.Enabled && (c.RateLimit.Verify.Limit > 0 ||
		c.RateLimit.Signin.Limit > 0 || c.RateLimit.Resend.Limit > 0)
	if !rateLimited {
		add("rate_limits_disabled", LintWarn, "no rate limit protects verify, signin or resend")
	}
	if c.OTP.MaxAttempts == 0 && (!c.RateLimit.Enabled || c.RateLimit.Verify.Limit == 0) {
		add("otp_guessing_unbounded", LintHigh, "neither an attempt cap nor a verify rate limit bounds OTP guessing")
	}

	if c.Session.InactivityDays == 0 {
		add("inactivity_disabled", LintInfo, "idle sign-in sessions live until the refresh TTL")
	}
	if !c.Session.RevokeOnPasswordReset {
		add("reset_keeps_sessions", LintWarn, "password reset leaves existing sign-in sessions alive")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not emitted")
	}

	return ws
}
