package internaldefs

import (
	"github.com/MrEthical07/authsession"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported alongside the engine counters; its value
// comes from Engine.AuditDropped rather than the snapshot.
const AuditDroppedName = "authsession_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: authsession.MetricSignupSuccess, Name: "authsession_signup_success_total", Help: "Accounts created through signup."},
	{ID: authsession.MetricSignupDuplicate, Name: "authsession_signup_duplicate_total", Help: "Signups rejected because the identifier is taken."},
	{ID: authsession.MetricOTPIssued, Name: "authsession_otp_issued_total", Help: "OTP sessions opened."},
	{ID: authsession.MetricOTPResent, Name: "authsession_otp_resent_total", Help: "OTP resends that replaced a session."},
	{ID: authsession.MetricOTPResendLimited, Name: "authsession_otp_resend_limited_total", Help: "Resends refused by the per-session ceiling."},
	{ID: authsession.MetricOTPVerifySuccess, Name: "authsession_otp_verify_success_total", Help: "OTP verifications that completed a flow."},
	{ID: authsession.MetricOTPVerifyFailure, Name: "authsession_otp_verify_failure_total", Help: "OTP verifications that failed."},
	{ID: authsession.MetricOTPExpired, Name: "authsession_otp_expired_total", Help: "OTP verifications after the code expired."},
	{ID: authsession.MetricOTPAttemptsExceeded, Name: "authsession_otp_attempts_exceeded_total", Help: "OTP verifications refused after too many wrong codes."},
	{ID: authsession.MetricPasswordResetRequest, Name: "authsession_password_reset_request_total", Help: "Password reset requests."},
	{ID: authsession.MetricPasswordResetSuccess, Name: "authsession_password_reset_success_total", Help: "Completed password resets."},
	{ID: authsession.MetricSigninSuccess, Name: "authsession_signin_success_total", Help: "Successful signins."},
	{ID: authsession.MetricSigninFailure, Name: "authsession_signin_failure_total", Help: "Failed signins."},
	{ID: authsession.MetricRefreshSuccess, Name: "authsession_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authsession.MetricRefreshFailure, Name: "authsession_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authsession.MetricRotateSuccess, Name: "authsession_rotate_success_total", Help: "Successful session rotations."},
	{ID: authsession.MetricRotateReplay, Name: "authsession_rotate_replay_total", Help: "Rotations presented with a stale refresh token."},
	{ID: authsession.MetricSessionCreated, Name: "authsession_session_created_total", Help: "Created sessions of any kind."},
	{ID: authsession.MetricSessionInactive, Name: "authsession_session_inactive_total", Help: "Signin sessions dropped for inactivity."},
	{ID: authsession.MetricLogout, Name: "authsession_logout_total", Help: "Single-session logout operations."},
	{ID: authsession.MetricLogoutAll, Name: "authsession_logout_all_total", Help: "Logout-all operations."},
	{ID: authsession.MetricRateLimitHit, Name: "authsession_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: authsession.MetricRateLimitFailOpen, Name: "authsession_rate_limit_fail_open_total", Help: "Rate-limit checks skipped because Redis failed."},
	{ID: authsession.MetricNotifyFailure, Name: "authsession_notify_failure_total", Help: "OTP deliveries the notifier failed."},
	{ID: authsession.MetricPasswordRehash, Name: "authsession_password_rehash_total", Help: "Stored password hashes upgraded at signin."},
}

var HistogramDefs = []HistogramDef{
	{ID: authsession.MetricValidateLatency, Name: "authsession_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets, in
// seconds, as Prometheus "le" labels.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
