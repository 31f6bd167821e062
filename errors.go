package authsession

import (
	"errors"
	"fmt"
	"time"
)

// Error classes. Every error returned by the Engine matches exactly one of
// these with errors.Is, so callers can map them to transport status codes
// without knowing the specific cause.
var (
	// ErrGone means the session or resource is no longer resolvable:
	// expired, consumed or deleted.
	ErrGone               = errors.New("gone")
	ErrInvalidState       = errors.New("invalid state")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// classErr is a specific error that unwraps to its class.
type classErr struct {
	msg   string
	class error
}

func (e *classErr) Error() string { return e.msg }
func (e *classErr) Unwrap() error { return e.class }

func newClassErr(class error, msg string) error {
	return &classErr{msg: msg, class: class}
}

// Specific errors. Each unwraps to one of the classes above.
var (
	// ErrSessionNotFound means the session id or token does not resolve to a live session.
	ErrSessionNotFound       = newClassErr(ErrGone, "session not found")
	// ErrSessionInactive means the session outlived the inactivity limit and was dropped.
	ErrSessionInactive       = newClassErr(ErrGone, "session inactive")
	// ErrOTPExpired means the OTP of the session is past its expiry.
	ErrOTPExpired            = newClassErr(ErrGone, "otp expired")
	// ErrAccountNotFound means the user behind a session was deleted from the directory.
	ErrAccountNotFound       = newClassErr(ErrGone, "account no longer exists")
	// ErrWrongFlow means a session was presented to an operation of another flow.
	ErrWrongFlow             = newClassErr(ErrInvalidState, "session belongs to another flow")
	// ErrFederatedAccount means the account has no local password to check or reset.
	ErrFederatedAccount      = newClassErr(ErrInvalidState, "account uses an external identity provider")
	// ErrInvalidIdentity means an identifier is missing or malformed.
	ErrInvalidIdentity       = newClassErr(ErrInvalidState, "invalid identity")
	// ErrPasswordPolicy means a password is outside the configured length bounds.
	ErrPasswordPolicy        = newClassErr(ErrInvalidState, "password does not meet policy")
	// ErrEngineNotReady means a zero or closed Engine was used.
	ErrEngineNotReady        = newClassErr(ErrInvalidState, "engine not initialized")
	// ErrInvalidOTP means the submitted code does not match.
	ErrInvalidOTP            = newClassErr(ErrUnauthorized, "invalid otp")
	// ErrInvalidCredentials means the identifier or password is wrong.
	ErrInvalidCredentials    = newClassErr(ErrUnauthorized, "invalid credentials")
	// ErrTokenExpired means a JWT is past its exp claim.
	ErrTokenExpired          = newClassErr(ErrUnauthorized, "token expired")
	// ErrTokenMalformed means a JWT failed to parse or verify.
	ErrTokenMalformed        = newClassErr(ErrUnauthorized, "token malformed")
	// ErrTokenTypeMismatch means an access token was used as a refresh token or the reverse.
	ErrTokenTypeMismatch     = newClassErr(ErrUnauthorized, "token type mismatch")
	// ErrAccountInactive means the account is disabled in the directory.
	ErrAccountInactive       = newClassErr(ErrForbidden, "account inactive")
	// ErrAccountUnverified means the account has not completed signup verification.
	ErrAccountUnverified     = newClassErr(ErrForbidden, "account unverified")
	// ErrSessionOwnerMismatch means the session belongs to a different user than the caller.
	ErrSessionOwnerMismatch  = newClassErr(ErrForbidden, "session belongs to another user")
	// ErrAccountExists means an identifier is already taken by another account.
	ErrAccountExists         = newClassErr(ErrConflict, "account already exists")
	// ErrAlreadyVerified means the account completed verification earlier.
	ErrAlreadyVerified       = newClassErr(ErrConflict, "account already verified")
	// ErrRateLimited means a rate limit rule rejected the request.
	ErrRateLimited           = newClassErr(ErrTooManyRequests, "rate limited")
	// ErrResendLimited means the OTP resend ceiling of the session is reached.
	ErrResendLimited         = newClassErr(ErrTooManyRequests, "otp resend limit reached")
	// ErrOTPAttemptsExceeded means the session used up its OTP verification attempts.
	ErrOTPAttemptsExceeded   = newClassErr(ErrTooManyRequests, "otp attempts exceeded")
	// ErrDirectoryUnavailable means the user directory returned an unexpected error.
	ErrDirectoryUnavailable  = newClassErr(ErrStorageUnavailable, "user directory unavailable")
	// ErrSessionStoreFailure means redis failed while reading or writing sessions.
	ErrSessionStoreFailure   = newClassErr(ErrStorageUnavailable, "session store unavailable")
	// ErrNotificationNoChannel means the identity has neither an email nor a phone number.
	ErrNotificationNoChannel = newClassErr(ErrInvalidState, "identity has no email or phone number to deliver an otp to")
)

// TooManyRequestsError is returned when a ceiling is hit and the caller
// should retry later. It unwraps to ErrRateLimited or ErrResendLimited.
type TooManyRequestsError struct {
	Cause      error
	RetryAfter time.Duration
}

func (e *TooManyRequestsError) Error() string {
	return fmt.Sprintf("%v, %s", e.Cause, e.Hint())
}

func (e *TooManyRequestsError) Unwrap() error { return e.Cause }

// Hint renders RetryAfter for humans. Minutes are rounded up; past an hour
// the hint switches to hours, also rounded up.
func (e *TooManyRequestsError) Hint() string {
	ms := e.RetryAfter.Milliseconds()
	if ms <= 0 {
		return "try again now"
	}
	minutes := (ms + 59_999) / 60_000
	if minutes <= 60 {
		return "try again in " + plural(minutes, "minute")
	}
	hours := (minutes + 59) / 60
	return "try again in " + plural(hours, "hour")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func tooManyRequests(cause error, retryAfter time.Duration) error {
	return &TooManyRequestsError{Cause: cause, RetryAfter: retryAfter}
}

// withCause attaches the underlying error text to a specific error while
// keeping errors.Is on the specific error and its class.
func withCause(specific error, cause error) error {
	if cause == nil {
		return specific
	}
	return fmt.Errorf("%w: %v", specific, cause)
}
