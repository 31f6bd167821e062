package session

import (
	"errors"
	"fmt"
	"time"
)

// Transitions in this file are pure: they take the loaded record and an
// intent and return the next record. Persisting the result is the caller's
// single commit step.

var (
	// ErrWrongKind is returned when a transition is applied to a session of
	// another flow family.
	ErrWrongKind = errors.New("session kind does not allow this transition")
	// ErrInactive is returned by Touch when the inactivity ceiling is exceeded.
	ErrInactive = errors.New("session inactive")
)

// ResendLimitedError reports that the resend ceiling is reached and how long
// the current window still runs.
type ResendLimitedError struct {
	Remaining time.Duration
}

func (e *ResendLimitedError) Error() string {
	return fmt.Sprintf("otp resend limit reached, window closes in %s", e.Remaining)
}

// ResendPolicy bounds OTP resends within a window anchored at CreatedAt.
type ResendPolicy struct {
	MaxResends int
	Window     time.Duration
}

// OTPGrant is a freshly generated code in hashed form.
type OTPGrant struct {
	Hash      string
	ExpiresAt time.Time
}

// NewOTPSession builds the first record of a signup or reset flow.
func NewOTPSession(id string, kind Kind, identity Identity, grant OTPGrant, now time.Time) (*Session, error) {
	if !kind.UsesOTP() {
		return nil, ErrWrongKind
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		ID:           id,
		Type:         kind,
		Identity:     identity,
		OTPHash:      grant.Hash,
		OTPExpiresAt: grant.ExpiresAt.UnixMilli(),
		CreatedAt:    now.UnixMilli(),
	}, nil
}

// NewSigninSession builds a SIGNIN record. The identity must carry a user id.
func NewSigninSession(id string, identity Identity, now time.Time) (*Session, error) {
	if identity.UserID == "" {
		return nil, errors.New("signin session requires a user id")
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	ms := now.UnixMilli()
	return &Session{
		ID:             id,
		Type:           KindSignin,
		Identity:       identity,
		LastActivityAt: ms,
		CreatedAt:      ms,
	}, nil
}

// Resend supersedes old with a record under newID carrying a new code.
//
// Below the ceiling the resend count grows by one and the window anchor is
// kept. At the ceiling the call fails with *ResendLimitedError while the
// window is open; once it has elapsed the count restarts at 1 and the window
// is re-anchored at now.
func Resend(old *Session, newID string, grant OTPGrant, policy ResendPolicy, now time.Time) (*Session, error) {
	if old == nil || !old.Type.UsesOTP() {
		return nil, ErrWrongKind
	}

	next := old.Clone()
	next.ID = newID
	next.OTPHash = grant.Hash
	next.OTPExpiresAt = grant.ExpiresAt.UnixMilli()
	next.OTPAttempts = 0

	if policy.MaxResends > 0 && old.OTPResendCount >= policy.MaxResends {
		elapsed := now.Sub(time.UnixMilli(old.CreatedAt))
		if elapsed < policy.Window {
			return nil, &ResendLimitedError{Remaining: policy.Window - elapsed}
		}
		next.OTPResendCount = 1
		next.CreatedAt = now.UnixMilli()
		return next, nil
	}

	next.OTPResendCount = old.OTPResendCount + 1
	return next, nil
}

// FailAttempt records one wrong OTP guess.
func FailAttempt(old *Session) *Session {
	next := old.Clone()
	next.OTPAttempts++
	return next
}

// OTPExpired reports whether the code's explicit expiry has passed,
// regardless of whether the record has been evicted yet.
func OTPExpired(s *Session, now time.Time) bool {
	return s.OTPExpiresAt > 0 && now.UnixMilli() > s.OTPExpiresAt
}

// Touch records activity on a SIGNIN session. If the gap since the last
// activity exceeds maxInactivity the session is reported inactive instead.
func Touch(old *Session, maxInactivity time.Duration, now time.Time) (*Session, error) {
	if old == nil || old.Type != KindSignin {
		return nil, ErrWrongKind
	}
	last := old.LastActivityAt
	if last == 0 {
		last = old.CreatedAt
	}
	if maxInactivity > 0 && now.Sub(time.UnixMilli(last)) > maxInactivity {
		return nil, ErrInactive
	}
	next := old.Clone()
	next.LastActivityAt = now.UnixMilli()
	return next, nil
}

// Rotate returns the record that replaces old under newID: same identity,
// refreshed timestamps.
func Rotate(old *Session, newID string, now time.Time) (*Session, error) {
	if old == nil || old.Type != KindSignin {
		return nil, ErrWrongKind
	}
	next := old.Clone()
	next.ID = newID
	next.CreatedAt = now.UnixMilli()
	next.LastActivityAt = now.UnixMilli()
	return next, nil
}
