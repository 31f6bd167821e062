package authsession

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsession/directory"
	"github.com/MrEthical07/authsession/session"
)

// Signup creates an unverified local account and starts its
// SIGNUP_VERIFY flow. The returned session id is the client's handle for
// resend and verify; the OTP goes out asynchronously.
//
// When the session cannot be written after the account was created, the
// client recovers through ResendSignupOTP, which cold-starts from the
// directory.
func (e *Engine) Signup(ctx context.Context, in SignupInput) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	sid, userID, err := e.signup(ctx, in)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricSignupDuplicate)
		}
		e.emitAudit(ctx, auditEventSignup, flowSignup, false, userID, "", err, nil)
		return "", err
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignup, flowSignup, true, userID, sid, nil, nil)
	return sid, nil
}

func (e *Engine) signup(ctx context.Context, in SignupInput) (string, string, error) {
	if err := in.Validate(); err != nil {
		return "", "", withCause(ErrInvalidIdentity, err)
	}
	identity, err := e.normalizeIdentity(in.Email, in.Username, in.PhoneNumber)
	if err != nil {
		return "", "", err
	}
	if err := e.allow(ctx, actionSignup, e.config.RateLimit.Signup, identity.Identifiers()[0]); err != nil {
		return "", "", err
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return "", "", withCause(ErrPasswordPolicy, err)
	}

	rec, err := e.directory.CreateUser(ctx, directory.CreateInput{
		Email:        identity.Email,
		Username:     identity.Username,
		PhoneNumber:  identity.PhoneNumber,
		PasswordHash: hash,
		Provider:     directory.ProviderLocal,
		Active:       true,
	})
	if err != nil {
		if !errors.Is(err, directory.ErrDuplicate) {
			e.logger.Error().Err(err).Str("flow", flowSignup).Msg("create user failed")
		}
		return "", "", directoryErr(err)
	}

	identity.UserID = rec.ID
	sess, err := e.startOTP(ctx, flowSignup, session.KindSignupVerify, identity)
	if err != nil {
		return "", rec.ID, err
	}
	return sess.ID, rec.ID, nil
}

// ResendSignupOTP issues a new signup code under a new session id and
// invalidates the previous one. Without a live session it cold-starts from
// the directory for accounts that are local, active and not yet verified.
func (e *Engine) ResendSignupOTP(ctx context.Context, in ResumeInput) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	sess, err := e.resendSignup(ctx, in)
	if err != nil {
		e.emitAudit(ctx, auditEventOTPResent, flowSignup, false, "", in.SessionID, err, nil)
		return "", err
	}

	e.emitAudit(ctx, auditEventOTPResent, flowSignup, true, sess.UserID, sess.ID, nil, func() map[string]string {
		return map[string]string{"previous_session_id": in.SessionID}
	})
	return sess.ID, nil
}

func (e *Engine) resendSignup(ctx context.Context, in ResumeInput) (*session.Session, error) {
	current, ident, err := e.resolveFlow(ctx, session.KindSignupVerify, in)
	if err != nil {
		return nil, err
	}

	subject := ident
	if current != nil {
		subject = rateSubject(current)
	}
	if err := e.allow(ctx, actionResend, e.config.RateLimit.Resend, subject); err != nil {
		return nil, err
	}

	if current != nil {
		return e.resendOTP(ctx, flowSignup, current)
	}

	rec, err := e.directory.FindByIdentifier(ctx, ident)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, directoryErr(err)
	case !rec.Active:
		return nil, ErrAccountInactive
	case rec.EmailVerified:
		return nil, ErrAlreadyVerified
	case !rec.Local():
		return nil, ErrFederatedAccount
	}

	sess, err := e.startOTP(ctx, flowSignup, session.KindSignupVerify, identityFromRecord(rec))
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricOTPResent)
	return sess, nil
}

// VerifySignup checks the code of a SIGNUP_VERIFY session and marks the
// account's email verified. On success the session and every identifier
// link to it are gone.
func (e *Engine) VerifySignup(ctx context.Context, in VerifyInput) error {
	if err := e.ready(); err != nil {
		return err
	}

	sess, err := e.checkOTP(ctx, session.KindSignupVerify, in.ResumeInput, in.Code)
	if err == nil {
		_, err = e.finishOTP(ctx, flowSignup, sess, directory.Patch{
			EmailVerified: directory.Bool(true),
		})
	}

	var userID, sid string
	if sess != nil {
		userID, sid = sess.UserID, sess.ID
	}
	if err != nil {
		e.emitAudit(ctx, auditEventOTPFailure, flowSignup, false, userID, sid, err, nil)
		return err
	}

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventSignupVerified, flowSignup, true, userID, sid, nil, nil)
	return nil
}
