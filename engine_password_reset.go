package authsession

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsession/directory"
	"github.com/MrEthical07/authsession/session"
)

// ForgotPassword starts, or continues, the RESET_PASSWORD flow for
// identifier and returns the session id.
//
// The result does not reveal whether the account exists: unknown,
// federated and inactive accounts get a stored decoy session that behaves
// like a real one under resend limits but can never be verified and never
// triggers a notification.
func (e *Engine) ForgotPassword(ctx context.Context, identifier string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	ident, err := e.idents.Normalize(identifier)
	if err != nil {
		err = withCause(ErrInvalidIdentity, err)
		e.emitAudit(ctx, auditEventPasswordResetStart, flowReset, false, "", "", err, nil)
		return "", err
	}

	sess, err := e.forgotPassword(ctx, ident)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetStart, flowReset, false, "", "", err, nil)
		return "", err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetStart, flowReset, true, sess.UserID, sess.ID, nil, nil)
	return sess.ID, nil
}

func (e *Engine) forgotPassword(ctx context.Context, ident string) (*session.Session, error) {
	if err := e.allow(ctx, actionReset, e.config.RateLimit.Reset, ident); err != nil {
		return nil, err
	}

	sid, err := e.index.Resolve(ctx, session.FamilyReset, ident)
	switch {
	case err == nil:
		current, err := e.loadSession(ctx, sid, session.KindResetPassword)
		if err == nil {
			return e.resendOTP(ctx, flowReset, current)
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
	case !errors.Is(err, session.ErrNotFound):
		return nil, storageErr(err)
	}

	return e.startReset(ctx, ident)
}

// startReset opens a fresh reset session from a directory lookup.
func (e *Engine) startReset(ctx context.Context, ident string) (*session.Session, error) {
	rec, err := e.directory.FindByIdentifier(ctx, ident)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		e.logger.Error().Err(err).Str("flow", flowReset).Msg("directory lookup failed")
		return nil, withCause(ErrDirectoryUnavailable, err)
	}

	if rec == nil || !rec.Local() || !rec.Active {
		decoy, err := e.identityForIdentifier(ident)
		if err != nil {
			return nil, err
		}
		return e.startOTP(ctx, flowReset, session.KindResetPassword, decoy)
	}
	return e.startOTP(ctx, flowReset, session.KindResetPassword, identityFromRecord(rec))
}

// ResendResetOTP issues a new reset code under a new session id. Without a
// live session an identifier starts the flow the way ForgotPassword does.
func (e *Engine) ResendResetOTP(ctx context.Context, in ResumeInput) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	sess, err := e.resendReset(ctx, in)
	if err != nil {
		e.emitAudit(ctx, auditEventOTPResent, flowReset, false, "", in.SessionID, err, nil)
		return "", err
	}

	e.emitAudit(ctx, auditEventOTPResent, flowReset, true, sess.UserID, sess.ID, nil, func() map[string]string {
		return map[string]string{"previous_session_id": in.SessionID}
	})
	return sess.ID, nil
}

func (e *Engine) resendReset(ctx context.Context, in ResumeInput) (*session.Session, error) {
	current, ident, err := e.resolveFlow(ctx, session.KindResetPassword, in)
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
		return e.resendOTP(ctx, flowReset, current)
	}
	sess, err := e.startReset(ctx, ident)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricOTPResent)
	return sess, nil
}

// ResetPassword checks the code of a RESET_PASSWORD session and stores the
// new password hash. With RevokeOnPasswordReset every sign-in session of
// the user is revoked afterwards.
func (e *Engine) ResetPassword(ctx context.Context, in ResetInput) error {
	if err := e.ready(); err != nil {
		return err
	}

	sess, err := e.resetPassword(ctx, in)

	var userID, sid string
	if sess != nil {
		userID, sid = sess.UserID, sess.ID
	}
	if err != nil {
		e.emitAudit(ctx, auditEventOTPFailure, flowReset, false, userID, sid, err, nil)
		return err
	}

	e.metricInc(MetricOTPVerifySuccess)
	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordReset, flowReset, true, userID, sid, nil, nil)
	return nil
}

func (e *Engine) resetPassword(ctx context.Context, in ResetInput) (*session.Session, error) {
	if in.NewPassword == "" {
		return nil, ErrPasswordPolicy
	}

	sess, err := e.checkOTP(ctx, session.KindResetPassword, in.ResumeInput, in.Code)
	if err != nil {
		return sess, err
	}

	// Hash before claiming so a policy failure leaves the session usable.
	hash, err := e.hasher.Hash(in.NewPassword)
	if err != nil {
		return sess, withCause(ErrPasswordPolicy, err)
	}

	if _, err := e.finishOTP(ctx, flowReset, sess, directory.Patch{
		PasswordHash: directory.String(hash),
	}); err != nil {
		return sess, err
	}

	if e.config.Session.RevokeOnPasswordReset {
		n, err := e.store.DeleteAllForUser(ctx, sess.UserID)
		if err != nil {
			e.flowLogger(flowReset, sess).Error().Err(err).Msg("revoke sessions after reset failed")
		} else if n > 0 {
			e.metricInc(MetricLogoutAll)
			e.flowLogger(flowReset, sess).Debug().Int("revoked", n).Msg("sessions revoked after reset")
		}
	}
	return sess, nil
}
