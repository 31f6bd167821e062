package authsession

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsession/directory"
	"github.com/MrEthical07/authsession/otp"
	"github.com/MrEthical07/authsession/session"
)

const (
	flowSignup = "signup"
	flowReset  = "reset"
	flowSignin = "signin"
)

// startOTP creates the first session of an OTP flow and links every
// identifier of the snapshot to it in the same commit. A snapshot without a
// user id is stored but never delivered.
func (e *Engine) startOTP(ctx context.Context, flow string, kind session.Kind, identity session.Identity) (*session.Session, error) {
	sid, err := mintSessionID()
	if err != nil {
		return nil, err
	}
	code, grant, err := e.newGrant()
	if err != nil {
		return nil, withCause(ErrSessionStoreFailure, err)
	}
	sess, err := session.NewOTPSession(sid, kind, identity, grant, e.clock())
	if err != nil {
		return nil, withCause(ErrInvalidIdentity, err)
	}

	ttl := e.flowTTL(kind)
	b := session.NewBatch().
		Put(sess, ttl).
		LinkAll(kind.Family(), sess.Identity, sess.ID, ttl)
	if err := e.store.Apply(ctx, b); err != nil {
		return nil, storageErr(err)
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricOTPIssued)
	e.flowLogger(flow, sess).Debug().Msg("otp session created")

	if sess.UserID != "" {
		e.dispatchOTP(ctx, flow, sess, code)
	}
	return sess, nil
}

// resendOTP supersedes current with a new session id and a new code. The
// old record is deleted and the index re-pointed in one commit.
func (e *Engine) resendOTP(ctx context.Context, flow string, current *session.Session) (*session.Session, error) {
	newID, err := mintSessionID()
	if err != nil {
		return nil, err
	}
	code, grant, err := e.newGrant()
	if err != nil {
		return nil, withCause(ErrSessionStoreFailure, err)
	}

	next, err := session.Resend(current, newID, grant, e.resendPolicy(), e.clock())
	if err != nil {
		var limited *session.ResendLimitedError
		if errors.As(err, &limited) {
			e.metricInc(MetricOTPResendLimited)
			return nil, tooManyRequests(ErrResendLimited, limited.Remaining)
		}
		return nil, ErrWrongFlow
	}

	ttl := e.flowTTL(next.Type)
	b := session.NewBatch().
		Delete(current.ID).
		Put(next, ttl).
		LinkAll(next.Type.Family(), next.Identity, next.ID, ttl)
	if err := e.store.Apply(ctx, b); err != nil {
		return nil, storageErr(err)
	}

	e.metricInc(MetricOTPResent)
	e.flowLogger(flow, next).Debug().
		Str("previous_session_id", current.ID).
		Int("resend_count", next.OTPResendCount).
		Msg("otp resent")

	if next.UserID != "" {
		e.dispatchOTP(ctx, flow, next, code)
	}
	return next, nil
}

// checkOTP resolves the flow and runs every check that precedes the
// terminal commit. A wrong guess is recorded on the session in place.
func (e *Engine) checkOTP(ctx context.Context, kind session.Kind, in ResumeInput, code string) (*session.Session, error) {
	sess, _, err := e.resolveFlow(ctx, kind, in)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if err := e.allow(ctx, actionVerify, e.config.RateLimit.Verify, rateSubject(sess)); err != nil {
		return sess, err
	}

	if e.config.OTP.EnforceExpiry && session.OTPExpired(sess, e.clock()) {
		e.metricInc(MetricOTPExpired)
		return sess, ErrOTPExpired
	}
	if limit := e.config.OTP.MaxAttempts; limit > 0 && sess.OTPAttempts >= limit {
		e.metricInc(MetricOTPAttemptsExceeded)
		return sess, ErrOTPAttemptsExceeded
	}

	// Sessions without a user id are reset decoys; no code can match them.
	if sess.UserID == "" || !otp.Verify(code, sess.OTPHash, e.otpSecret) {
		e.metricInc(MetricOTPVerifyFailure)
		if err := e.store.Update(ctx, session.FailAttempt(sess)); err != nil && !errors.Is(err, session.ErrNotFound) {
			return sess, storageErr(err)
		}
		return sess, ErrInvalidOTP
	}
	return sess, nil
}

// finishOTP performs the terminal transition of a verified session: claim
// it, apply patch to the directory and clean up the session with all its
// index entries. Losing the claim means another request consumed it.
func (e *Engine) finishOTP(ctx context.Context, flow string, sess *session.Session, patch directory.Patch) (*directory.UserRecord, error) {
	log := e.flowLogger(flow, sess)

	won, err := e.store.Claim(ctx, sess.ID, e.config.Session.ClaimTTL)
	if err != nil {
		return nil, storageErr(err)
	}
	if !won {
		return nil, ErrSessionNotFound
	}

	rec, err := e.directory.UpdateUserByID(ctx, sess.UserID, patch)
	if errors.Is(err, directory.ErrNotFound) {
		if err := e.store.Apply(ctx, cleanupBatch(sess, nil)); err != nil {
			log.Error().Err(err).Msg("cleanup after deleted user failed")
		}
		return nil, ErrAccountNotFound
	}
	if err != nil {
		if rerr := e.store.Release(ctx, sess.ID); rerr != nil {
			log.Error().Err(rerr).Msg("release claim failed")
		}
		log.Error().Err(err).Msg("directory update failed")
		return nil, withCause(ErrDirectoryUnavailable, err)
	}

	if err := e.store.Apply(ctx, cleanupBatch(sess, rec)); err != nil {
		return rec, storageErr(err)
	}
	log.Debug().Msg("otp session consumed")
	return rec, nil
}

// cleanupBatch deletes sess and unlinks the identifiers of its snapshot
// and, when known, of the current directory record.
func cleanupBatch(sess *session.Session, rec *directory.UserRecord) *session.Batch {
	family := sess.Type.Family()
	b := session.NewBatch().
		Delete(sess.ID).
		Unlink(family, sess.Identifiers()...)
	if rec != nil {
		b.Unlink(family, rec.Identifiers()...)
	}
	return b
}

// rateSubject is the identifier a flow's rate limit is keyed on. It stays
// stable across resends, unlike the session id.
func rateSubject(sess *session.Session) string {
	if ids := sess.Identifiers(); len(ids) > 0 {
		return ids[0]
	}
	return sess.ID
}
