package authsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authsession/directory"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/password"
	"github.com/MrEthical07/authsession/session"
)

// Signin authenticates a local account and opens a SIGNIN session. The
// account must be local, active and email-verified, and secret must match
// the stored hash.
func (e *Engine) Signin(ctx context.Context, identifier, secret string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	pair, userID, err := e.signin(ctx, identifier, secret)
	if err != nil {
		e.metricInc(MetricSigninFailure)
		e.emitAudit(ctx, auditEventSignin, flowSignin, false, userID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricSigninSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSignin, flowSignin, true, userID, pair.SessionID, nil, nil)
	return pair, nil
}

func (e *Engine) signin(ctx context.Context, identifier, secret string) (*TokenPair, string, error) {
	ident, err := e.idents.Normalize(identifier)
	if err != nil {
		return nil, "", withCause(ErrInvalidIdentity, err)
	}
	if err := e.allow(ctx, actionSignin, e.config.RateLimit.Signin, ident); err != nil {
		return nil, "", err
	}

	rec, err := e.directory.FindByIdentifier(ctx, ident)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		e.logger.Error().Err(err).Str("flow", flowSignin).Msg("directory lookup failed")
		return nil, "", withCause(ErrDirectoryUnavailable, err)
	}

	if !rec.Local() {
		return nil, rec.ID, ErrFederatedAccount
	}
	if ok, err := e.hasher.Verify(secret, rec.PasswordHash); err != nil || !ok {
		return nil, rec.ID, ErrInvalidCredentials
	}
	if !rec.Active {
		return nil, rec.ID, ErrAccountInactive
	}
	if !rec.EmailVerified {
		return nil, rec.ID, ErrAccountUnverified
	}
	e.upgradeHash(ctx, rec, secret)

	sid, err := mintSessionID()
	if err != nil {
		return nil, rec.ID, err
	}
	sess, err := session.NewSigninSession(sid, identityFromRecord(rec), e.clock())
	if err != nil {
		return nil, rec.ID, withCause(ErrInvalidIdentity, err)
	}

	b := session.NewBatch().
		Put(sess, e.config.JWT.RefreshTTL).
		Track(rec.ID, sid)
	if err := e.store.Apply(ctx, b); err != nil {
		return nil, rec.ID, storageErr(err)
	}

	access, refresh, err := e.issuer.IssuePair(rec.ID, sid)
	if err != nil {
		e.dropSignin(ctx, sess)
		return nil, rec.ID, fmt.Errorf("issue tokens: %w", err)
	}

	e.resetLimit(ctx, actionSignin, ident)
	e.flowLogger(flowSignin, sess).Debug().Msg("signin session created")
	return &TokenPair{AccessToken: access, RefreshToken: refresh, SessionID: sid}, rec.ID, nil
}

// upgradeHash re-hashes a verified password when the hasher reports the
// stored hash as weaker than its current parameters. Failures are logged
// and never fail the signin.
func (e *Engine) upgradeHash(ctx context.Context, rec *directory.UserRecord, secret string) {
	up, ok := e.hasher.(password.Upgrader)
	if !ok {
		return
	}
	log := e.logger.With().Str("flow", flowSignin).Str("user_id", rec.ID).Logger()
	stale, err := up.NeedsUpgrade(rec.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := e.hasher.Hash(secret)
	if err != nil {
		log.Warn().Err(err).Msg("password rehash failed")
		return
	}
	if _, err := e.directory.UpdateUserByID(ctx, rec.ID, directory.Patch{PasswordHash: directory.String(hash)}); err != nil {
		log.Warn().Err(err).Msg("storing upgraded password hash failed")
		return
	}
	e.metricInc(MetricPasswordRehash)
	log.Debug().Msg("password hash upgraded")
}

// Refresh records activity on the session behind refreshToken and returns
// a new access token. The session id and the refresh token stay the same.
// A session idle for longer than the inactivity ceiling is deleted and
// ErrSessionInactive returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	sess, err := e.refresh(ctx, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefresh, flowSignin, false, "", "", err, nil)
		return nil, err
	}

	access, err := e.issuer.IssueAccess(sess.UserID, sess.ID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefresh, flowSignin, true, sess.UserID, sess.ID, nil, nil)
	return &TokenPair{AccessToken: access, RefreshToken: refreshToken, SessionID: sess.ID}, nil
}

func (e *Engine) refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	current, err := e.loadRefreshSession(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	next, err := e.touch(ctx, current)
	if err != nil {
		return nil, err
	}
	if err := e.store.Touch(ctx, next, e.config.JWT.RefreshTTL); err != nil {
		return nil, storageErr(err)
	}
	return next, nil
}

// Rotate replaces the session behind refreshToken with a new id and returns
// a new token pair. The old refresh token is never honored again; a second
// use fails with ErrSessionNotFound.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	pair, userID, err := e.rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			e.metricInc(MetricRotateReplay)
			e.emitAudit(ctx, auditEventRotateReplay, flowSignin, false, userID, "", err, nil)
		} else {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRotate, flowSignin, false, userID, "", err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricRotateSuccess)
	e.emitAudit(ctx, auditEventRotate, flowSignin, true, userID, pair.SessionID, nil, nil)
	return pair, nil
}

func (e *Engine) rotate(ctx context.Context, refreshToken string) (*TokenPair, string, error) {
	current, err := e.loadRefreshSession(ctx, refreshToken)
	if err != nil {
		return nil, "", err
	}
	if _, err := e.touch(ctx, current); err != nil {
		return nil, current.UserID, err
	}

	newID, err := mintSessionID()
	if err != nil {
		return nil, current.UserID, err
	}
	next, err := session.Rotate(current, newID, e.clock())
	if err != nil {
		return nil, current.UserID, ErrWrongFlow
	}
	if err := e.store.RotateSignin(ctx, current.ID, next, e.config.JWT.RefreshTTL); err != nil {
		return nil, current.UserID, storageErr(err)
	}

	access, refresh, err := e.issuer.IssuePair(next.UserID, next.ID)
	if err != nil {
		e.dropSignin(ctx, next)
		return nil, next.UserID, fmt.Errorf("issue tokens: %w", err)
	}

	e.flowLogger(flowSignin, next).Debug().Str("previous_session_id", current.ID).Msg("session rotated")
	return &TokenPair{AccessToken: access, RefreshToken: refresh, SessionID: next.ID}, next.UserID, nil
}

// loadRefreshSession verifies a refresh token and loads the SIGNIN session
// it names. A token whose subject no longer owns the session is treated as
// if the session were gone.
func (e *Engine) loadRefreshSession(ctx context.Context, refreshToken string) (*session.Session, error) {
	claims, err := e.issuer.Verify(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return nil, tokenErr(err)
	}
	if err := e.allow(ctx, actionRefresh, e.config.RateLimit.Refresh, claims.SessionID); err != nil {
		return nil, err
	}

	sess, err := e.loadSession(ctx, claims.SessionID, session.KindSignin)
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.Subject {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// touch applies the inactivity ceiling. An idle session is deleted.
func (e *Engine) touch(ctx context.Context, current *session.Session) (*session.Session, error) {
	next, err := session.Touch(current, e.config.Session.Inactivity(), e.clock())
	if errors.Is(err, session.ErrInactive) {
		e.dropSignin(ctx, current)
		e.metricInc(MetricSessionInactive)
		e.flowLogger(flowSignin, current).Debug().Msg("session expired by inactivity")
		return nil, ErrSessionInactive
	}
	if err != nil {
		return nil, ErrWrongFlow
	}
	return next, nil
}

// dropSignin deletes a SIGNIN session on a failure path; errors are logged.
func (e *Engine) dropSignin(ctx context.Context, sess *session.Session) {
	b := session.NewBatch().Delete(sess.ID).Untrack(sess.UserID, sess.ID)
	if err := e.store.Apply(ctx, b); err != nil {
		e.flowLogger(flowSignin, sess).Error().Err(err).Msg("drop session failed")
	}
}

/*
====================================
LOGOUT
====================================
*/

// Logout revokes one SIGNIN session of userID. A session that no longer
// exists is already logged out. A session owned by someone else yields
// ErrSessionOwnerMismatch and is left untouched.
func (e *Engine) Logout(ctx context.Context, userID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	err := e.logout(ctx, userID, sessionID)
	e.emitAudit(ctx, auditEventLogoutSession, flowSignin, err == nil, userID, sessionID, err, nil)
	if err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	return nil
}

func (e *Engine) logout(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return ErrInvalidIdentity
	}

	sess, err := e.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageErr(err)
	}
	if sess.Type != session.KindSignin {
		return ErrWrongFlow
	}
	if sess.UserID != userID {
		return ErrSessionOwnerMismatch
	}

	b := session.NewBatch().Delete(sess.ID).Untrack(sess.UserID, sess.ID)
	if err := e.store.Apply(ctx, b); err != nil {
		return storageErr(err)
	}
	return nil
}

// LogoutAccessToken revokes the session named by a valid access token.
func (e *Engine) LogoutAccessToken(ctx context.Context, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	claims, err := e.issuer.Verify(accessToken, jwt.TypeAccess)
	if err != nil {
		return tokenErr(err)
	}
	return e.Logout(ctx, claims.Subject, claims.SessionID)
}

// LogoutAll revokes every SIGNIN session of userID and returns how many
// were removed. A user without sessions is not an error.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, ErrInvalidIdentity
	}

	n, err := e.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		err = storageErr(err)
		e.emitAudit(ctx, auditEventLogoutAll, flowSignin, false, userID, "", err, nil)
		return 0, err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, flowSignin, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return n, nil
}

/*
====================================
ACCESS VALIDATION
====================================
*/

// ValidateAccess verifies an access token. With Session.StrictAccess the
// SIGNIN session it names must also still exist.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	claims, err := e.issuer.Verify(accessToken, jwt.TypeAccess)
	if err != nil {
		return nil, tokenErr(err)
	}

	if e.config.Session.StrictAccess {
		sess, err := e.loadSession(ctx, claims.SessionID, session.KindSignin)
		if err != nil {
			return nil, err
		}
		if sess.UserID != claims.Subject {
			return nil, ErrSessionNotFound
		}
	}

	out := &AccessClaims{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
