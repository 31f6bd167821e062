package authsession

import (
	"context"

	"github.com/MrEthical07/authsession/session"
)

// Lookup returns the session stored under sessionID, of any kind.
func (e *Engine) Lookup(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, storageErr(err)
	}
	info := sessionInfo(sess)
	return &info, nil
}

// LookupIdentifier resolves the live session of an OTP flow through the
// identifier index. SIGNIN sessions are not indexed by identifier.
func (e *Engine) LookupIdentifier(ctx context.Context, kind session.Kind, identifier string) (*SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !kind.UsesOTP() {
		return nil, ErrWrongFlow
	}

	sess, _, err := e.resolveFlow(ctx, kind, ResumeInput{Identifier: identifier})
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	info := sessionInfo(sess)
	return &info, nil
}

// ActiveSessions lists the live SIGNIN sessions of userID. Ids left in the
// user's set after their record expired are skipped.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrInvalidIdentity
	}

	ids, err := e.store.UserSessionIDs(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	sessions, err := e.store.GetMany(ctx, ids)
	if err != nil {
		return nil, storageErr(err)
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Type != session.KindSignin || sess.UserID != userID {
			continue
		}
		out = append(out, sessionInfo(sess))
	}
	return out, nil
}

// ActiveSessionCount is the number of ids tracked for userID. It may count
// sessions whose records already expired.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, ErrInvalidIdentity
	}
	ids, err := e.store.UserSessionIDs(ctx, userID)
	if err != nil {
		return 0, storageErr(err)
	}
	return len(ids), nil
}

// Health pings Redis. It never fails; availability is in the result.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.store == nil {
		return HealthStatus{}
	}
	latency, err := e.store.Ping(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("redis health check failed")
		return HealthStatus{RedisLatency: latency}
	}
	return HealthStatus{RedisAvailable: true, RedisLatency: latency}
}
