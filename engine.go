package authsession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/authsession/directory"
	"github.com/MrEthical07/authsession/internal"
	"github.com/MrEthical07/authsession/internal/identifier"
	"github.com/MrEthical07/authsession/internal/rate"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/otp"
	"github.com/MrEthical07/authsession/password"
	"github.com/MrEthical07/authsession/session"
)

// Rate-limited actions.
const (
	actionSignup  rate.Action = "signup"
	actionResend  rate.Action = "resend"
	actionVerify  rate.Action = "verify"
	actionSignin  rate.Action = "signin"
	actionReset   rate.Action = "reset"
	actionRefresh rate.Action = "refresh"
)

// Engine runs the signup-verification, password-reset and sign-in flows.
// Every flow loads at most one session, computes the next state with a pure
// transition and commits it in one atomic Redis operation. Engine holds no
// locks around flows and is safe for concurrent use once built.
type Engine struct {
	config Config

	store   *session.Store
	index   *session.Index
	limiter *rate.Limiter
	issuer  *jwt.Issuer

	directory directory.Directory
	hasher    password.Hasher
	notifier  Notifier
	idents    identifier.Normalizer
	otpSecret []byte

	audit   *auditDispatcher
	metrics *Metrics
	logger  zerolog.Logger

	now      func() time.Time
	inflight sync.WaitGroup
}

// Close waits for in-flight OTP deliveries and drains the audit buffer.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.inflight.Wait()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByFlow splits AuditDropped by flow: signup, reset, signin
// and other. Flows without drops are omitted.
func (e *Engine) AuditDroppedByFlow() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByFlow()
}

// MetricsSnapshot returns the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.index == nil || e.issuer == nil || e.directory == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}

/*
====================================
ERROR MAPPING
====================================
*/

func storageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	default:
		return withCause(ErrSessionStoreFailure, err)
	}
}

func directoryErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, directory.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, directory.ErrDuplicate):
		return ErrAccountExists
	default:
		return withCause(ErrDirectoryUnavailable, err)
	}
}

func tokenErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenTypeMismatch):
		return ErrTokenTypeMismatch
	default:
		return ErrTokenMalformed
	}
}

/*
====================================
SHARED FLOW HELPERS
====================================
*/

func (e *Engine) allow(ctx context.Context, action rate.Action, rule RateRule, ident string) error {
	if !e.config.RateLimit.Enabled || e.limiter == nil {
		return nil
	}
	d := e.limiter.Allow(ctx, rate.Key{
		Action:     action,
		IP:         clientIPFromContext(ctx),
		Identifier: ident,
	}, rate.Rule{Limit: rule.Limit, Window: rule.Window})
	if d.FailedOpen {
		e.metricInc(MetricRateLimitFailOpen)
	}
	if !d.Allowed {
		e.emitRateLimit(ctx, string(action), d.RetryAfter)
		return tooManyRequests(ErrRateLimited, d.RetryAfter)
	}
	return nil
}

// resetLimit clears a counter after the action succeeded, so a user who
// eventually got it right is not locked out by earlier mistakes.
func (e *Engine) resetLimit(ctx context.Context, action rate.Action, ident string) {
	if !e.config.RateLimit.Enabled || e.limiter == nil {
		return
	}
	key := rate.Key{Action: action, IP: clientIPFromContext(ctx), Identifier: ident}
	if err := e.limiter.Reset(ctx, key); err != nil {
		e.logger.Warn().Err(err).Str("action", string(action)).Msg("rate limit reset failed")
	}
}

func mintSessionID() (string, error) {
	id, err := internal.MintSessionID()
	if err != nil {
		return "", withCause(ErrSessionStoreFailure, err)
	}
	return id, nil
}

// newGrant draws a fresh code. The plaintext is returned only so it can be
// handed to the notifier.
func (e *Engine) newGrant() (string, session.OTPGrant, error) {
	code, err := otp.Generate(e.config.OTP.Length)
	if err != nil {
		return "", session.OTPGrant{}, err
	}
	return code, session.OTPGrant{
		Hash:      otp.Hash(code, e.otpSecret),
		ExpiresAt: e.clock().Add(e.config.OTP.TTL),
	}, nil
}

func (e *Engine) flowTTL(kind session.Kind) time.Duration {
	if kind == session.KindResetPassword {
		return e.config.Session.ResetTTL
	}
	return e.config.Session.SignupTTL
}

func (e *Engine) resendPolicy() session.ResendPolicy {
	return session.ResendPolicy{
		MaxResends: e.config.OTP.MaxResends,
		Window:     e.config.OTP.ResendWindow,
	}
}

// loadSession fetches a session and checks it belongs to kind.
func (e *Engine) loadSession(ctx context.Context, sessionID string, kind session.Kind) (*session.Session, error) {
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		// never minted here, so it cannot exist
		return nil, ErrSessionNotFound
	}
	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, storageErr(err)
	}
	if sess.Type != kind {
		return nil, ErrWrongFlow
	}
	return sess, nil
}

// resolveFlow finds the live session of an OTP flow. A session id takes
// precedence and must resolve. Otherwise the identifier index is consulted;
// a miss there returns a nil session and no error so the caller can decide
// whether a cold start is allowed. The normalized identifier is returned
// for rate limiting and cold starts.
func (e *Engine) resolveFlow(ctx context.Context, kind session.Kind, in ResumeInput) (*session.Session, string, error) {
	if err := in.validate(); err != nil {
		return nil, "", withCause(ErrInvalidIdentity, err)
	}
	if in.SessionID != "" {
		sess, err := e.loadSession(ctx, in.SessionID, kind)
		return sess, in.SessionID, err
	}

	ident, err := e.idents.Normalize(in.Identifier)
	if err != nil {
		return nil, "", withCause(ErrInvalidIdentity, err)
	}
	sid, err := e.index.Resolve(ctx, kind.Family(), ident)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ident, nil
	}
	if err != nil {
		return nil, ident, storageErr(err)
	}
	sess, err := e.loadSession(ctx, sid, kind)
	if errors.Is(err, ErrSessionNotFound) {
		// stale index entry; the record already expired
		return nil, ident, nil
	}
	return sess, ident, err
}

// normalizeIdentity canonicalizes every supplied identifier.
func (e *Engine) normalizeIdentity(email, username, phone string) (session.Identity, error) {
	var id session.Identity
	var err error
	if email != "" {
		if id.Email, err = e.idents.Email(email); err != nil {
			return id, withCause(ErrInvalidIdentity, err)
		}
	}
	if username != "" {
		if id.Username, err = e.idents.Username(username); err != nil {
			return id, withCause(ErrInvalidIdentity, err)
		}
	}
	if phone != "" {
		if id.PhoneNumber, err = e.idents.Phone(phone); err != nil {
			return id, withCause(ErrInvalidIdentity, err)
		}
	}
	if err := id.Validate(); err != nil {
		return id, withCause(ErrInvalidIdentity, err)
	}
	return id, nil
}

func identityFromRecord(rec *directory.UserRecord) session.Identity {
	return session.Identity{
		Email:       rec.Email,
		Username:    rec.Username,
		PhoneNumber: rec.PhoneNumber,
		UserID:      rec.ID,
	}
}

// identityForIdentifier builds a snapshot holding a single identifier in
// the field matching its shape.
func (e *Engine) identityForIdentifier(raw string) (session.Identity, error) {
	kind, ident, err := e.idents.Classify(raw)
	if err != nil {
		return session.Identity{}, withCause(ErrInvalidIdentity, err)
	}
	switch kind {
	case identifier.KindEmail:
		return session.Identity{Email: ident}, nil
	case identifier.KindPhone:
		return session.Identity{PhoneNumber: ident}, nil
	default:
		return session.Identity{Username: ident}, nil
	}
}

func (e *Engine) flowLogger(flow string, sess *session.Session) *zerolog.Logger {
	ctx := e.logger.With().Str("flow", flow)
	if sess != nil {
		ctx = ctx.Str("session_id", sess.ID)
		if sess.UserID != "" {
			ctx = ctx.Str("user_id", sess.UserID)
		}
	}
	l := ctx.Logger()
	return &l
}

/*
====================================
OTP DELIVERY
====================================
*/

// otpMessage picks the delivery channel for sess: email when the snapshot
// has one, SMS otherwise.
func otpMessage(sess *session.Session, code string) (OTPMessage, error) {
	msg := OTPMessage{
		Code:      code,
		Kind:      sess.Type,
		SessionID: sess.ID,
		UserID:    sess.UserID,
		ExpiresAt: time.UnixMilli(sess.OTPExpiresAt),
	}
	switch {
	case sess.Email != "":
		msg.Channel, msg.Destination = ChannelEmail, sess.Email
	case sess.PhoneNumber != "":
		msg.Channel, msg.Destination = ChannelSMS, sess.PhoneNumber
	default:
		return msg, ErrNotificationNoChannel
	}
	return msg, nil
}

// dispatchOTP hands the code to the notifier without blocking the flow.
// The send runs on a context detached from the caller's cancellation and
// bounded by Notify.Timeout; a failure is logged and counted only.
func (e *Engine) dispatchOTP(ctx context.Context, flow string, sess *session.Session, code string) {
	if e.notifier == nil {
		return
	}
	log := e.flowLogger(flow, sess)

	msg, err := otpMessage(sess, code)
	if err != nil {
		e.metricInc(MetricNotifyFailure)
		log.Warn().Err(err).Msg("otp not delivered")
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Notify.Timeout)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer cancel()
		if err := e.notifier.SendOTP(sendCtx, msg); err != nil {
			e.metricInc(MetricNotifyFailure)
			log.Warn().Err(err).Str("channel", string(msg.Channel)).Msg("otp delivery failed")
		}
	}()
}
