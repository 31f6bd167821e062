package authsession

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignup             = "signup"
	auditEventOTPResent          = "otp_resent"
	auditEventSignupVerified     = "signup_verified"
	auditEventPasswordResetStart = "password_reset_request"
	auditEventPasswordReset      = "password_reset_confirm"
	auditEventOTPFailure         = "otp_failure"
	auditEventSignin             = "signin"
	auditEventRefresh            = "refresh"
	auditEventRotate             = "rotate"
	auditEventRotateReplay       = "rotate_replay"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutAll          = "logout_all"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// AuditErrorCode is the stable, secret-free error label put on audit events.
type AuditErrorCode string

const (
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrSessionInactive    AuditErrorCode = "session_inactive"
	auditErrWrongFlow          AuditErrorCode = "wrong_flow"
	auditErrInvalidOTP         AuditErrorCode = "invalid_otp"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrFederated          AuditErrorCode = "federated_account"
	auditErrOwnerMismatch      AuditErrorCode = "owner_mismatch"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	flow string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock().UTC(),
		EventType: eventType,
		Flow:      flow,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, action string, retryAfter time.Duration) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, "", false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"action":      action,
			"retry_after": retryAfter.String(),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSessionInactive):
		return auditErrSessionInactive
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrGone):
		return auditErrSessionNotFound
	case errors.Is(err, ErrWrongFlow):
		return auditErrWrongFlow
	case errors.Is(err, ErrFederatedAccount):
		return auditErrFederated
	case errors.Is(err, ErrInvalidIdentity),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrNotificationNoChannel):
		return auditErrInvalidInput
	case errors.Is(err, ErrInvalidOTP):
		return auditErrInvalidOTP
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrTokenTypeMismatch):
		return auditErrInvalidToken
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrSessionOwnerMismatch):
		return auditErrOwnerMismatch
	case errors.Is(err, ErrConflict):
		return auditErrDuplicate
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrTooManyRequests):
		return auditErrRateLimited
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
