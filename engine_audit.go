package goIdentity

import (
	"context"
	"strconv"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/internal/audit"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginRateLimited         = "login_rate_limited"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshFailure           = "refresh_failure"
	auditEventRefreshReuseDetected     = "refresh_reuse_detected"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventAccountCreated           = "account_created"
	auditEventAccountStatusChange      = "account_status_change"
	auditEventLogoutSession            = "logout_session"
	auditEventLogoutAll                = "logout_all"
)

// emitAudit queues one event. The correlation id, client IP and user agent
// come from ctx. Audit delivery never fails the calling operation.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
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

	event := audit.Event{
		Timestamp:     e.now().UTC(),
		Type:          eventType,
		Outcome:       audit.OutcomeSuccess,
		CorrelationID: CorrelationIDFromContext(ctx),
		UserID:        userID,
		SessionID:     sessionID,
		IP:            clientIPFromContext(ctx),
		UserAgent:     userAgentFromContext(ctx),
		Metadata:      metadata,
	}
	if err != nil {
		event.Outcome = audit.OutcomeFailure
		event.Error = autherr.Code(err)
	}

	e.audit.Emit(ctx, event)
}

func itoa(n int) string { return strconv.Itoa(n) }
