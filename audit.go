package authcore

import (
	"context"
	"io"
	"time"

	"github.com/relaychat/authcore/internal/audit"
)

// Public audit surface. The implementation lives in internal/audit;
// these aliases let a host implement its own AuditSink or use one of
// the provided sinks without reaching into an internal package.
type (
	// AuditEvent is one security-relevant occurrence: a login outcome,
	// a token rotation, a lockout, a 2FA state change.
	AuditEvent = audit.Event

	// AuditSink receives dispatched events. Implementations must be
	// safe for concurrent use.
	AuditSink = audit.Sink

	// AuditConfig controls dispatcher buffering; see Config.Audit.
	AuditConfig = audit.Config

	// ChannelAuditSink forwards events into a buffered channel.
	ChannelAuditSink = audit.ChannelSink

	// JSONLinesAuditSink writes one JSON object per line.
	JSONLinesAuditSink = audit.JSONLinesSink

	// NoOpAuditSink discards every event.
	NoOpAuditSink = audit.NoOpSink
)

// NewChannelAuditSink returns a sink draining into a buffered channel.
func NewChannelAuditSink(buffer int) *ChannelAuditSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONLinesAuditSink returns a sink writing one JSON line per event.
func NewJSONLinesAuditSink(w io.Writer) *JSONLinesAuditSink {
	return audit.NewJSONLinesSink(w)
}

const (
	auditEventRegister             = "register"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginLockedOut       = "login_locked_out"
	auditEventSecondFactorRequired = "second_factor_required"
	auditEventSecondFactorSuccess  = "second_factor_success"
	auditEventSecondFactorFailure  = "second_factor_failure"
	auditEventBackupCodeUsed       = "backup_code_used"
	auditEventBackupCodeFailed     = "backup_code_failed"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventRefreshReplay        = "refresh_replay_detected"
	auditEventLogout               = "logout"
	auditEventLogoutAll            = "logout_all"
	auditEventPasswordChanged      = "password_changed"
	auditEventPasswordResetRequest = "password_reset_requested"
	auditEventPasswordResetConfirm = "password_reset_confirmed"
	auditEventEmailVerifyRequest   = "email_verification_requested"
	auditEventEmailVerified        = "email_verified"
	auditEventTOTPSetupStarted     = "totp_setup_started"
	auditEventTOTPEnabled          = "totp_enabled"
	auditEventTOTPDisabled         = "totp_disabled"
	auditEventBackupCodesRotated   = "backup_codes_regenerated"
	auditEventOAuthBegin           = "oauth_begin"
	auditEventOAuthSuccess         = "oauth_success"
	auditEventOAuthFailure         = "oauth_failure"
	auditEventOAuthStateRejected   = "oauth_state_rejected"
)

func (e *Engine) emitAudit(ctx context.Context, name, accountID string, success bool, failure error) {
	if e == nil || e.audit == nil {
		return
	}

	event := audit.Event{
		At:        time.Now().UTC(),
		Name:      name,
		AccountID: accountID,
		Origin:    clientIPFromContext(ctx),
		Success:   success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		event.Detail = map[string]string{"user_agent": ua}
	}

	e.audit.Emit(ctx, event)
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}
