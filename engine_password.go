package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaychat/authcore/internal/metrics"
	"github.com/relaychat/authcore/internal/stores"
)

// ChangePassword replaces an account's password and force-logs-out
// every session. An OAuth-only account sets its first password with an
// empty current password; everyone else must prove the current one.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if account.PasswordHash != "" {
		if !e.hasher.Verify(currentPassword, account.PasswordHash) {
			return ErrInvalidCredentials
		}
		if e.hasher.Verify(newPassword, account.PasswordHash) {
			return ErrPasswordReuse
		}
	}

	if err := e.policy.Validate(newPassword); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// A changed password invalidates every session, including the one
	// that requested the change.
	if err := e.sessions.DeleteAllForAccount(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.PasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, accountID, true, nil)
	return nil
}

// RequestPasswordReset issues a reset token for the account behind
// email, if one exists. The outcome is identical either way, so the
// endpoint cannot be used to probe for accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if e.mailer == nil {
		return errors.New("mailer not configured")
	}

	account, err := e.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	resetToken, err := e.resetTokens.Create(ctx, account.ID, e.config.Account.ResetTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.mailer.SendPasswordReset(ctx, account.Email, account.DisplayName, resetToken); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.PasswordResetRequested)
	e.emitAudit(ctx, auditEventPasswordResetRequest, account.ID, true, nil)
	return nil
}

// ConfirmPasswordReset consumes a reset token, sets the new password,
// and force-logs-out every session. The token is single-use.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	// Policy first: a rejected password must not burn the token.
	if err := e.policy.Validate(newPassword); err != nil {
		return err
	}

	accountID, err := e.resetTokens.Consume(ctx, resetToken)
	if err != nil {
		if errors.Is(err, stores.ErrPendingNotFound) {
			return ErrActionTokenInvalid
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.sessions.DeleteAllForAccount(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.PasswordResetCompleted)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, accountID, true, nil)
	return nil
}
