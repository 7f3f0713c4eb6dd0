package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relaychat/authcore/internal/metrics"
	"github.com/relaychat/authcore/internal/stores"
)

// BeginTOTPSetup generates a fresh secret and parks it in the pending
// setup store. Nothing on the account changes until ConfirmTOTPSetup;
// calling again replaces the pending secret.
func (e *Engine) BeginTOTPSetup(ctx context.Context, accountID string) (*TOTPSetup, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.totpSetups.Save(ctx, accountID, secret, e.config.TOTP.SetupTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.emitAudit(ctx, auditEventTOTPSetupStarted, accountID, true, nil)
	return &TOTPSetup{
		SecretBase32: secretBase32,
		ProvisionURI: e.totp.ProvisionURI(secretBase32, account.Email),
	}, nil
}

// VerifyTOTPSetup checks a code against the pending secret without
// enabling anything, so a UI can confirm the authenticator was added
// before the user commits.
func (e *Engine) VerifyTOTPSetup(ctx context.Context, accountID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	secret, err := e.pendingSetupSecret(ctx, accountID)
	if err != nil {
		return err
	}
	if !e.totp.VerifyCode(secret, code, time.Now()) {
		return ErrSecondFactorInvalid
	}
	return nil
}

// ConfirmTOTPSetup re-verifies the code, then commits secret, hashed
// backup codes, and the enabled flag in one AccountStore call and drops
// the pending record. The returned backup codes are shown once.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, accountID, code string) ([]string, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	secret, err := e.pendingSetupSecret(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !e.totp.VerifyCode(secret, code, time.Now()) {
		return nil, ErrSecondFactorInvalid
	}

	display, hashes, err := generateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, err
	}
	if err := e.accounts.EnableTOTP(ctx, accountID, secret, hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.totpSetups.Delete(ctx, accountID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.TOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPEnabled, accountID, true, nil)
	return display, nil
}

func (e *Engine) pendingSetupSecret(ctx context.Context, accountID string) ([]byte, error) {
	secret, err := e.totpSetups.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, stores.ErrPendingNotFound) {
			return nil, ErrTOTPSetupNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return secret, nil
}

// DisableTOTP turns 2FA off. It demands the current password AND a
// valid current code; the password check is skipped only for OAuth-only
// accounts that have none. Every session is revoked afterwards.
func (e *Engine) DisableTOTP(ctx context.Context, accountID, currentPassword, code string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TOTPEnabled {
		return ErrTOTPNotEnabled
	}

	if account.PasswordHash != "" && !e.hasher.Verify(currentPassword, account.PasswordHash) {
		return ErrInvalidCredentials
	}
	if !e.totp.VerifyCode(account.TOTPSecret, code, time.Now()) {
		return ErrSecondFactorInvalid
	}

	if err := e.accounts.DisableTOTP(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.sessions.DeleteAllForAccount(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.TOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, accountID, true, nil)
	return nil
}

// RegenerateBackupCodes replaces the whole backup code set. Requires a
// valid current TOTP code; returns the fresh codes, shown once.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.TOTPEnabled {
		return nil, ErrTOTPNotEnabled
	}
	if !e.totp.VerifyCode(account.TOTPSecret, code, time.Now()) {
		return nil, ErrSecondFactorInvalid
	}

	display, hashes, err := generateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, err
	}
	if err := e.accounts.ReplaceBackupCodes(ctx, accountID, hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.BackupCodesRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesRotated, accountID, true, nil)
	return display, nil
}
