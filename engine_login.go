package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relaychat/authcore/internal/limiters"
	"github.com/relaychat/authcore/internal/metrics"
	"github.com/relaychat/authcore/internal/stores"
)

// hintThreshold is the highest attempts-remaining value that still gets
// reported to the caller. Above it the failure stays fully generic.
const hintThreshold = 3

// Login checks a password credential. The lockout guard runs before any
// hash work; an unknown email and a wrong password are reported
// identically. Accounts with 2FA enabled get a short-lived ticket
// instead of tokens.
func (e *Engine) Login(ctx context.Context, email, rawPassword string) (*LoginResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	origin := clientIPFromContext(ctx)

	status, err := e.guard.Check(ctx, email, origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if status.Locked {
		e.metricInc(metrics.LoginLockedOut)
		e.emitAudit(ctx, auditEventLoginLockedOut, "", false, ErrLockedOut)
		return nil, &LockoutError{RetryAfter: status.RetryAfter}
	}

	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// OAuth-only accounts have no password hash and Verify fails closed
	// on the empty stored form, so they fall through to the same failure.
	if account == nil || !e.hasher.Verify(rawPassword, account.PasswordHash) {
		return nil, e.recordLoginFailure(ctx, email, origin)
	}

	if err := e.guard.Clear(ctx, email, origin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if e.config.Account.RequireVerifiedEmail && !account.EmailVerified {
		return nil, ErrEmailUnverified
	}

	if account.TOTPEnabled {
		return e.issueSecondFactorTicket(ctx, account)
	}

	result, err := e.grantSession(ctx, account)
	if err != nil {
		return nil, err
	}
	e.metricInc(metrics.LoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, account.ID, true, nil)
	return result, nil
}

func (e *Engine) recordLoginFailure(ctx context.Context, email, origin string) error {
	result, err := e.guard.RecordFailure(ctx, email, origin)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.LoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, "", false, ErrInvalidCredentials)

	if result.ShouldLock {
		e.metricInc(metrics.LoginLockedOut)
		return &LockoutError{RetryAfter: e.config.Lockout.LockDuration}
	}

	remaining := -1
	if result.AttemptsRemaining <= hintThreshold {
		remaining = result.AttemptsRemaining
	}
	return &CredentialsError{AttemptsRemaining: remaining}
}

func (e *Engine) issueSecondFactorTicket(ctx context.Context, account *Account) (*LoginResult, error) {
	ticket, err := e.tickets.Create(ctx, account.ID, e.config.TOTP.TicketTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.LoginSecondFactorRequired)
	e.emitAudit(ctx, auditEventSecondFactorRequired, account.ID, true, nil)
	return &LoginResult{Requires2FA: true, Ticket: ticket, Account: account}, nil
}

// consumeTicket burns a pending 2FA ticket and loads its account. The
// ticket is single-use whatever happens next; a wrong code means the
// user re-authenticates with their password.
func (e *Engine) consumeTicket(ctx context.Context, ticket string) (*Account, error) {
	accountID, err := e.tickets.Consume(ctx, ticket)
	if err != nil {
		if errors.Is(err, stores.ErrPendingNotFound) {
			return nil, ErrTicketInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.secondFactorLimiter.Check(ctx, accountID); err != nil {
		if errors.Is(err, limiters.ErrAttemptsExceeded) {
			return nil, ErrSecondFactorRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.TOTPEnabled {
		return nil, ErrTOTPNotEnabled
	}
	return account, nil
}

// ConfirmLoginTOTP completes a 2FA login with a 6-digit code.
func (e *Engine) ConfirmLoginTOTP(ctx context.Context, ticket, code string) (*LoginResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.consumeTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}

	if !e.totp.VerifyCode(account.TOTPSecret, code, time.Now()) {
		_ = e.secondFactorLimiter.RecordFailure(ctx, account.ID)
		e.metricInc(metrics.SecondFactorFailure)
		e.emitAudit(ctx, auditEventSecondFactorFailure, account.ID, false, ErrSecondFactorInvalid)
		return nil, ErrSecondFactorInvalid
	}

	_ = e.secondFactorLimiter.Reset(ctx, account.ID)

	result, err := e.grantSession(ctx, account)
	if err != nil {
		return nil, err
	}
	e.metricInc(metrics.SecondFactorSuccess)
	e.emitAudit(ctx, auditEventSecondFactorSuccess, account.ID, true, nil)
	return result, nil
}

// ConfirmLoginBackupCode completes a 2FA login with a one-time recovery
// code. The matched hash is removed from the account; the set may
// shrink to empty without disabling 2FA.
func (e *Engine) ConfirmLoginBackupCode(ctx context.Context, ticket, code string) (*LoginResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.consumeTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}

	idx, ok := matchBackupCode(code, account.BackupCodeHashes)
	if !ok {
		_ = e.secondFactorLimiter.RecordFailure(ctx, account.ID)
		e.metricInc(metrics.BackupCodeFailure)
		e.emitAudit(ctx, auditEventBackupCodeFailed, account.ID, false, ErrBackupCodeInvalid)
		return nil, ErrBackupCodeInvalid
	}

	shrunk := make([]string, 0, len(account.BackupCodeHashes)-1)
	shrunk = append(shrunk, account.BackupCodeHashes[:idx]...)
	shrunk = append(shrunk, account.BackupCodeHashes[idx+1:]...)
	if err := e.accounts.ReplaceBackupCodes(ctx, account.ID, shrunk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	account.BackupCodeHashes = shrunk

	_ = e.secondFactorLimiter.Reset(ctx, account.ID)

	result, err := e.grantSession(ctx, account)
	if err != nil {
		return nil, err
	}
	e.metricInc(metrics.BackupCodeUsed)
	e.emitAudit(ctx, auditEventBackupCodeUsed, account.ID, true, nil)
	return result, nil
}
