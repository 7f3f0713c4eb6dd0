package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaychat/authcore/internal/metrics"
	"github.com/relaychat/authcore/internal/stores"
)

// Register creates a local password account. When email verification is
// mandatory the result carries no tokens; the caller gets a session
// only after VerifyEmail succeeds.
func (e *Engine) Register(ctx context.Context, email, rawPassword, displayName string) (*LoginResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}
	if e.config.Account.DisableRegistration {
		return nil, ErrRegistrationDisabled
	}

	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email address", ErrPasswordPolicy)
	}
	if err := e.policy.Validate(rawPassword); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(rawPassword)
	if err != nil {
		return nil, err
	}

	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         "user",
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(metrics.RegisterDuplicate)
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.RegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, account.ID, true, nil)

	if e.config.Account.RequireVerifiedEmail {
		if err := e.sendEmailVerification(ctx, account); err != nil {
			return nil, err
		}
		return &LoginResult{Account: account}, nil
	}
	return e.grantSession(ctx, account)
}

// RequestEmailVerification issues a fresh verification token for an
// unverified account and hands it to the mailer.
func (e *Engine) RequestEmailVerification(ctx context.Context, accountID string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	account, err := e.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.EmailVerified {
		return nil
	}
	return e.sendEmailVerification(ctx, account)
}

func (e *Engine) sendEmailVerification(ctx context.Context, account *Account) error {
	if e.mailer == nil {
		return errors.New("mailer not configured")
	}

	verifyToken, err := e.verifyTokens.Create(ctx, account.ID, e.config.Account.VerificationTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.mailer.SendEmailVerification(ctx, account.Email, account.DisplayName, verifyToken); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.EmailVerificationRequested)
	e.emitAudit(ctx, auditEventEmailVerifyRequest, account.ID, true, nil)
	return nil
}

// VerifyEmail consumes a verification token and marks the account
// verified. The token is single-use.
func (e *Engine) VerifyEmail(ctx context.Context, verifyToken string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	accountID, err := e.verifyTokens.Consume(ctx, verifyToken)
	if err != nil {
		if errors.Is(err, stores.ErrPendingNotFound) {
			return ErrActionTokenInvalid
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.accounts.MarkEmailVerified(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.EmailVerified)
	e.emitAudit(ctx, auditEventEmailVerified, accountID, true, nil)
	return nil
}
