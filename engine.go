package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relaychat/authcore/internal/audit"
	"github.com/relaychat/authcore/internal/limiters"
	"github.com/relaychat/authcore/internal/metrics"
	"github.com/relaychat/authcore/internal/stores"
	"github.com/relaychat/authcore/oauth"
	"github.com/relaychat/authcore/password"
	"github.com/relaychat/authcore/session"
	"github.com/relaychat/authcore/token"
)

// Engine is the authentication core. Build one through the Builder; all
// methods are safe for concurrent use.
type Engine struct {
	config   Config
	accounts AccountStore
	mailer   Mailer

	hasher   *password.Hasher
	policy   password.Policy
	tokens   *token.Manager
	sessions *session.Store
	guard    *limiters.LoginGuard
	totp     *totpManager

	secondFactorLimiter *limiters.AttemptLimiter
	tickets             *stores.PendingStore // pending 2FA login tickets
	oauthStates         *stores.PendingStore
	verifyTokens        *stores.PendingStore // email verification
	resetTokens         *stores.PendingStore // password reset
	totpSetups          *stores.TOTPSetupStore

	providers map[string]oauth.Provider

	audit   *audit.Dispatcher
	metrics *metrics.Registry
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

func (e *Engine) metricInc(id metrics.ID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// MetricsSnapshot copies every counter, keyed by stable name.
func (e *Engine) MetricsSnapshot() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.metrics.Snapshot()
}

// VerifyAccess checks an access token and returns the account id it was
// issued for. This is the per-request hot path: signature and expiry
// only, no store round-trip.
func (e *Engine) VerifyAccess(signed string) (string, error) {
	if e == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}
	claims, err := e.tokens.VerifyAccess(signed)
	if err != nil {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

// Refresh rotates a refresh token: verify signature, validate against
// the session store, mint a new pair, delete the old session row, and
// create the new one. A token that fails any check leaves no mutation
// behind; a token that was already rotated fails validation.
func (e *Engine) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	if e == nil || e.tokens == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		e.metricInc(metrics.RefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, "", false, ErrRefreshInvalid)
		return nil, ErrRefreshInvalid
	}
	accountID := claims.Subject

	if _, err := e.sessions.Validate(ctx, accountID, claims.ID, rawRefresh); err != nil {
		switch {
		case errors.Is(err, session.ErrHashMismatch):
			// The session row exists but holds a different token hash:
			// someone is replaying a rotated-away refresh token.
			e.metricInc(metrics.RefreshReplayDetected)
			e.emitAudit(ctx, auditEventRefreshReplay, accountID, false, ErrRefreshInvalid)
			return nil, ErrRefreshInvalid
		case errors.Is(err, session.ErrNotFound):
			e.metricInc(metrics.RefreshFailure)
			e.emitAudit(ctx, auditEventRefreshFailure, accountID, false, ErrRefreshInvalid)
			return nil, ErrRefreshInvalid
		default:
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	pair, newSessionID, err := e.mintPair(accountID)
	if err != nil {
		return nil, err
	}

	if err := e.sessions.Delete(ctx, accountID, claims.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := e.sessions.Create(ctx, accountID, newSessionID, pair.RefreshToken, e.config.Token.RefreshTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.RefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, accountID, true, nil)
	return pair, nil
}

// Logout deletes the single session behind the presented refresh token.
func (e *Engine) Logout(ctx context.Context, rawRefresh string) error {
	if e == nil || e.tokens == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return ErrRefreshInvalid
	}
	if err := e.sessions.Delete(ctx, claims.Subject, claims.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.Logout)
	e.emitAudit(ctx, auditEventLogout, claims.Subject, true, nil)
	return nil
}

// LogoutAll deletes every session for an account, unconditionally.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.DeleteAllForAccount(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.LogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, accountID, true, nil)
	return nil
}

// ActiveSessionIDs lists the live session ids for an account.
func (e *Engine) ActiveSessionIDs(ctx context.Context, accountID string) ([]string, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	ids, err := e.sessions.ActiveSessionIDs(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return ids, nil
}

// mintPair issues a fresh access/refresh pair without touching the
// session store; the caller decides how the session row changes.
func (e *Engine) mintPair(accountID string) (*TokenPair, string, error) {
	access, err := e.tokens.IssueAccess(accountID)
	if err != nil {
		return nil, "", err
	}
	refresh, sessionID, err := e.tokens.IssueRefresh(accountID)
	if err != nil {
		return nil, "", err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.config.Token.AccessTTL / time.Second),
	}, sessionID, nil
}

// grantSession is the single place a session becomes active, shared by
// password login, 2FA confirmation, registration, and OAuth.
func (e *Engine) grantSession(ctx context.Context, account *Account) (*LoginResult, error) {
	pair, sessionID, err := e.mintPair(account.ID)
	if err != nil {
		return nil, err
	}
	if _, err := e.sessions.Create(ctx, account.ID, sessionID, pair.RefreshToken, e.config.Token.RefreshTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &LoginResult{Tokens: pair, Account: account}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e *Engine) getAccount(ctx context.Context, accountID string) (*Account, error) {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return account, nil
}
