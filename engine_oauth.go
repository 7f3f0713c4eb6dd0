package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaychat/authcore/internal/metrics"
	"github.com/relaychat/authcore/internal/stores"
	"github.com/relaychat/authcore/oauth"
)

// BeginOAuth starts an authorization-code flow: a single-use state
// token is stored with the post-login return URL, and the provider's
// authorization URL is returned for the redirect.
func (e *Engine) BeginOAuth(ctx context.Context, providerName, returnURL string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	provider, ok := e.providers[providerName]
	if !ok {
		return "", ErrOAuthProviderUnknown
	}

	state, err := e.oauthStates.Create(ctx, returnURL, e.config.OAuth.StateTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(metrics.OAuthBegin)
	e.emitAudit(ctx, auditEventOAuthBegin, "", true, nil)
	return provider.AuthCodeURL(state), nil
}

// CompleteOAuth handles the provider callback. The state token is
// consumed before any network call to the provider; a missing or
// replayed state aborts immediately. The reconciled account then goes
// through the same session path as a password login, including the 2FA
// ticket step when the account has it enabled.
func (e *Engine) CompleteOAuth(ctx context.Context, providerName, code, state string) (*OAuthResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	// A bad provider name must not burn the single-use state, so the
	// lookup comes before the consume.
	provider, ok := e.providers[providerName]
	if !ok {
		return nil, ErrOAuthProviderUnknown
	}

	returnURL, err := e.oauthStates.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, stores.ErrPendingNotFound) {
			e.metricInc(metrics.OAuthStateRejected)
			e.emitAudit(ctx, auditEventOAuthStateRejected, "", false, ErrOAuthStateInvalid)
			return nil, ErrOAuthStateInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Codes are single-use at the provider, so no retry on failure.
	providerToken, err := provider.Exchange(ctx, code)
	if err != nil {
		e.metricInc(metrics.OAuthFailure)
		e.emitAudit(ctx, auditEventOAuthFailure, "", false, ErrOAuthExchangeFailed)
		return nil, ErrOAuthExchangeFailed
	}
	profile, err := provider.FetchProfile(ctx, providerToken)
	if err != nil {
		e.metricInc(metrics.OAuthFailure)
		e.emitAudit(ctx, auditEventOAuthFailure, "", false, ErrOAuthExchangeFailed)
		return nil, ErrOAuthExchangeFailed
	}

	account, err := e.reconcileProfile(ctx, profile)
	if err != nil {
		e.metricInc(metrics.OAuthFailure)
		e.emitAudit(ctx, auditEventOAuthFailure, "", false, err)
		return nil, err
	}

	if account.TOTPEnabled {
		result, err := e.issueSecondFactorTicket(ctx, account)
		if err != nil {
			return nil, err
		}
		return &OAuthResult{LoginResult: *result, ReturnURL: returnURL}, nil
	}

	result, err := e.grantSession(ctx, account)
	if err != nil {
		return nil, err
	}
	e.metricInc(metrics.OAuthSuccess)
	e.emitAudit(ctx, auditEventOAuthSuccess, account.ID, true, nil)
	return &OAuthResult{LoginResult: *result, ReturnURL: returnURL}, nil
}

// reconcileProfile maps a provider profile onto a local account, in
// priority order: same provider identity, then same verified email
// (linking the provider onto the existing account), then a brand-new
// account. A profile without a verified email cannot be reconciled.
func (e *Engine) reconcileProfile(ctx context.Context, profile oauth.Profile) (*Account, error) {
	account, err := e.accounts.GetByProvider(ctx, profile.Provider, profile.Subject)
	if err == nil {
		if profile.DisplayName != account.DisplayName || profile.AvatarURL != account.AvatarURL {
			if err := e.accounts.UpdateProfile(ctx, account.ID, profile.DisplayName, profile.AvatarURL); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			account.DisplayName = profile.DisplayName
			account.AvatarURL = profile.AvatarURL
		}
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if profile.Email == "" || !profile.EmailVerified {
		return nil, ErrOAuthEmailUnavailable
	}
	email := normalizeEmail(profile.Email)

	// A verified provider email is accepted as proof of ownership of an
	// existing local account with the same address.
	account, err = e.accounts.GetByEmail(ctx, email)
	if err == nil {
		if err := e.accounts.LinkProvider(ctx, account.ID, profile.Provider, profile.Subject); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if !account.EmailVerified {
			if err := e.accounts.MarkEmailVerified(ctx, account.ID); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			account.EmailVerified = true
		}
		account.Provider = profile.Provider
		account.ProviderID = profile.Subject
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	account = &Account{
		ID:            uuid.NewString(),
		Email:         email,
		DisplayName:   profile.DisplayName,
		Provider:      profile.Provider,
		ProviderID:    profile.Subject,
		EmailVerified: true,
		Role:          "user",
		AvatarURL:     profile.AvatarURL,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return account, nil
}
