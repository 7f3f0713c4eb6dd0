package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/relaychat/authcore/password"
)

var (
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrInvalidCredentials covers wrong password, unknown email, and
	// malformed stored hashes alike, so a caller cannot tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLockedOut          = errors.New("too many attempts, try again later")

	ErrRegistrationDisabled = errors.New("registration disabled")
	ErrAccountExists        = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrEmailUnverified      = errors.New("email address not verified")
	ErrPasswordReuse        = errors.New("new password must differ from the current one")

	ErrTokenInvalid   = errors.New("invalid or expired token")
	ErrRefreshInvalid = errors.New("invalid refresh token")

	ErrTicketInvalid           = errors.New("second factor session expired")
	ErrSecondFactorInvalid     = errors.New("invalid second factor code")
	ErrSecondFactorRateLimited = errors.New("second factor attempts exceeded")
	ErrTOTPNotEnabled          = errors.New("two-factor authentication not enabled")
	ErrTOTPAlreadyEnabled      = errors.New("two-factor authentication already enabled")
	ErrTOTPSetupNotFound       = errors.New("no pending two-factor setup")
	ErrBackupCodeInvalid       = errors.New("invalid backup code")

	ErrOAuthProviderUnknown  = errors.New("oauth provider not configured")
	ErrOAuthStateInvalid     = errors.New("oauth state invalid or expired")
	ErrOAuthExchangeFailed   = errors.New("oauth exchange failed")
	ErrOAuthEmailUnavailable = errors.New("oauth provider returned no verified email")

	ErrActionTokenInvalid = errors.New("token invalid or expired")

	// ErrBackendUnavailable wraps failures of the backing stores; the
	// HTTP layer maps it to 503, never to an auth failure.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
)

// ErrPasswordPolicy matches every policy violation reported at
// registration, password change, and reset.
var ErrPasswordPolicy = password.ErrPolicyViolation

// LockoutError carries the remaining lock duration for a Retry-After
// header. errors.Is(err, ErrLockedOut) matches it.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("locked out, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LockoutError) Is(target error) bool {
	return target == ErrLockedOut
}

// CredentialsError is the failed-login result. AttemptsRemaining is -1
// unless few enough attempts remain that a hint is warranted.
// errors.Is(err, ErrInvalidCredentials) matches it.
type CredentialsError struct {
	AttemptsRemaining int
}

func (e *CredentialsError) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *CredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}
