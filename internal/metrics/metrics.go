package metrics

import "sync/atomic"

// ID names one counter. The set is fixed at compile time so counters
// can live in a flat array with no map lookups on the hot path.
type ID uint16

const (
	LoginSuccess ID = iota
	LoginFailure
	LoginLockedOut
	LoginSecondFactorRequired
	SecondFactorSuccess
	SecondFactorFailure
	BackupCodeUsed
	BackupCodeFailure
	RegisterSuccess
	RegisterDuplicate
	RefreshSuccess
	RefreshFailure
	RefreshReplayDetected
	Logout
	LogoutAll
	PasswordChanged
	PasswordResetRequested
	PasswordResetCompleted
	EmailVerificationRequested
	EmailVerified
	TOTPEnabled
	TOTPDisabled
	BackupCodesRegenerated
	OAuthBegin
	OAuthSuccess
	OAuthFailure
	OAuthStateRejected
	idCount
)

var names = [idCount]string{
	LoginSuccess:               "login_success",
	LoginFailure:               "login_failure",
	LoginLockedOut:             "login_locked_out",
	LoginSecondFactorRequired:  "login_second_factor_required",
	SecondFactorSuccess:        "second_factor_success",
	SecondFactorFailure:        "second_factor_failure",
	BackupCodeUsed:             "backup_code_used",
	BackupCodeFailure:          "backup_code_failure",
	RegisterSuccess:            "register_success",
	RegisterDuplicate:          "register_duplicate",
	RefreshSuccess:             "refresh_success",
	RefreshFailure:             "refresh_failure",
	RefreshReplayDetected:      "refresh_replay_detected",
	Logout:                     "logout",
	LogoutAll:                  "logout_all",
	PasswordChanged:            "password_changed",
	PasswordResetRequested:     "password_reset_requested",
	PasswordResetCompleted:     "password_reset_completed",
	EmailVerificationRequested: "email_verification_requested",
	EmailVerified:              "email_verified",
	TOTPEnabled:                "totp_enabled",
	TOTPDisabled:               "totp_disabled",
	BackupCodesRegenerated:     "backup_codes_regenerated",
	OAuthBegin:                 "oauth_begin",
	OAuthSuccess:               "oauth_success",
	OAuthFailure:               "oauth_failure",
	OAuthStateRejected:         "oauth_state_rejected",
}

// Name returns the stable string form of id, for exporters and logs.
func (id ID) Name() string {
	if id >= idCount {
		return "unknown"
	}
	return names[id]
}

const cacheLineSize = 64

// Counter padding keeps adjacent hot counters off the same cache line.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Registry is a fixed set of atomic counters. A nil *Registry is valid
// and counts nothing, so call sites never branch on whether metrics are
// enabled.
type Registry struct {
	counters [idCount]paddedCounter
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Inc adds one to the counter.
func (r *Registry) Inc(id ID) {
	if r == nil || id >= idCount {
		return
	}
	atomic.AddUint64(&r.counters[id].value, 1)
}

// Value reads one counter.
func (r *Registry) Value(id ID) uint64 {
	if r == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&r.counters[id].value)
}

// Snapshot copies every counter, keyed by stable name. Each counter is
// read atomically; the set as a whole is not a consistent cut, which is
// fine for monitoring.
func (r *Registry) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, int(idCount))
	if r == nil {
		return out
	}
	for id := ID(0); id < idCount; id++ {
		out[id.Name()] = atomic.LoadUint64(&r.counters[id].value)
	}
	return out
}
