package password

import (
	"errors"
	"strings"
)

// Policy is the acceptance rule applied to new passwords. It is enforced
// by the engine before hashing, never by the Hasher itself.
type Policy struct {
	MinLength int
	MaxLength int
	Denylist  []string
}

// DefaultPolicy returns the baseline policy: 8–128 characters, mixed
// case, at least one digit, and a denylist of extremely common passwords.
func DefaultPolicy() Policy {
	return Policy{
		MinLength: 8,
		MaxLength: 128,
		Denylist: []string{
			"password", "password1", "password123",
			"12345678", "123456789", "1234567890",
			"qwerty123", "letmein123", "iloveyou1",
			"admin123", "welcome1", "abc12345",
		},
	}
}

var (
	// ErrPolicyViolation is the umbrella sentinel for any policy failure.
	ErrPolicyViolation = errors.New("password policy violation")

	errTooShort    = errors.New("password too short")
	errTooLong     = errors.New("password too long")
	errNoLowercase = errors.New("password needs a lowercase letter")
	errNoUppercase = errors.New("password needs an uppercase letter")
	errNoDigit     = errors.New("password needs a digit")
	errDenylisted  = errors.New("password is too common")
)

// Validate checks candidate against the policy. The returned error wraps
// ErrPolicyViolation so callers match one sentinel.
func (p Policy) Validate(candidate string) error {
	if len(candidate) < p.MinLength {
		return errors.Join(ErrPolicyViolation, errTooShort)
	}
	if p.MaxLength > 0 && len(candidate) > p.MaxLength {
		return errors.Join(ErrPolicyViolation, errTooLong)
	}

	var hasLower, hasUpper, hasDigit bool
	for _, c := range candidate {
		switch {
		case 'a' <= c && c <= 'z':
			hasLower = true
		case 'A' <= c && c <= 'Z':
			hasUpper = true
		case '0' <= c && c <= '9':
			hasDigit = true
		}
	}
	if !hasLower {
		return errors.Join(ErrPolicyViolation, errNoLowercase)
	}
	if !hasUpper {
		return errors.Join(ErrPolicyViolation, errNoUppercase)
	}
	if !hasDigit {
		return errors.Join(ErrPolicyViolation, errNoDigit)
	}

	lowered := strings.ToLower(candidate)
	for _, banned := range p.Denylist {
		if lowered == banned {
			return errors.Join(ErrPolicyViolation, errDenylisted)
		}
	}

	return nil
}
