package password

import (
	"crypto/sha256"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/relaychat/authcore/internal/secrets"
)

const (
	// MinIterations is the floor for the PBKDF2 work factor. Stored hashes
	// carry their own iteration count, so raising the default later keeps
	// old hashes verifiable.
	MinIterations = 300_000

	// DefaultIterations is the work factor applied to new hashes.
	DefaultIterations = 310_000

	saltLength = 32 // 256-bit salt
	keyLength  = 64 // 512-bit derived key
)

// Hasher derives and verifies salted PBKDF2-SHA256 password hashes.
// The stored form is self-describing: "iterations:saltHex:hashHex".
type Hasher struct {
	iterations int
}

// NewHasher returns a Hasher with the given work factor. Zero selects
// DefaultIterations; anything below MinIterations is rejected.
func NewHasher(iterations int) (*Hasher, error) {
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if iterations < MinIterations {
		return nil, errors.New("password iterations below minimum")
	}
	return &Hasher{iterations: iterations}, nil
}

// Hash derives a stored form for password using a fresh random salt.
func (h *Hasher) Hash(password string) (string, error) {
	salt, err := secrets.RandomBytes(saltLength)
	if err != nil {
		return "", err
	}

	key := pbkdf2.Key([]byte(password), salt, h.iterations, keyLength, sha256.New)

	var b strings.Builder
	b.WriteString(strconv.Itoa(h.iterations))
	b.WriteByte(':')
	b.WriteString(secrets.EncodeHex(salt))
	b.WriteByte(':')
	b.WriteString(secrets.EncodeHex(key))
	return b.String(), nil
}

// Verify recomputes the derivation described by stored and compares in
// constant time. A malformed stored form fails closed: the result is
// false, never an error or panic, so callers cannot distinguish a corrupt
// row from a wrong password.
func (h *Hasher) Verify(password, stored string) bool {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		return false
	}

	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations <= 0 {
		return false
	}
	salt, err := secrets.DecodeHex(parts[1])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := secrets.DecodeHex(parts[2])
	if err != nil || len(want) == 0 {
		return false
	}

	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return secrets.Equal(got, want)
}

// NeedsUpgrade reports whether stored was derived with a lower work
// factor than the hasher currently applies.
func (h *Hasher) NeedsUpgrade(stored string) bool {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		return false
	}
	iterations, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	return iterations < h.iterations
}
