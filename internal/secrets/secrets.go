package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Equal compares two byte slices in constant time. The length check is
// cheap and public; the body never early-returns on a mismatching byte.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// EqualString is Equal over strings.
func EqualString(a, b string) bool {
	return Equal([]byte(a), []byte(b))
}

// RandomBytes returns n cryptographically strong random bytes.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("invalid random length")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RandomString returns an n-character alphanumeric string suitable for
// opaque tokens and tickets.
func RandomString(n int) (string, error) {
	return RandomStringFrom(tokenAlphabet, n)
}

// RandomStringFrom returns an n-character string drawn uniformly from
// alphabet. Each character is sampled with rand.Int, so no modulo bias.
func RandomStringFrom(alphabet string, n int) (string, error) {
	if n <= 0 || len(alphabet) == 0 {
		return "", errors.New("invalid random length")
	}

	var b strings.Builder
	b.Grow(n)

	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx.Int64()])
	}

	return b.String(), nil
}

// EncodeHex returns the lowercase hex encoding of b.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeHex decodes a hex string produced by EncodeHex.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// EncodeBase32 returns the RFC 4648 base32 encoding of b without padding.
// Used for TOTP shared secrets.
func EncodeBase32(b []byte) string {
	return b32.EncodeToString(b)
}

// DecodeBase32 decodes a base32 string, tolerating lowercase input and
// stray padding from authenticator apps.
func DecodeBase32(s string) ([]byte, error) {
	return b32.DecodeString(strings.TrimRight(strings.ToUpper(s), "="))
}

// EncodeBase64URL returns the unpadded base64url encoding of b.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeBase64URL decodes an unpadded base64url string.
func DecodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
