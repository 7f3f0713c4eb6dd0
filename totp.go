package authcore

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/relaychat/authcore/internal/secrets"
)

const (
	totpSecretBytes = 20
	totpDigits      = 6
	totpPeriod      = 30 * time.Second
)

// totpManager implements RFC 6238 time-based codes over HMAC-SHA1, the
// only algorithm the mainstream authenticator apps agree on.
type totpManager struct {
	issuer string
	window int // accepted steps either side of now
}

func newTOTPManager(issuer string, window int) *totpManager {
	if window < 0 {
		window = 1
	}
	return &totpManager{issuer: issuer, window: window}
}

// GenerateSecret returns a fresh 160-bit shared secret as raw bytes and
// in the unpadded base32 form authenticator apps import.
func (m *totpManager) GenerateSecret() ([]byte, string, error) {
	raw, err := secrets.RandomBytes(totpSecretBytes)
	if err != nil {
		return nil, "", err
	}
	return raw, secrets.EncodeBase32(raw), nil
}

// ProvisionURI builds the otpauth:// URI encoded into the setup QR code.
func (m *totpManager) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(m.issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", m.issuer)
	v.Set("period", strconv.Itoa(int(totpPeriod.Seconds())))
	v.Set("digits", strconv.Itoa(totpDigits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// GenerateCode returns the 6-digit code for secret at the given instant.
func (m *totpManager) GenerateCode(secret []byte, now time.Time) string {
	return hotpCode(secret, now.Unix()/int64(totpPeriod.Seconds()))
}

// VerifyCode checks code against the current time step and ±window
// adjacent steps. All candidate comparisons run to completion so timing
// does not reveal which step, if any, matched.
func (m *totpManager) VerifyCode(secret []byte, code string, now time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != totpDigits || !isDigits(trimmed) {
		return false
	}
	if len(secret) == 0 {
		return false
	}

	base := now.Unix() / int64(totpPeriod.Seconds())
	matched := false
	for step := -m.window; step <= m.window; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		if secrets.EqualString(hotpCode(secret, counter), trimmed) {
			matched = true
		}
	}
	return matched
}

// hotpCode is RFC 4226 dynamic truncation: the low nibble of the final
// MAC byte picks a 4-byte window, the sign bit is masked, and the value
// reduced modulo 10^digits.
func hotpCode(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < totpDigits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", totpDigits, bin%mod)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

const (
	backupCodeCount  = 10
	backupCodeLength = 8

	// Uppercase-only so canonicalization can safely fold user input.
	backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// generateBackupCodes returns count display-formatted recovery codes and
// the hex SHA-256 hashes of their canonical forms. Only the hashes are
// ever persisted; the display forms are shown once and discarded.
func generateBackupCodes(count int) (display, hashes []string, err error) {
	if count <= 0 {
		count = backupCodeCount
	}

	display = make([]string, 0, count)
	hashes = make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := secrets.RandomStringFrom(backupCodeAlphabet, backupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		display = append(display, formatBackupCode(code))
		hashes = append(hashes, hashBackupCode(code))
	}
	return display, hashes, nil
}

// formatBackupCode renders an 8-character code as XXXX-XXXX.
func formatBackupCode(code string) string {
	if len(code) != backupCodeLength {
		return code
	}
	return code[:4] + "-" + code[4:]
}

// canonicalBackupCode folds user input back to the stored form: strip
// separators and whitespace, uppercase.
func canonicalBackupCode(input string) string {
	var b strings.Builder
	b.Grow(backupCodeLength)
	for _, r := range strings.ToUpper(input) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hashBackupCode(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return secrets.EncodeHex(sum[:])
}

// matchBackupCode scans hashes for the given user input and returns the
// index of the matching entry. The scan always visits every entry so a
// hit and a miss cost the same.
func matchBackupCode(input string, hashes []string) (int, bool) {
	want := hashBackupCode(canonicalBackupCode(input))

	matchIdx, found := -1, false
	for i, h := range hashes {
		if secrets.EqualString(want, h) {
			matchIdx, found = i, true
		}
	}
	return matchIdx, found
}
