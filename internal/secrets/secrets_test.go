package secrets

import (
	"bytes"
	"strings"
	"testing"
)

func TestEqualMatches(t *testing.T) {
	if !Equal([]byte("abcd"), []byte("abcd")) {
		t.Fatal("expected equal slices to match")
	}
	if Equal([]byte("abcd"), []byte("abce")) {
		t.Fatal("expected last-byte mismatch to fail")
	}
	if Equal([]byte("xbcd"), []byte("abcd")) {
		t.Fatal("expected first-byte mismatch to fail")
	}
	if Equal([]byte("abc"), []byte("abcd")) {
		t.Fatal("expected length mismatch to fail")
	}
}

func TestRandomBytesLengthAndUniqueness(t *testing.T) {
	a, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	b, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	if len(a) != 32 || len(b) != 32 {
		t.Fatalf("unexpected lengths: %d %d", len(a), len(b))
	}
	if bytes.Equal(a, b) {
		t.Fatal("two random draws must not collide")
	}
}

func TestRandomStringAlphabet(t *testing.T) {
	s, err := RandomString(64)
	if err != nil {
		t.Fatalf("RandomString failed: %v", err)
	}
	if len(s) != 64 {
		t.Fatalf("expected 64 chars, got %d", len(s))
	}
	for _, c := range s {
		if !strings.ContainsRune(tokenAlphabet, c) {
			t.Fatalf("character %q outside token alphabet", c)
		}
	}
}

func TestRandomRejectsNonPositiveLength(t *testing.T) {
	if _, err := RandomBytes(0); err == nil {
		t.Fatal("expected error for zero length")
	}
	if _, err := RandomString(-1); err == nil {
		t.Fatal("expected error for negative length")
	}
}

func TestBase32RoundTripNoPadding(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef, 0x01}
	enc := EncodeBase32(raw)
	if strings.Contains(enc, "=") {
		t.Fatalf("encoding must not contain padding: %s", enc)
	}

	dec, err := DecodeBase32(enc)
	if err != nil {
		t.Fatalf("DecodeBase32 failed: %v", err)
	}
	if !bytes.Equal(raw, dec) {
		t.Fatal("base32 round trip mismatch")
	}

	// Authenticator apps sometimes hand back lowercase or padded secrets.
	dec, err = DecodeBase32(strings.ToLower(enc) + "==")
	if err != nil {
		t.Fatalf("DecodeBase32 lenient decode failed: %v", err)
	}
	if !bytes.Equal(raw, dec) {
		t.Fatal("lenient base32 round trip mismatch")
	}
}

func TestHexAndBase64URLRoundTrip(t *testing.T) {
	raw := []byte("binary\x00payload")

	dec, err := DecodeHex(EncodeHex(raw))
	if err != nil || !bytes.Equal(raw, dec) {
		t.Fatalf("hex round trip failed: %v", err)
	}

	dec, err = DecodeBase64URL(EncodeBase64URL(raw))
	if err != nil || !bytes.Equal(raw, dec) {
		t.Fatalf("base64url round trip failed: %v", err)
	}
}
