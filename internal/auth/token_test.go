package auth

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "unit-test-signing-secret-0123456789"

func testCodec(t *testing.T, now func() time.Time) *Codec {
	t.Helper()
	opts := []CodecOption{}
	if now != nil {
		opts = append(opts, WithCodecClock(now))
	}
	codec, err := NewCodec(testSecret, 15*time.Minute, 7*24*time.Hour, opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func TestMintAndVerifyAccess(t *testing.T) {
	codec := testCodec(t, nil)

	token, exp, err := codec.MintAccess("user-1")
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiry, got %v", exp)
	}

	subject, err := codec.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("unexpected subject: %s", subject)
	}
}

func TestMintAndVerifyRefresh(t *testing.T) {
	codec := testCodec(t, nil)

	token, rotationID, _, err := codec.MintRefresh("user-1")
	if err != nil {
		t.Fatalf("MintRefresh: %v", err)
	}
	if rotationID == "" {
		t.Fatal("expected rotation id")
	}

	subject, gotRotation, err := codec.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if subject != "user-1" || gotRotation != rotationID {
		t.Fatalf("unexpected claims: subject=%s rotation=%s", subject, gotRotation)
	}

	// Every mint gets a fresh nonce.
	token2, rotation2, _, err := codec.MintRefresh("user-1")
	if err != nil {
		t.Fatalf("MintRefresh: %v", err)
	}
	if token2 == token || rotation2 == rotationID {
		t.Fatal("expected distinct refresh tokens per mint")
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	codec := testCodec(t, nil)

	access, _, err := codec.MintAccess("user-1")
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}
	refresh, _, _, err := codec.MintRefresh("user-1")
	if err != nil {
		t.Fatalf("MintRefresh: %v", err)
	}

	if _, _, err := codec.VerifyRefresh(access); err != ErrInvalidToken {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := codec.VerifyAccess(refresh); err != ErrInvalidToken {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	clock := time.Now().UTC()
	codec := testCodec(t, func() time.Time { return clock })

	token, _, err := codec.MintAccess("user-1")
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}

	// Still valid just before expiry.
	clock = clock.Add(15*time.Minute - time.Second)
	if _, err := codec.VerifyAccess(token); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}

	clock = clock.Add(2 * time.Second)
	if _, err := codec.VerifyAccess(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	codec := testCodec(t, nil)

	token, _, err := codec.MintAccess("user-1")
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := codec.VerifyAccess(tampered); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if _, err := codec.VerifyAccess("not-a-jwt"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
	if _, err := codec.VerifyAccess(""); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	codec := testCodec(t, nil)
	other, err := NewCodec("another-secret-another-secret", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, _, err := other.MintAccess("user-1")
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}
	if _, err := codec.VerifyAccess(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestFingerprintIsStableAndOpaque(t *testing.T) {
	token := "some.refresh.token"
	fp := Fingerprint(token)
	if fp != Fingerprint(token) {
		t.Fatal("fingerprint not deterministic")
	}
	if fp == token {
		t.Fatal("fingerprint must not echo the token")
	}
	if len(fp) != 64 {
		t.Fatalf("expected sha256 hex digest, got %d chars", len(fp))
	}
	if Fingerprint("other") == fp {
		t.Fatal("distinct tokens must not collide in tests")
	}
}
