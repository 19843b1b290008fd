package push

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/larderapp/larder/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	if pub == "" {
		t.Error("expected non-empty public key")
	}
	if priv == "" {
		t.Error("expected non-empty private key")
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	// Generate again, keys should differ
	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestConfigured(t *testing.T) {
	if NewService("", "", "admin@example.com").Configured() {
		t.Error("service without keys should not report configured")
	}
	if !NewService("pub", "priv", "admin@example.com").Configured() {
		t.Error("service with keys should report configured")
	}
}

func TestInvitePayload(t *testing.T) {
	p := InvitePayload("My Kitchen")
	if !strings.Contains(p.Body, "My Kitchen") {
		t.Errorf("body should name the household: %q", p.Body)
	}
	if p.Tag != "invite" {
		t.Errorf("tag = %q, want invite", p.Tag)
	}
}

func TestDowngradePayload(t *testing.T) {
	n := &model.DowngradeNotice{
		HouseholdID:         7,
		HouseholdName:       "My Kitchen",
		MembersBefore:       8,
		MembersAfter:        5,
		MembersMadeInactive: 3,
	}

	p := DowngradePayload(n)
	if !strings.Contains(p.Body, "My Kitchen") {
		t.Errorf("body should name the household: %q", p.Body)
	}
	if !strings.Contains(p.Body, "5 of 8") {
		t.Errorf("body should state the member counts: %q", p.Body)
	}
	if p.Tag != "downgrade-7" {
		t.Errorf("tag = %q, want downgrade-7", p.Tag)
	}
}
