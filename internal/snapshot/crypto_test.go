package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "larder.db")
	enc := filepath.Join(dir, "larder.db.enc")
	dec := filepath.Join(dir, "larder-restored.db")

	plaintext := []byte("SQLite format 3\x00 pretend database contents")
	if err := os.WriteFile(src, plaintext, 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if err := EncryptFile(src, enc, "correct horse", salt); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	encData, err := os.ReadFile(enc)
	if err != nil {
		t.Fatalf("read encrypted: %v", err)
	}
	if bytes.Contains(encData, []byte("pretend database")) {
		t.Fatal("ciphertext contains plaintext")
	}
	if !bytes.Equal(encData[:saltSize], salt) {
		t.Fatal("salt not prepended")
	}

	if err := DecryptFile(enc, dec, "correct horse"); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	got, err := os.ReadFile(dec)
	if err != nil {
		t.Fatalf("read decrypted: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("round trip mismatch")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data")
	enc := filepath.Join(dir, "data.enc")

	if err := os.WriteFile(src, []byte("secret"), 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if err := EncryptFile(src, enc, "right", salt); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if err := DecryptFile(enc, filepath.Join(dir, "out"), "wrong"); err == nil {
		t.Fatal("expected decryption failure with wrong passphrase")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1 := DeriveKey("pass", salt)
	k2 := DeriveKey("pass", salt)
	if !bytes.Equal(k1, k2) {
		t.Fatal("same passphrase and salt must derive the same key")
	}
	if len(k1) != keySize {
		t.Fatalf("key length = %d, want %d", len(k1), keySize)
	}
	if bytes.Equal(k1, DeriveKey("other", salt)) {
		t.Fatal("different passphrases must derive different keys")
	}
}

func TestDecryptTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	enc := filepath.Join(dir, "short.enc")
	if err := os.WriteFile(enc, []byte("tiny"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := DecryptFile(enc, filepath.Join(dir, "out"), "pass"); err == nil {
		t.Fatal("expected error for truncated file")
	}
}
