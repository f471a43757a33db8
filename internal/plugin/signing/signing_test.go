package signing

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateKeyPair(t *testing.T) {
	publicKey, privateKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		t.Errorf("public key size: expected %d, got %d", ed25519.PublicKeySize, len(publicKey))
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		t.Errorf("private key size: expected %d, got %d", ed25519.PrivateKeySize, len(privateKey))
	}
}

func writeEntry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Shop.so")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	return path
}

func TestSignAndVerify(t *testing.T) {
	path := writeEntry(t, "shared object bytes")
	publicKey, privateKey, _ := GenerateKeyPair()
	otherKey, _, _ := GenerateKeyPair()

	sigPath := SignaturePath(path)
	if sigPath != path+".sig" {
		t.Fatalf("unexpected signature path %s", sigPath)
	}
	if err := SignFile(path, sigPath, privateKey); err != nil {
		t.Fatalf("SignFile: %v", err)
	}

	if err := VerifyFile(path, sigPath, []ed25519.PublicKey{otherKey, publicKey}); err != nil {
		t.Errorf("expected valid signature, got %v", err)
	}
	if err := VerifyFile(path, sigPath, []ed25519.PublicKey{otherKey}); !errors.Is(err, ErrUntrusted) {
		t.Errorf("expected ErrUntrusted, got %v", err)
	}
	if err := VerifyFile(path, sigPath, nil); !errors.Is(err, ErrUntrusted) {
		t.Errorf("expected ErrUntrusted without keys, got %v", err)
	}

	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyFile(path, sigPath, []ed25519.PublicKey{publicKey}); !errors.Is(err, ErrUntrusted) {
		t.Errorf("tampered file verified: %v", err)
	}
}

func TestVerifyBadSignatureFiles(t *testing.T) {
	path := writeEntry(t, "bytes")
	publicKey, _, _ := GenerateKeyPair()
	sigPath := SignaturePath(path)

	if err := VerifyFile(path, sigPath, []ed25519.PublicKey{publicKey}); err == nil || !strings.Contains(err.Error(), "read signature") {
		t.Errorf("missing signature: got %v", err)
	}

	os.WriteFile(sigPath, []byte("not hex"), 0o644)
	if err := VerifyFile(path, sigPath, []ed25519.PublicKey{publicKey}); err == nil || !strings.Contains(err.Error(), "invalid signature format") {
		t.Errorf("bad hex: got %v", err)
	}

	os.WriteFile(sigPath, []byte("abcd"), 0o644)
	if err := VerifyFile(path, sigPath, []ed25519.PublicKey{publicKey}); err == nil || !strings.Contains(err.Error(), "invalid signature length") {
		t.Errorf("short signature: got %v", err)
	}
}

func TestParsePublicKeys(t *testing.T) {
	publicKey, _, _ := GenerateKeyPair()

	keys, err := ParsePublicKeys([]string{" " + hex.EncodeToString(publicKey) + "\n"})
	if err != nil {
		t.Fatalf("ParsePublicKeys: %v", err)
	}
	if len(keys) != 1 || !keys[0].Equal(publicKey) {
		t.Errorf("round trip mismatch")
	}

	if _, err := ParsePublicKeys([]string{"zz"}); err == nil {
		t.Error("expected error for bad hex")
	}
	if _, err := ParsePublicKeys([]string{"abcd"}); err == nil {
		t.Error("expected error for short key")
	}
}

func TestPrivateKeyFile(t *testing.T) {
	_, privateKey, _ := GenerateKeyPair()
	path := filepath.Join(t.TempDir(), "signing.key")

	if err := WritePrivateKey(path, privateKey); err != nil {
		t.Fatalf("WritePrivateKey: %v", err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode %v, want 0600", info.Mode().Perm())
	}

	loaded, err := ReadPrivateKey(path)
	if err != nil {
		t.Fatalf("ReadPrivateKey: %v", err)
	}
	if !loaded.Equal(privateKey) {
		t.Error("loaded key differs")
	}
}
