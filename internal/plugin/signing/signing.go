// Package signing signs and verifies extension entry files with ed25519.
// A signature is the hex-encoded signature of the file's SHA-256 hash,
// stored next to the file as <file>.sig.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUntrusted is returned when no trusted key matches the signature.
var ErrUntrusted = errors.New("signature verification failed: no matching trusted key")

// GenerateKeyPair generates a new ed25519 key pair for extension signing.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return publicKey, privateKey, nil
}

// SignaturePath returns the signature file path for an entry file.
// For "/plugins/Shop/Shop.so", returns "/plugins/Shop/Shop.so.sig".
func SignaturePath(path string) string {
	return path + ".sig"
}

// SignFile writes the signature of path to sigPath.
func SignFile(path, sigPath string, privateKey ed25519.PrivateKey) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	hash := sha256.Sum256(data)
	signature := ed25519.Sign(privateKey, hash[:])

	if err := os.WriteFile(sigPath, []byte(hex.EncodeToString(signature)), 0o644); err != nil {
		return fmt.Errorf("failed to write signature: %w", err)
	}
	return nil
}

// VerifyFile checks path against the signature in sigPath. It succeeds when
// any of trustedKeys produced the signature.
func VerifyFile(path, sigPath string, trustedKeys []ed25519.PublicKey) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	hash := sha256.Sum256(data)

	sigData, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("failed to read signature file: %w", err)
	}

	signature, err := hex.DecodeString(strings.TrimSpace(string(sigData)))
	if err != nil {
		return fmt.Errorf("invalid signature format: %w", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length: expected %d, got %d", ed25519.SignatureSize, len(signature))
	}

	for _, publicKey := range trustedKeys {
		if ed25519.Verify(publicKey, hash[:], signature) {
			return nil
		}
	}
	return ErrUntrusted
}

// ParsePublicKeys decodes hex-encoded public keys as found in configuration.
func ParsePublicKeys(encoded []string) ([]ed25519.PublicKey, error) {
	keys := make([]ed25519.PublicKey, 0, len(encoded))
	for i, s := range encoded {
		b, err := hex.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("trusted key %d: %w", i, err)
		}
		if len(b) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("trusted key %d: expected %d bytes, got %d", i, ed25519.PublicKeySize, len(b))
		}
		keys = append(keys, ed25519.PublicKey(b))
	}
	return keys, nil
}

// WritePrivateKey stores the key's seed, hex-encoded, readable by the owner only.
func WritePrivateKey(path string, key ed25519.PrivateKey) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(key.Seed())+"\n"), 0o600)
}

// ReadPrivateKey loads a key written by WritePrivateKey.
func ReadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid private key length: expected %d, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
