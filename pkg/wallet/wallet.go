// Package wallet loads the trading key, plain or encrypted at rest.
// Encrypted keys are AES-256-GCM sealed under a master key derived from an
// operator passphrase with HKDF-SHA256.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"

	"github.com/apmfree78/snipper-sub000/pkg/config"
)

const (
	saltSize  = 16
	keySize   = 32
	hkdfLabel = "sniper-wallet-v1"
)

// ErrNoKey is returned when neither a plain nor an encrypted key is configured.
var ErrNoKey = errors.New("no wallet key configured")

// Load returns the configured trading key.
func Load(cfg config.WalletConfig) (*ecdsa.PrivateKey, error) {
	switch {
	case cfg.PrivateKey != "":
		return ParsePrivateKey(cfg.PrivateKey)
	case cfg.EncryptedPrivateKey != "":
		raw, err := DecryptPrivateKey(cfg.EncryptedPrivateKey, cfg.Passphrase)
		if err != nil {
			return nil, err
		}
		key, err := crypto.ToECDSA(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid decrypted key: %w", err)
		}
		return key, nil
	default:
		return nil, ErrNoKey
	}
}

// ParsePrivateKey accepts a hex key with or without 0x prefix.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	return key, nil
}

// MasterKey derives the 32-byte AES key for passphrase and salt.
func MasterKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	r := hkdf.New(sha256.New, []byte(passphrase), salt, []byte(hkdfLabel))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}
	return key, nil
}

// EncryptPrivateKey seals a 32-byte secp256k1 key.
// The result is base64 of salt || nonce || ciphertext || tag.
func EncryptPrivateKey(privateKey []byte, passphrase string) (string, error) {
	if len(privateKey) != keySize {
		return "", fmt.Errorf("private key must be 32 bytes (secp256k1)")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	masterKey, err := MasterKey(passphrase, salt)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(masterKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := append(salt, gcm.Seal(nonce, nonce, privateKey, nil)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptPrivateKey opens a key produced by EncryptPrivateKey.
func DecryptPrivateKey(encrypted, passphrase string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encrypted))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(blob) < saltSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	salt, sealed := blob[:saltSize], blob[saltSize:]

	masterKey, err := MasterKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	if len(plaintext) != keySize {
		return nil, fmt.Errorf("decrypted key has wrong size: got %d, want 32", len(plaintext))
	}
	return plaintext, nil
}

func newGCM(masterKey []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
