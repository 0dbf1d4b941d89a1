package ca

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Sealed key format: v1$<salt>$<nonce>$<ciphertext>, base64 without padding.
const sealVersion = "v1"

// argon2id parameters.
const (
	kdfTime    = 2
	kdfMemory  = 19 * 1024
	kdfThreads = 1
	kdfKeyLen  = 32
	saltLen    = 16
)

var b64 = base64.RawStdEncoding

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen)
}

// sealKey encrypts the PKCS#8 form of key with AES-256-GCM.
func sealKey(passphrase string, key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, der, []byte(sealVersion))

	sealed := strings.Join([]string{sealVersion, b64.EncodeToString(salt), b64.EncodeToString(nonce), b64.EncodeToString(ct)}, "$")
	return []byte(sealed), nil
}

// openKey reverses sealKey.
func openKey(passphrase string, sealed []byte) (*rsa.PrivateKey, error) {
	parts := strings.Split(string(sealed), "$")
	if len(parts) != 4 || parts[0] != sealVersion {
		return nil, errBadSealedKey
	}
	var raw [3][]byte
	for i, p := range parts[1:] {
		b, err := b64.DecodeString(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadSealedKey, err)
		}
		raw[i] = b
	}
	salt, nonce, ct := raw[0], raw[1], raw[2]

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errBadSealedKey
	}
	der, err := gcm.Open(nil, nonce, ct, []byte(sealVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key (wrong passphrase?): %w", err)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unexpected private key type %T", parsed)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
