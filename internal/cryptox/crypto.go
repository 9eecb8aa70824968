// Package cryptox implements the cryptographic primitives behind the
// credential vault: PBKDF2 key derivation and AES-GCM authenticated
// encryption of JSON-serialized records.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/credkeeper/credkeeper/internal/common"
)

const (
	// KeyIterations is the PBKDF2 iteration count. Raising it invalidates
	// nothing (the count is not stored), but keep it in sync across
	// encrypt/decrypt paths.
	KeyIterations = 100_000

	// KeySize is the derived key length: 32 bytes for AES-256.
	KeySize = 32

	// NonceSize matches the standard GCM nonce length.
	NonceSize = 12

	// SaltSize is the per-record salt length.
	SaltSize = 32
)

// DeriveKey stretches (secret, salt) into an AES-256 key with
// PBKDF2-HMAC-SHA256. Same inputs always produce the same key; the key is
// never stored, only re-derived.
func DeriveKey(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, KeyIterations, KeySize, sha256.New)
}

// NewSalt returns a fresh random per-record salt.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// HashPassword produces an argon2id digest of password under salt. The
// digest is what gets stored; the password itself never is. Compare
// digests in constant time.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// EncryptRecord serializes v to JSON and seals it with AES-GCM under key.
// A new random nonce is generated for every call; ciphertext and nonce are
// returned separately so the caller can persist both.
func EncryptRecord(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(NonceSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// DecryptRecord opens ciphertext with AES-GCM and unmarshals the plaintext
// JSON into v. The key and nonce must be the ones used at encryption time;
// an authentication-tag mismatch surfaces as an error from Open.
func DecryptRecord(ciphertext, nonce, key []byte, v any) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, v)
}
