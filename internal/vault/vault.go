// Package vault stores per-username credential records encrypted at rest.
//
// Every record is sealed with AES-256-GCM under a key derived from the
// device secret and a fresh per-record salt, which binds stored credentials
// to the originating device: moving the store to another machine makes
// every record undecryptable.
package vault

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/credkeeper/credkeeper/internal/common"
	"github.com/credkeeper/credkeeper/internal/cryptox"
	"github.com/credkeeper/credkeeper/internal/logging"
	"github.com/credkeeper/credkeeper/internal/storage"
)

// RecordVersion is the only record format this subsystem reads or writes.
// Records with any other version are rejected, never coerced.
const RecordVersion = 1

// KeyPrefix namespaces credential records inside the key-value store.
const KeyPrefix = "credkeeper.cred."

// Credential is the record content protected by the vault. The password is
// stored as a salted argon2id digest, never as plaintext; the record as a
// whole is additionally sealed with AES-GCM before it reaches the store.
type Credential struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	PasswordSalt string `json:"password_salt"`
}

// NewCredential builds a credential for username with a fresh hash salt.
func NewCredential(username, password string) Credential {
	salt := cryptox.NewSalt()
	hash := cryptox.HashPassword([]byte(password), salt)
	return Credential{
		Username:     username,
		PasswordHash: base64.StdEncoding.EncodeToString(hash),
		PasswordSalt: base64.StdEncoding.EncodeToString(salt),
	}
}

// VerifyPassword re-derives the digest of password under the stored salt
// and compares it to the stored one in constant time.
func (c Credential) VerifyPassword(password string) bool {
	salt, err := base64.StdEncoding.DecodeString(c.PasswordSalt)
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(c.PasswordHash)
	if err != nil {
		return false
	}
	got := cryptox.HashPassword([]byte(password), salt)
	return subtle.ConstantTimeCompare(want, got) == 1
}

// record is the persisted form of an encrypted credential.
type record struct {
	Version    int    `json:"version"`
	Ciphertext string `json:"ciphertext"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CreatedAt  int64  `json:"created_at"`
}

// Vault encrypts and decrypts credential records over a byte-level store.
type Vault struct {
	store        storage.Store
	deviceSecret []byte
	log          logging.Logger
}

func New(store storage.Store, deviceSecret string, log logging.Logger) *Vault {
	return &Vault{
		store:        store,
		deviceSecret: []byte(deviceSecret),
		log:          log,
	}
}

func credentialKey(username string) string {
	return KeyPrefix + username
}

// Store seals cred under a key derived from (deviceSecret, fresh salt) and
// writes the record for username, overwriting any prior one. Failures from
// the underlying store are wrapped in common.ErrStorage.
func (v *Vault) Store(ctx context.Context, username string, cred Credential) error {
	salt := cryptox.NewSalt()
	key := cryptox.DeriveKey(v.deviceSecret, salt)
	defer common.WipeByteArray(key)

	ciphertext, nonce, err := cryptox.EncryptRecord(cred, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	rec := record{
		Version:    RecordVersion,
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CreatedAt:  time.Now().Unix(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal credential record: %w", err)
	}

	if err := v.store.Set(ctx, credentialKey(username), data); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

// Retrieve reads and decrypts the record for username. It returns
// (nil, nil) when no record exists. A version mismatch, decryption failure
// (tampering or a device-secret change), or malformed payload is reported
// as common.ErrIntegrity.
func (v *Vault) Retrieve(ctx context.Context, username string) (*Credential, error) {
	data, err := v.store.Get(ctx, credentialKey(username))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	if data == nil {
		return nil, nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: malformed record: %v", common.ErrIntegrity, err)
	}

	if rec.Version != RecordVersion {
		return nil, fmt.Errorf("%w: %w: got %d", common.ErrIntegrity, common.ErrVersionMismatch, rec.Version)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(rec.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding: %v", common.ErrIntegrity, err)
	}
	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt encoding: %v", common.ErrIntegrity, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(rec.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce encoding: %v", common.ErrIntegrity, err)
	}

	key := cryptox.DeriveKey(v.deviceSecret, salt)
	defer common.WipeByteArray(key)

	var cred Credential
	if err := cryptox.DecryptRecord(ciphertext, nonce, key, &cred); err != nil {
		return nil, fmt.Errorf("%w: decryption failed: %v", common.ErrIntegrity, err)
	}

	return &cred, nil
}

// VerifyIntegrity reports whether the record for username decrypts cleanly
// and carries the expected username. Errors are never propagated; any
// failure means false.
func (v *Vault) VerifyIntegrity(ctx context.Context, username string) bool {
	cred, err := v.Retrieve(ctx, username)
	if err != nil {
		v.log.Warn(ctx, "credential integrity check failed", "username", username, "error", err)
		return false
	}
	if cred == nil {
		return false
	}
	return cred.Username == username
}

// Delete removes the record for username. A missing record is not an error.
func (v *Vault) Delete(ctx context.Context, username string) error {
	return v.store.Delete(ctx, credentialKey(username))
}

// ListUsernames enumerates the usernames that currently have a record.
func (v *Vault) ListUsernames(ctx context.Context) ([]string, error) {
	keys, err := v.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	var usernames []string
	for _, k := range keys {
		if strings.HasPrefix(k, KeyPrefix) {
			usernames = append(usernames, strings.TrimPrefix(k, KeyPrefix))
		}
	}
	return usernames, nil
}

// ClearAll removes every credential record. Best-effort: deletion continues
// past individual failures and the first error is returned at the end.
func (v *Vault) ClearAll(ctx context.Context) error {
	usernames, err := v.ListUsernames(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, u := range usernames {
		if err := v.Delete(ctx, u); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
