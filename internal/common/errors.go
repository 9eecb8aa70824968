// Package common defines shared constants and sentinel errors used across
// the credential and session layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// ErrStorage wraps failures of the underlying key-value store.
	ErrStorage = errors.New("storage failure")

	// ErrIntegrity marks a credential record that cannot be trusted:
	// tampered, undecryptable on this device, or malformed.
	ErrIntegrity = errors.New("integrity failure")

	// ErrVersionMismatch marks a record written in an unsupported format.
	ErrVersionMismatch = errors.New("unsupported record version")
)
