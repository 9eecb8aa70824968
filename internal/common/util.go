package common

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateRandByteArray returns size cryptographically random bytes.
// The underlying reader is the platform CSPRNG; it panics only if the
// system source of randomness is unavailable, which is unrecoverable
// for any credential operation anyway.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter specifies the number of random bytes to generate before
// encoding, so the final string length is twice the size.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WipeByteArray overwrites the contents of the provided byte slice with
// zeros. Useful for removing passwords or key material from memory after
// use. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
