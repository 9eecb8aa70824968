// Package token builds and structurally validates the access and refresh
// tokens backing authenticated sessions.
//
// Access tokens are HS256 JWTs signed with the device secret. Validation
// here is deliberately structural only (three dot-separated parts, payload
// identity match): the session manager treats a payload/username mismatch
// as tampering regardless of signature state, and a server-held signing
// secret can replace the device secret without changing this contract.
package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/credkeeper/credkeeper/internal/common"
)

// Claims is the access-token payload: subject id, username, and the
// issued-at/expiry instants as epoch seconds.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// refreshPayload is the single-part refresh-token body. Expiry is in epoch
// milliseconds; the nonce keeps otherwise-identical tokens unpredictable.
type refreshPayload struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expires_at"`
	Nonce     string `json:"nonce"`
}

// Issuer creates and validates tokens.
type Issuer struct {
	secret []byte

	// now is a seam for tests; defaults to time.Now.
	now func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// WithClock replaces the issuer's time source. Intended for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// IssueAccess builds a signed access token for the given identity.
func (i *Issuer) IssueAccess(userID, username string, expiresAt time.Time) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(i.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: username,
	})

	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefresh builds a refresh token: a single base64-encoded JSON
// structure carrying identity, expiry, and a random nonce.
func (i *Issuer) IssueRefresh(userID, username string, expiresAt time.Time) (string, error) {
	nonce, err := common.MakeRandHexString(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate refresh nonce: %w", err)
	}

	payload := refreshPayload{
		UserID:    userID,
		Username:  username,
		ExpiresAt: expiresAt.UnixMilli(),
		Nonce:     nonce,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(data), nil
}

// ValidateAccessStructure checks the structural integrity of an access
// token: exactly three dot-separated parts, a decodable payload, and a
// payload username equal to expectedUsername. A mismatch means the token
// does not belong to the session presenting it.
func (i *Issuer) ValidateAccessStructure(token, expectedUsername string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return false
	}

	return claims.Username == expectedUsername
}

// ValidateRefresh reports whether a refresh token decodes, carries a
// complete identity, and has not expired.
func (i *Issuer) ValidateRefresh(token string) bool {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return false
	}

	var payload refreshPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return false
	}

	if payload.UserID == "" || payload.Username == "" {
		return false
	}

	return payload.ExpiresAt > i.now().UnixMilli()
}
