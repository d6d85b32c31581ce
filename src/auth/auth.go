package auth

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"

	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------

// Login states as published in the "connection" reply.
const (
	StateOK          = "ok"
	StateUnknownUser = "unknown user"
	StateWrongPass   = "wrong password"
	StateDisabled    = "disabled"
)

// -----------------------------------------------------------------------------

// HashPassword returns the lowercase SHA-1 hex digest of the plaintext.
// Stored user records hold this form.
func HashPassword(plain string) string {
	sum := sha1.Sum([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// -----------------------------------------------------------------------------

// Verify checks the plaintext password against the user record and returns
// the login state. The digest comparison is constant-time.
func Verify(user *models.MUser, plain string) string {
	if user == nil {
		return StateUnknownUser
	}
	digest := HashPassword(plain)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(user.Password)) != 1 {
		return StateWrongPass
	}
	if user.IsDisabled {
		return StateDisabled
	}
	return StateOK
}
