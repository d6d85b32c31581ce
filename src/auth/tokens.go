package auth

import (
	"sync"

	"github.com/google/uuid"

	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------

// TokenStore is the process-wide session token table. Insert-only: tokens
// stay resolvable for the remaining process lifetime, so a client may keep
// using one across stateless requests after its minting connection is gone.
type TokenStore struct {
	m sync.Map // token string -> *models.MUser
}

// -----------------------------------------------------------------------------

func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// -----------------------------------------------------------------------------

// Mint issues a fresh random token bound to the user.
func (s *TokenStore) Mint(user *models.MUser) string {
	token := uuid.NewString()
	s.m.Store(token, user)
	return token
}

// -----------------------------------------------------------------------------

// Resolve returns the user bound to the token, or nil.
func (s *TokenStore) Resolve(token string) *models.MUser {
	if token == "" {
		return nil
	}
	v, ok := s.m.Load(token)
	if !ok {
		return nil
	}
	return v.(*models.MUser)
}
