package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
)

// ErrInvalidToken is returned for unknown, missing or revoked credentials.
var ErrInvalidToken = errors.New("invalid token")

// TokenService issues and validates the demo bearer tokens the rest of the
// service treats as an opaque credential. Tokens live in memory and die with
// the process, which is all the demo login needs.
type TokenService struct {
	mu     sync.RWMutex
	tokens map[string]int
}

// NewTokenService constructs an empty TokenService.
func NewTokenService() *TokenService {
	return &TokenService{tokens: make(map[string]int)}
}

// Issue mints a token bound to the user.
func (s *TokenService) Issue(userID int) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.tokens[token] = userID
	s.mu.Unlock()
	return token, nil
}

// Validate resolves a token to its user id.
func (s *TokenService) Validate(ctx context.Context, token string) (int, error) {
	s.mu.RLock()
	userID, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// Revoke invalidates a token.
func (s *TokenService) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}
