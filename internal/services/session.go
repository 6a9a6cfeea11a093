package services

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/pocketledger/syncengine/internal/observability"
)

// Session is the signed-in identity used for backend calls
type Session struct {
	UserID      string
	AccessToken string
}

// SessionProvider supplies the current session, or nil when signed out
type SessionProvider interface {
	CurrentSession(ctx context.Context) *Session
}

// StaticSession holds a session set by the host on sign-in and cleared on sign-out
type StaticSession struct {
	mu      sync.RWMutex
	session *Session
}

// NewStaticSession creates a provider; an empty token starts signed out
func NewStaticSession(userID, accessToken string) *StaticSession {
	s := &StaticSession{}
	if accessToken != "" {
		s.session = &Session{UserID: userID, AccessToken: accessToken}
	}
	return s
}

func (s *StaticSession) CurrentSession(ctx context.Context) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// SignIn replaces the current session
func (s *StaticSession) SignIn(userID, accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &Session{UserID: userID, AccessToken: accessToken}
}

// SignOut clears the current session
func (s *StaticSession) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}

// TokenSourceSession adapts an oauth2.TokenSource, so refreshing credentials
// are fetched on every call
type TokenSourceSession struct {
	userID string
	source oauth2.TokenSource
}

// NewTokenSourceSession wraps src in a caching token source
func NewTokenSourceSession(userID string, src oauth2.TokenSource) *TokenSourceSession {
	return &TokenSourceSession{
		userID: userID,
		source: oauth2.ReuseTokenSource(nil, src),
	}
}

func (s *TokenSourceSession) CurrentSession(ctx context.Context) *Session {
	tok, err := s.source.Token()
	if err != nil {
		observability.WithContext(ctx).Warnf("Token source failed: %v", err)
		return nil
	}
	if !tok.Valid() {
		return nil
	}
	return &Session{UserID: s.userID, AccessToken: tok.AccessToken}
}
