// Package memory provides an in-memory Store for tests and development.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/account"
	turnstilestore "github.com/xraph/turnstile/store"
)

// compile-time interface check
var _ turnstilestore.Store = (*Store)(nil)

// Store implements store.Store with a mutex-guarded map.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*account.Account
	closed   bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{accounts: make(map[string]*account.Account)}
}

func (s *Store) LoadAll(_ context.Context) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, turnstile.ErrStoreClosed
	}
	result := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, a.Clone())
	}
	return result, nil
}

func (s *Store) Upsert(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return turnstile.ErrStoreClosed
	}
	s.accounts[a.Token] = a.Clone()
	return nil
}

func (s *Store) Insert(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return turnstile.ErrStoreClosed
	}
	if _, exists := s.accounts[a.Token]; exists {
		return turnstile.ErrKeyExists
	}
	s.accounts[a.Token] = a.Clone()
	return nil
}

func (s *Store) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return turnstile.ErrStoreClosed
	}
	delete(s.accounts, token)
	return nil
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return turnstile.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
