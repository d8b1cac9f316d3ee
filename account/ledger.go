package account

import (
	"errors"
	"sync"
)

// Sentinel errors returned by Ledger operations.
var (
	ErrExists   = errors.New("account: token already exists")
	ErrNotFound = errors.New("account: token not found")
)

// Ledger is the in-memory authoritative mapping from token to Account.
// It is the single source of truth while the process is alive; durable
// storage only ever sees checkpointed copies of it.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*Account)}
}

// Load replaces the ledger contents with the given accounts. It is called
// once at startup with the rows read from durable storage.
func (l *Ledger) Load(accounts []*Account) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts = make(map[string]*Account, len(accounts))
	for _, a := range accounts {
		if a.CallsByMethod == nil {
			a.CallsByMethod = make(map[string]int64)
		}
		l.accounts[a.Token] = a
	}
}

// Lookup returns the account for token, or false if it is not present.
// It has no side effects.
func (l *Ledger) Lookup(token string) (*Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[token]
	return a, ok
}

// Create inserts a zero-initialized account for token and returns it.
// Returns ErrExists if the token is already present.
func (l *Ledger) Create(token string) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[token]; exists {
		return nil, ErrExists
	}
	a := New(token)
	l.accounts[token] = a
	return a, nil
}

// Remove deletes the account for token. Returns ErrNotFound if absent.
func (l *Ledger) Remove(token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[token]; !exists {
		return ErrNotFound
	}
	delete(l.accounts, token)
	return nil
}

// RecordCall increments the per-method count and the running total for
// token. Returns ErrNotFound if the token is absent; callers authorize
// before recording, but the key may have been removed in between.
func (l *Ledger) RecordCall(token, method string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, exists := l.accounts[token]
	if !exists {
		return ErrNotFound
	}
	a.CallsByMethod[method]++
	a.CallAmount++
	a.Touch()
	return nil
}

// Stats returns a copy of the per-method counts for token.
func (l *Ledger) Stats(token string) (map[string]int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, exists := l.accounts[token]
	if !exists {
		return nil, false
	}
	stats := make(map[string]int64, len(a.CallsByMethod))
	for m, n := range a.CallsByMethod {
		stats[m] = n
	}
	return stats, true
}

// Snapshot returns a point-in-time deep copy of every account for
// checkpointing. Mutation is only blocked for the duration of the copy.
func (l *Ledger) Snapshot() []*Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := make([]*Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		snap = append(snap, a.Clone())
	}
	return snap
}

// Len returns the number of accounts currently in the ledger.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.accounts)
}
