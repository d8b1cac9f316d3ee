// Package account defines the per-key usage record and the in-memory
// ledger that holds every record for the lifetime of the process.
package account

import (
	"maps"

	"github.com/xraph/turnstile/types"
)

// Account is the identity and usage record for one authorized client.
// The token is the globally unique identity and is immutable once created.
type Account struct {
	types.Entity

	Token         string           `json:"token"`
	CallAmount    int64            `json:"call_amount"`
	CallsByMethod map[string]int64 `json:"calls_by_method"`
}

// New creates a zero-initialized Account for the given token.
func New(token string) *Account {
	return &Account{
		Entity:        types.NewEntity(),
		Token:         token,
		CallAmount:    0,
		CallsByMethod: make(map[string]int64),
	}
}

// Clone returns a deep copy of the account. Snapshots hand clones to the
// checkpoint worker so serialization never races a concurrent mutation.
func (a *Account) Clone() *Account {
	c := *a
	c.CallsByMethod = maps.Clone(a.CallsByMethod)
	if c.CallsByMethod == nil {
		c.CallsByMethod = make(map[string]int64)
	}
	return &c
}
