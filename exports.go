package turnstile

import (
	"github.com/xraph/turnstile/account"
	"github.com/xraph/turnstile/types"
)

// Re-export common types for convenience so users don't have to import
// the account and types packages.

// Account is re-exported from the account package.
type Account = account.Account

// Entity is re-exported from the types package.
type Entity = types.Entity

// Re-export constructors
var (
	NewAccount    = account.New
	NewEntity     = types.NewEntity
	GenerateToken = account.GenerateToken
)
