package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/turnstile/account"
	"github.com/xraph/turnstile/types"
)

// accountModel is the persisted row representation of an Account. The
// per-method counts travel as an opaque serialized JSON blob and are
// parsed back into the mapping on load.
type accountModel struct {
	grove.BaseModel `grove:"table:turnstile_accounts"`

	Token         string    `grove:"token,pk"`
	CallAmount    int64     `grove:"call_amount"`
	CallsByMethod string    `grove:"calls_by_method"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) (*accountModel, error) {
	calls, err := json.Marshal(a.CallsByMethod)
	if err != nil {
		return nil, err
	}

	return &accountModel{
		Token:         a.Token,
		CallAmount:    a.CallAmount,
		CallsByMethod: string(calls),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}, nil
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	calls := make(map[string]int64)
	if m.CallsByMethod != "" {
		if err := json.Unmarshal([]byte(m.CallsByMethod), &calls); err != nil {
			return nil, err
		}
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Token:         m.Token,
		CallAmount:    m.CallAmount,
		CallsByMethod: calls,
	}, nil
}
