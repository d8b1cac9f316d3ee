package mongo

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/turnstile/account"
	"github.com/xraph/turnstile/types"
)

// accountModel is the persisted document representation of an Account.
// The token doubles as the document _id; the per-method counts travel as
// an opaque serialized JSON blob, same as the SQL backends.
type accountModel struct {
	grove.BaseModel `grove:"table:turnstile_accounts"`

	Token         string    `grove:"token,pk"        bson:"_id"`
	CallAmount    int64     `grove:"call_amount"     bson:"call_amount"`
	CallsByMethod string    `grove:"calls_by_method" bson:"calls_by_method"`
	CreatedAt     time.Time `grove:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"      bson:"updated_at"`
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
