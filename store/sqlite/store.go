// Package sqlite implements the Turnstile store on SQLite via the Grove
// ORM. Suited to single-node deployments where running PostgreSQL is not
// worth the operational weight.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/account"
	turnstilestore "github.com/xraph/turnstile/store"
	"github.com/xraph/turnstile/types"
)

// compile-time interface check
var _ turnstilestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("turnstile/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("turnstile/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

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

func (s *Store) LoadAll(ctx context.Context) ([]*account.Account, error) {
	var models []accountModel
	err := s.sdb.NewSelect(&models).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

func (s *Store) Upsert(ctx context.Context, a *account.Account) error {
	m, err := toAccountModel(a)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(token) DO UPDATE").
		Set("call_amount = EXCLUDED.call_amount").
		Set("calls_by_method = EXCLUDED.calls_by_method").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) Insert(ctx context.Context, a *account.Account) error {
	existing := new(accountModel)
	err := s.sdb.NewSelect(existing).
		Where("token = ?", a.Token).
		Scan(ctx)
	if err == nil {
		return turnstile.ErrKeyExists
	}
	if !isNoRows(err) {
		return err
	}

	m, err := toAccountModel(a)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) Delete(ctx context.Context, token string) error {
	_, err := s.sdb.NewDelete((*accountModel)(nil)).
		Where("token = ?", token).
		Exec(ctx)
	return err
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
