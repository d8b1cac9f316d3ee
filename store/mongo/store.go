// Package mongo implements the Turnstile store on MongoDB via the Grove
// ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/account"
	turnstilestore "github.com/xraph/turnstile/store"
)

// colAccounts is the collection name for account documents.
const colAccounts = "turnstile_accounts"

// compile-time interface check
var _ turnstilestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for the accounts collection. The token is the
// document _id, so uniqueness needs no extra index.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}
	if _, err := s.mdb.Collection(colAccounts).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("turnstile/mongo: migrate %s indexes: %w", colAccounts, err)
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

func (s *Store) LoadAll(ctx context.Context) ([]*account.Account, error) {
	var models []accountModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("turnstile/mongo: load accounts: %w", err)
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

	_, err = s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Token}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":             m.Token,
			"call_amount":     m.CallAmount,
			"calls_by_method": m.CallsByMethod,
			"created_at":      m.CreatedAt,
			"updated_at":      m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("turnstile/mongo: upsert account: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, a *account.Account) error {
	// Defensive existence check; callers consult the ledger first.
	var existing accountModel
	err := s.mdb.NewFind(&existing).
		Filter(bson.M{"_id": a.Token}).
		Scan(ctx)
	if err == nil {
		return turnstile.ErrKeyExists
	}
	if !isNoDocuments(err) {
		return fmt.Errorf("turnstile/mongo: insert account: %w", err)
	}

	m, err := toAccountModel(a)
	if err != nil {
		return err
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("turnstile/mongo: insert account: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, token string) error {
	_, err := s.mdb.NewDelete((*accountModel)(nil)).
		Filter(bson.M{"_id": token}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("turnstile/mongo: delete account: %w", err)
	}
	return nil
}

// isNoDocuments checks for the mongo no-documents sentinel.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
