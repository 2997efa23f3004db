package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tracklane/trackd/internal/domain/reference"
	"github.com/tracklane/trackd/internal/port/database"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// store method run either standalone or inside a caller's transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txCtxKey struct{}

// Store implements the database port on PostgreSQL. All queries are
// tenant-scoped through the request context.
type Store struct {
	pool *pgxpool.Pool

	hintOnce sync.Once
	hint     int

	products        *entryStore[reference.Product, reference.ProductUpdate]
	paymentTypes    *entryStore[reference.PaymentType, reference.PaymentTypeUpdate]
	warehouses      *entryStore[reference.Warehouse, reference.WarehouseUpdate]
	clients         *entryStore[reference.Client, reference.ClientUpdate]
	clientAddresses *collectionStore[reference.ClientAddress, reference.ClientAddressUpdate]
}

// NewStore creates a Store and wires the per-type reference stores.
func NewStore(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool}
	s.initReferenceStores()
	return s
}

// q returns the transaction carried by ctx, or the pool.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txCtxKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// InTx runs fn inside a transaction carried by the context. A call made
// with a context that already carries a transaction joins it, so
// higher-level orchestration composes lower-level writes into one
// atomic unit.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txCtxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txCtxKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Products returns the product reference store.
func (s *Store) Products() database.EntryStore[reference.Product, reference.ProductUpdate] {
	return s.products
}

// PaymentTypes returns the payment type reference store.
func (s *Store) PaymentTypes() database.EntryStore[reference.PaymentType, reference.PaymentTypeUpdate] {
	return s.paymentTypes
}

// Warehouses returns the warehouse reference store.
func (s *Store) Warehouses() database.EntryStore[reference.Warehouse, reference.WarehouseUpdate] {
	return s.warehouses
}

// Clients returns the client reference store.
func (s *Store) Clients() database.EntryStore[reference.Client, reference.ClientUpdate] {
	return s.clients
}

// ClientAddresses returns the client address collection store.
func (s *Store) ClientAddresses() database.CollectionStore[reference.ClientAddress, reference.ClientAddressUpdate] {
	return s.clientAddresses
}
