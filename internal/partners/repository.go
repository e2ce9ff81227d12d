package partners

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// Resolver looks up counterparties by tagged reference.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (Partner, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed resolver.
func NewRepository(db *pgxpool.Pool) Resolver {
	return &repository{db: db}
}

// Each kind resolves through its own table rather than a generic
// (type, id) pair, so a dangling reference surfaces as ErrNotFound here
// instead of silently joining to nothing downstream.
func (r *repository) Resolve(ctx context.Context, ref Ref) (Partner, error) {
	if err := ref.Validate(); err != nil {
		return Partner{}, err
	}
	var query string
	switch ref.Kind {
	case KindSupplier:
		query = `SELECT name FROM suppliers WHERE id=$1`
	case KindEmployee:
		query = `SELECT name FROM employees WHERE id=$1`
	case KindCustomer:
		query = `SELECT name FROM customers WHERE id=$1`
	case KindOther:
		return Partner{Kind: KindOther, ID: ref.ID}, nil
	}
	var name string
	if err := r.db.QueryRow(ctx, query, ref.ID).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Partner{}, fmt.Errorf("%s %d: %w", ref.Kind, ref.ID, shared.ErrNotFound)
		}
		return Partner{}, err
	}
	return Partner{Kind: ref.Kind, ID: ref.ID, Name: name}, nil
}
