package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	AncestorIDs(ctx context.Context, id int64) ([]int64, error)
	SubtreeBalance(ctx context.Context, id int64, asOf time.Time) (opening, debit, credit float64, err error)
	RecomputeCurrentBalance(ctx context.Context, id int64) (float64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes operations available within a transaction.
type TxRepository interface {
	Insert(ctx context.Context, in CreateInput) (Account, error)
	Update(ctx context.Context, acc Account) error
	Delete(ctx context.Context, id int64) error
	GetForUpdate(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	HasChildren(ctx context.Context, id int64) (bool, error)
	HasPostings(ctx context.Context, id int64) (bool, error)
	AncestorIDs(ctx context.Context, id int64) ([]int64, error)
}

const accountColumns = `id, code, name, type, subtype, parent_id, is_system, is_active, opening_balance, current_balance, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.IsSystem, &a.IsActive, &a.OpeningBalance, &a.CurrentBalance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("account: %w", shared.ErrNotFound)
	}
	return a, err
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ($1 = '' OR type = $1) AND (NOT $2 OR is_active) ORDER BY code`
	rows, err := r.db.Query(ctx, query, string(filter.Type), filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

func (r *repository) AncestorIDs(ctx context.Context, id int64) ([]int64, error) {
	return ancestorIDs(ctx, r.db, id)
}

// SubtreeBalance aggregates posted lines for an account and all of its
// descendants, together with the subtree's opening balances.
func (r *repository) SubtreeBalance(ctx context.Context, id int64, asOf time.Time) (float64, float64, float64, error) {
	const query = `
WITH RECURSIVE subtree AS (
	SELECT id, opening_balance FROM accounts WHERE id=$1
	UNION ALL
	SELECT a.id, a.opening_balance FROM accounts a JOIN subtree s ON a.parent_id = s.id
)
SELECT
	(SELECT COALESCE(SUM(opening_balance),0) FROM subtree),
	COALESCE(SUM(l.debit_amount),0),
	COALESCE(SUM(l.credit_amount),0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.journal_entry_id
WHERE l.account_id IN (SELECT id FROM subtree)
  AND e.status = 'POSTED'
  AND e.entry_date <= $2`
	var opening, debit, credit float64
	err := r.db.QueryRow(ctx, query, id, asOf).Scan(&opening, &debit, &credit)
	return opening, debit, credit, err
}

func (r *repository) RecomputeCurrentBalance(ctx context.Context, id int64) (float64, error) {
	return recomputeCurrentBalance(ctx, r.db, id)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func ancestorIDs(ctx context.Context, q querier, id int64) ([]int64, error) {
	const query = `
WITH RECURSIVE chain AS (
	SELECT id, parent_id FROM accounts WHERE id=$1
	UNION ALL
	SELECT a.id, a.parent_id FROM accounts a JOIN chain c ON a.id = c.parent_id
)
SELECT id FROM chain WHERE id <> $1`
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var aid int64
		if err := rows.Scan(&aid); err != nil {
			return nil, err
		}
		ids = append(ids, aid)
	}
	return ids, rows.Err()
}

// recomputeCurrentBalance re-aggregates an account's own posted lines into the
// cached current_balance column. Safe to run repeatedly; the write is the only effect.
func recomputeCurrentBalance(ctx context.Context, q querier, id int64) (float64, error) {
	const query = `
UPDATE accounts a SET current_balance = a.opening_balance + COALESCE((
	SELECT SUM(CASE WHEN a.type IN ('ASSET','EXPENSE')
		THEN l.debit_amount - l.credit_amount
		ELSE l.credit_amount - l.debit_amount END)
	FROM journal_lines l
	JOIN journal_entries e ON e.id = l.journal_entry_id
	WHERE l.account_id = a.id AND e.status = 'POSTED'
), 0), updated_at = NOW()
WHERE a.id = $1
RETURNING current_balance`
	var balance float64
	err := q.QueryRow(ctx, query, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("account %d: %w", id, shared.ErrNotFound)
	}
	return balance, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, in CreateInput) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, type, subtype, parent_id, is_system, is_active, opening_balance, current_balance)
VALUES ($1,$2,$3,$4,$5,$6,TRUE,$7,$7) RETURNING `+accountColumns,
		in.Code, in.Name, in.Type, in.Subtype, in.ParentID, in.IsSystem, in.OpeningBalance)
	acc, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, fmt.Errorf("account code %q already in use: %w", in.Code, shared.ErrValidation)
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *txRepository) Update(ctx context.Context, acc Account) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET name=$2, subtype=$3, parent_id=$4, is_active=$5, updated_at=NOW() WHERE id=$1`,
		acc.ID, acc.Name, acc.Subtype, acc.ParentID, acc.IsActive)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", acc.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) GetByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

func (r *txRepository) HasChildren(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE parent_id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) HasPostings(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_lines WHERE account_id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) AncestorIDs(ctx context.Context, id int64) ([]int64, error) {
	return ancestorIDs(ctx, r.tx, id)
}
