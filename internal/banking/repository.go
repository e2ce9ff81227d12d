package banking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// Repository encapsulates DB operations for bank accounts and transactions.
type Repository interface {
	ListAccounts(ctx context.Context) ([]BankAccount, error)
	GetAccount(ctx context.Context, id int64) (BankAccount, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]BankTransaction, error)
	GetTransaction(ctx context.Context, id int64) (BankTransaction, error)
	ReconciledBalance(ctx context.Context, bankAccountID int64) (float64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes operations available within a transaction.
type TxRepository interface {
	InsertAccount(ctx context.Context, in CreateAccountInput) (BankAccount, error)
	// GetAccountForUpdate locks the bank account row. Running-balance
	// computation is sequential per account, so concurrent appends must
	// queue on this lock.
	GetAccountForUpdate(ctx context.Context, id int64) (BankAccount, error)
	LedgerAccountType(ctx context.Context, accountID int64) (string, error)
	LastRunningBalance(ctx context.Context, bankAccountID int64) (float64, bool, error)
	InsertTransaction(ctx context.Context, t BankTransaction) (BankTransaction, error)
	GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error)
	UpdateTransaction(ctx context.Context, t BankTransaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	RebuildRunningBalances(ctx context.Context, bankAccountID int64) error
	MarkReconciled(ctx context.Context, ids []int64, date time.Time) error
	StampStatement(ctx context.Context, bankAccountID int64, date time.Time, balance float64) error
}

const accountColumns = `id, name, account_number, bank_name, ledger_account_id, opening_balance, opening_date,
last_reconciled_date, last_statement_balance, is_active, created_at, updated_at`

const transactionColumns = `id, bank_account_id, transaction_date, type, amount, description, running_balance,
is_reconciled, reconciled_date, journal_line_id, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanAccount(row pgx.Row) (BankAccount, error) {
	var a BankAccount
	err := row.Scan(&a.ID, &a.Name, &a.AccountNumber, &a.BankName, &a.LedgerAccountID, &a.OpeningBalance, &a.OpeningDate,
		&a.LastReconciledDate, &a.LastStatementBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BankAccount{}, fmt.Errorf("bank account: %w", shared.ErrNotFound)
	}
	return a, err
}

func scanTransaction(row pgx.Row) (BankTransaction, error) {
	var t BankTransaction
	err := row.Scan(&t.ID, &t.BankAccountID, &t.TransactionDate, &t.Type, &t.Amount, &t.Description, &t.RunningBalance,
		&t.IsReconciled, &t.ReconciledDate, &t.JournalLineID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BankTransaction{}, fmt.Errorf("bank transaction: %w", shared.ErrNotFound)
	}
	return t, err
}

func (r *repository) ListAccounts(ctx context.Context) ([]BankAccount, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM bank_accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []BankAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) GetAccount(ctx context.Context, id int64) (BankAccount, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id=$1`, id))
}

func (r *repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]BankTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM bank_transactions
WHERE bank_account_id = $1
  AND (NOT $2 OR is_reconciled)
  AND (NOT $3 OR NOT is_reconciled)
  AND ($4::date IS NULL OR transaction_date >= $4)
  AND ($5::date IS NULL OR transaction_date <= $5)
ORDER BY transaction_date, id`
	rows, err := r.db.Query(ctx, query, filter.BankAccountID, filter.ReconciledOnly, filter.PendingOnly, nullTime(filter.From), nullTime(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *repository) GetTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE id=$1`, id))
}

// ReconciledBalance sums opening balance plus the signed amounts of
// reconciled transactions only.
func (r *repository) ReconciledBalance(ctx context.Context, bankAccountID int64) (float64, error) {
	const query = `
SELECT a.opening_balance + COALESCE((
	SELECT SUM(CASE WHEN t.type = 'CREDIT' THEN t.amount ELSE -t.amount END)
	FROM bank_transactions t
	WHERE t.bank_account_id = a.id AND t.is_reconciled
), 0)
FROM bank_accounts a WHERE a.id = $1`
	var balance float64
	err := r.db.QueryRow(ctx, query, bankAccountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("bank account %d: %w", bankAccountID, shared.ErrNotFound)
	}
	return balance, err
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

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertAccount(ctx context.Context, in CreateAccountInput) (BankAccount, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO bank_accounts (name, account_number, bank_name, ledger_account_id, opening_balance, opening_date, is_active)
VALUES ($1,$2,$3,$4,$5,$6,TRUE) RETURNING `+accountColumns,
		in.Name, in.AccountNumber, in.BankName, in.LedgerAccountID, in.OpeningBalance, in.OpeningDate)
	return scanAccount(row)
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, id int64) (BankAccount, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) LedgerAccountType(ctx context.Context, accountID int64) (string, error) {
	var accType string
	err := r.tx.QueryRow(ctx, `SELECT type FROM accounts WHERE id=$1`, accountID).Scan(&accType)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("ledger account %d: %w", accountID, shared.ErrNotFound)
	}
	return accType, err
}

func (r *txRepository) LastRunningBalance(ctx context.Context, bankAccountID int64) (float64, bool, error) {
	var balance float64
	err := r.tx.QueryRow(ctx, `SELECT running_balance FROM bank_transactions
WHERE bank_account_id=$1 ORDER BY transaction_date DESC, id DESC LIMIT 1`, bankAccountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	return balance, err == nil, err
}

func (r *txRepository) InsertTransaction(ctx context.Context, t BankTransaction) (BankTransaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO bank_transactions
(bank_account_id, transaction_date, type, amount, description, running_balance, is_reconciled, journal_line_id)
VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7) RETURNING `+transactionColumns,
		t.BankAccountID, t.TransactionDate, t.Type, t.Amount, t.Description, t.RunningBalance, t.JournalLineID)
	return scanTransaction(row)
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error) {
	return scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateTransaction(ctx context.Context, t BankTransaction) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bank_transactions SET transaction_date=$2, type=$3, amount=$4, description=$5, updated_at=NOW() WHERE id=$1`,
		t.ID, t.TransactionDate, t.Type, t.Amount, t.Description)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("bank transaction %d: %w", t.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) DeleteTransaction(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM bank_transactions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("bank transaction %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// RebuildRunningBalances recomputes the whole chain for an account after an
// unreconciled transaction was edited or removed.
func (r *txRepository) RebuildRunningBalances(ctx context.Context, bankAccountID int64) error {
	_, err := r.tx.Exec(ctx, `
UPDATE bank_transactions bt SET running_balance = sub.rb, updated_at = NOW()
FROM (
	SELECT t.id,
		(SELECT opening_balance FROM bank_accounts WHERE id=$1)
		+ SUM(CASE WHEN t.type = 'CREDIT' THEN t.amount ELSE -t.amount END)
			OVER (ORDER BY t.transaction_date, t.id) AS rb
	FROM bank_transactions t
	WHERE t.bank_account_id = $1
) sub
WHERE bt.id = sub.id`, bankAccountID)
	return err
}

func (r *txRepository) MarkReconciled(ctx context.Context, ids []int64, date time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_transactions SET is_reconciled=TRUE, reconciled_date=$2, updated_at=NOW() WHERE id = ANY($1)`, ids, date)
	return err
}

func (r *txRepository) StampStatement(ctx context.Context, bankAccountID int64, date time.Time, balance float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_accounts SET last_reconciled_date=$2, last_statement_balance=$3, updated_at=NOW() WHERE id=$1`,
		bankAccountID, date, balance)
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
