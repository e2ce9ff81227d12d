package cashflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/banking"
	"github.com/meridian-erp/meridian/internal/ledger/journal"
	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// Repository encapsulates DB operations for cashflow documents.
type Repository interface {
	Get(ctx context.Context, id int64) (Document, error)
	List(ctx context.Context, filter ListFilter) ([]Document, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes operations available within a settlement transaction.
// Settling a document writes the document, its journal entry and the bank
// transaction in one transaction, so the journal and banking queries it needs
// are duplicated here for transaction context.
type TxRepository interface {
	NextDocumentNumber(ctx context.Context, prefix string, date time.Time) (string, error)
	InsertDocument(ctx context.Context, d Document) (Document, error)
	InsertAllocations(ctx context.Context, documentID int64, allocs []AllocationInput) error
	GetForUpdate(ctx context.Context, id int64) (Document, error)
	MarkPending(ctx context.Context, id int64) error
	MarkApproved(ctx context.Context, id, approverID int64, at time.Time, notes string) error
	MarkSettled(ctx context.Context, id int64, status DocumentStatus, actorID int64, at time.Time, entryID, bankTxnID int64) error
	MarkCancelled(ctx context.Context, id int64, at time.Time) error
	DeleteAllocations(ctx context.Context, documentID int64) error
	DeleteDocument(ctx context.Context, id int64) error

	AccountActive(ctx context.Context, accountID int64) (bool, error)
	InsertJournalEntry(ctx context.Context, e journal.Entry) (journal.Entry, error)
	InsertJournalLine(ctx context.Context, entryID int64, line journal.LineInput) (int64, error)
	LinkJournalSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	RecomputeAccountBalance(ctx context.Context, accountID int64) error

	GetBankAccountForUpdate(ctx context.Context, id int64) (banking.BankAccount, error)
	LastRunningBalance(ctx context.Context, bankAccountID int64) (float64, bool, error)
	InsertBankTransaction(ctx context.Context, t banking.BankTransaction) (banking.BankTransaction, error)
}

const documentColumns = `id, uid, number, direction, purpose, method, status, amount, doc_date, description,
partner_type, partner_id, reference_type, reference_id, bank_account_id, contra_account_id,
journal_entry_id, bank_transaction_id, approved_by, approved_at, approval_notes,
settled_by, settled_at, cancelled_at, created_by, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.UID, &d.Number, &d.Direction, &d.Purpose, &d.Method, &d.Status, &d.Amount, &d.DocDate, &d.Description,
		&d.PartnerKind, &d.PartnerID, &d.ReferenceType, &d.ReferenceID, &d.BankAccountID, &d.ContraAccountID,
		&d.JournalEntryID, &d.BankTransactionID, &d.ApprovedBy, &d.ApprovedAt, &d.ApprovalNotes,
		&d.SettledBy, &d.SettledAt, &d.CancelledAt, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("cashflow document: %w", shared.ErrNotFound)
	}
	return d, err
}

func (r *repository) Get(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM cashflow_documents WHERE id=$1`, id))
	if err != nil {
		return Document{}, err
	}
	allocs, err := queryAllocations(ctx, r.db, id)
	if err != nil {
		return Document{}, err
	}
	doc.Allocations = allocs
	return doc, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Document, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + documentColumns + ` FROM cashflow_documents
WHERE ($1 = '' OR direction = $1)
  AND ($2 = '' OR status = $2)
  AND ($3 = '' OR purpose = $3)
  AND ($4::date IS NULL OR doc_date >= $4)
  AND ($5::date IS NULL OR doc_date <= $5)
ORDER BY doc_date DESC, id DESC
LIMIT $6 OFFSET $7`
	rows, err := r.db.Query(ctx, query, string(filter.Direction), string(filter.Status), string(filter.Purpose),
		nullTime(filter.From), nullTime(filter.To), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
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

func queryAllocations(ctx context.Context, q querier, documentID int64) ([]Allocation, error) {
	rows, err := q.Query(ctx, `SELECT id, document_id, reference_type, reference_id, amount, created_at
FROM cashflow_allocations WHERE document_id=$1 ORDER BY id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var allocs []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.ReferenceType, &a.ReferenceID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextDocumentNumber(ctx context.Context, prefix string, date time.Time) (string, error) {
	var counter int64
	err := r.tx.QueryRow(ctx, `INSERT INTO doc_sequences (prefix, seq_date, counter) VALUES ($1,$2,1)
ON CONFLICT (prefix, seq_date) DO UPDATE SET counter = doc_sequences.counter + 1
RETURNING counter`, prefix, date.Format("2006-01-02")).Scan(&counter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, date.Format("20060102"), counter), nil
}

func (r *txRepository) InsertDocument(ctx context.Context, d Document) (Document, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO cashflow_documents
(uid, number, direction, purpose, method, status, amount, doc_date, description,
partner_type, partner_id, reference_type, reference_id, bank_account_id, contra_account_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING `+documentColumns,
		d.UID, d.Number, d.Direction, d.Purpose, d.Method, d.Status, d.Amount, d.DocDate, d.Description,
		d.PartnerKind, d.PartnerID, d.ReferenceType, d.ReferenceID, d.BankAccountID, d.ContraAccountID, d.CreatedBy)
	return scanDocument(row)
}

func (r *txRepository) InsertAllocations(ctx context.Context, documentID int64, allocs []AllocationInput) error {
	for _, alloc := range allocs {
		if _, err := r.tx.Exec(ctx, `INSERT INTO cashflow_allocations (document_id, reference_type, reference_id, amount)
VALUES ($1,$2,$3,$4)`, documentID, alloc.ReferenceType, alloc.ReferenceID, shared.Round2(alloc.Amount)); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Document, error) {
	return scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM cashflow_documents WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) MarkPending(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE cashflow_documents SET status=$2, updated_at=NOW() WHERE id=$1`, id, StatusPending)
	return err
}

func (r *txRepository) MarkApproved(ctx context.Context, id, approverID int64, at time.Time, notes string) error {
	_, err := r.tx.Exec(ctx, `UPDATE cashflow_documents SET status=$2, approved_by=$3, approved_at=$4, approval_notes=$5, updated_at=NOW() WHERE id=$1`,
		id, StatusApproved, approverID, at, notes)
	return err
}

func (r *txRepository) MarkSettled(ctx context.Context, id int64, status DocumentStatus, actorID int64, at time.Time, entryID, bankTxnID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE cashflow_documents
SET status=$2, settled_by=$3, settled_at=$4, journal_entry_id=$5, bank_transaction_id=$6, updated_at=NOW()
WHERE id=$1`, id, status, actorID, at, entryID, bankTxnID)
	return err
}

func (r *txRepository) MarkCancelled(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE cashflow_documents SET status=$2, cancelled_at=$3, updated_at=NOW() WHERE id=$1`,
		id, StatusCancelled, at)
	return err
}

func (r *txRepository) DeleteAllocations(ctx context.Context, documentID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM cashflow_allocations WHERE document_id=$1`, documentID)
	return err
}

func (r *txRepository) DeleteDocument(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM cashflow_documents WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("cashflow document %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) AccountActive(ctx context.Context, accountID int64) (bool, error) {
	var active bool
	err := r.tx.QueryRow(ctx, `SELECT is_active FROM accounts WHERE id=$1`, accountID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return active, err
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, e journal.Entry) (journal.Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(number, entry_date, description, entry_type, status, total_debit, total_credit, source_module, source_id, created_by, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at, updated_at`,
		e.Number, e.EntryDate, e.Description, e.Type, e.Status, e.TotalDebit, e.TotalCredit,
		e.SourceModule, e.SourceID, e.CreatedBy, e.PostedBy, e.PostedAt)
	if err := row.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return journal.Entry{}, err
	}
	return e, nil
}

func (r *txRepository) InsertJournalLine(ctx context.Context, entryID int64, line journal.LineInput) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (journal_entry_id, account_id, debit_amount, credit_amount, partner_type, partner_id)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		entryID, line.AccountID, shared.Round2(line.Debit), shared.Round2(line.Credit), line.PartnerKind, line.PartnerID).Scan(&id)
	return id, err
}

func (r *txRepository) LinkJournalSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_source_links (module, ref_id, journal_entry_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrSourceConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) RecomputeAccountBalance(ctx context.Context, accountID int64) error {
	_, err := r.tx.Exec(ctx, `
UPDATE accounts a SET current_balance = a.opening_balance + COALESCE((
	SELECT SUM(CASE WHEN a.type IN ('ASSET','EXPENSE')
		THEN l.debit_amount - l.credit_amount
		ELSE l.credit_amount - l.debit_amount END)
	FROM journal_lines l
	JOIN journal_entries e ON e.id = l.journal_entry_id
	WHERE l.account_id = a.id AND e.status = 'POSTED'
), 0), updated_at = NOW()
WHERE a.id = $1`, accountID)
	return err
}

func (r *txRepository) GetBankAccountForUpdate(ctx context.Context, id int64) (banking.BankAccount, error) {
	var a banking.BankAccount
	err := r.tx.QueryRow(ctx, `SELECT id, name, account_number, bank_name, ledger_account_id, opening_balance, opening_date,
last_reconciled_date, last_statement_balance, is_active, created_at, updated_at
FROM bank_accounts WHERE id=$1 FOR UPDATE`, id).Scan(
		&a.ID, &a.Name, &a.AccountNumber, &a.BankName, &a.LedgerAccountID, &a.OpeningBalance, &a.OpeningDate,
		&a.LastReconciledDate, &a.LastStatementBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return banking.BankAccount{}, fmt.Errorf("bank account %d: %w", id, shared.ErrNotFound)
	}
	return a, err
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

func (r *txRepository) InsertBankTransaction(ctx context.Context, t banking.BankTransaction) (banking.BankTransaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO bank_transactions
(bank_account_id, transaction_date, type, amount, description, running_balance, is_reconciled, journal_line_id)
VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7) RETURNING id, created_at, updated_at`,
		t.BankAccountID, t.TransactionDate, t.Type, t.Amount, t.Description, t.RunningBalance, t.JournalLineID).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return banking.BankTransaction{}, err
	}
	return t, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
