package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
	GetWithLines(ctx context.Context, id int64) (Entry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes operations available within a posting transaction.
type TxRepository interface {
	NextDocumentNumber(ctx context.Context, prefix string, date time.Time) (string, error)
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	GetForUpdate(ctx context.Context, id int64) (Entry, error)
	GetLines(ctx context.Context, entryID int64) ([]Line, error)
	UpdateHeader(ctx context.Context, e Entry) error
	DeleteLines(ctx context.Context, entryID int64) error
	DeleteEntry(ctx context.Context, entryID int64) error
	MarkPosted(ctx context.Context, entryID, actorID int64, at time.Time) error
	MarkReversed(ctx context.Context, entryID, reversalEntryID int64, at time.Time) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	AccountActive(ctx context.Context, accountID int64) (bool, error)
	RecomputeAccountBalance(ctx context.Context, accountID int64) error
}

const entryColumns = `id, number, entry_date, description, entry_type, status, total_debit, total_credit,
source_module, source_id, created_by, created_at, updated_at, posted_by, posted_at, reversed_at, reversal_entry_id`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Number, &e.EntryDate, &e.Description, &e.Type, &e.Status, &e.TotalDebit, &e.TotalCredit,
		&e.SourceModule, &e.SourceID, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt, &e.PostedBy, &e.PostedAt, &e.ReversedAt, &e.ReversalEntryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("journal entry: %w", shared.ErrNotFound)
	}
	return e, err
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + entryColumns + ` FROM journal_entries
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR entry_type = $2)
  AND ($3::date IS NULL OR entry_date >= $3)
  AND ($4::date IS NULL OR entry_date <= $4)
ORDER BY entry_date DESC, id DESC
LIMIT $5 OFFSET $6`
	rows, err := r.db.Query(ctx, query, string(filter.Status), string(filter.Type), nullTime(filter.From), nullTime(filter.To), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetWithLines(ctx context.Context, id int64) (Entry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		return Entry{}, err
	}
	lines, err := queryLines(ctx, r.db, id)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
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

func queryLines(ctx context.Context, q querier, entryID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT l.id, l.journal_entry_id, l.account_id, a.code, a.name,
l.debit_amount, l.credit_amount, l.partner_type, l.partner_id, l.created_at
FROM journal_lines l
JOIN accounts a ON a.id = l.account_id
WHERE l.journal_entry_id=$1 ORDER BY l.id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.AccountCode, &line.AccountName,
			&line.DebitAmount, &line.CreditAmount, &line.PartnerKind, &line.PartnerID, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NextDocumentNumber issues the next PREFIX-YYYYMMDD-NNNN number from the
// doc_sequences table. The upsert increments under the row lock, so two
// concurrent postings can never mint the same number.
func (r *txRepository) NextDocumentNumber(ctx context.Context, prefix string, date time.Time) (string, error) {
	return nextDocumentNumber(ctx, r.tx, prefix, date)
}

func nextDocumentNumber(ctx context.Context, tx pgx.Tx, prefix string, date time.Time) (string, error) {
	var counter int64
	err := tx.QueryRow(ctx, `INSERT INTO doc_sequences (prefix, seq_date, counter) VALUES ($1,$2,1)
ON CONFLICT (prefix, seq_date) DO UPDATE SET counter = doc_sequences.counter + 1
RETURNING counter`, prefix, date.Format("2006-01-02")).Scan(&counter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, date.Format("20060102"), counter), nil
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(number, entry_date, description, entry_type, status, total_debit, total_credit, source_module, source_id, created_by, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at, updated_at`,
		e.Number, e.EntryDate, e.Description, e.Type, e.Status, e.TotalDebit, e.TotalCredit,
		e.SourceModule, e.SourceID, e.CreatedBy, e.PostedBy, e.PostedAt)
	if err := row.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (journal_entry_id, account_id, debit_amount, credit_amount, partner_type, partner_id)
VALUES ($1,$2,$3,$4,$5,$6)`, entryID, line.AccountID, shared.Round2(line.Debit), shared.Round2(line.Credit), line.PartnerKind, line.PartnerID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Entry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) GetLines(ctx context.Context, entryID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, entryID)
}

func (r *txRepository) UpdateHeader(ctx context.Context, e Entry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET entry_date=$2, description=$3, total_debit=$4, total_credit=$5, updated_at=NOW() WHERE id=$1`,
		e.ID, e.EntryDate, e.Description, e.TotalDebit, e.TotalCredit)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("journal entry %d: %w", e.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) DeleteLines(ctx context.Context, entryID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE journal_entry_id=$1`, entryID)
	return err
}

func (r *txRepository) DeleteEntry(ctx context.Context, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("journal entry %d: %w", entryID, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) MarkPosted(ctx context.Context, entryID, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, posted_by=$3, posted_at=$4, updated_at=NOW() WHERE id=$1`,
		entryID, StatusPosted, actorID, at)
	return err
}

func (r *txRepository) MarkReversed(ctx context.Context, entryID, reversalEntryID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, reversed_at=$3, reversal_entry_id=$4, updated_at=NOW() WHERE id=$1`,
		entryID, StatusReversed, at, reversalEntryID)
	return err
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
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

func (r *txRepository) AccountActive(ctx context.Context, accountID int64) (bool, error) {
	var active bool
	err := r.tx.QueryRow(ctx, `SELECT is_active FROM accounts WHERE id=$1`, accountID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return active, err
}

// RecomputeAccountBalance rewrites the cached current_balance from posted
// lines. The aggregate mirrors the registry's recompute; it lives here too so
// the write happens inside the posting transaction.
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

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
