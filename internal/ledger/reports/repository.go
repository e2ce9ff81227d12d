package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads aggregated posted activity. All queries filter on
// journal entry status POSTED; drafts and reversed originals still carry
// their lines, but a reversal's swapped lines cancel them out.
type Repository interface {
	TrialBalanceRows(ctx context.Context, asOf time.Time) ([]TrialBalanceRow, error)
	SectionLines(ctx context.Context, accountType string, asOf time.Time) ([]SectionLine, error)
	RangeActivity(ctx context.Context, accountType string, from, to time.Time) ([]SectionLine, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) TrialBalanceRows(ctx context.Context, asOf time.Time) ([]TrialBalanceRow, error) {
	const query = `
SELECT a.id, a.code, a.name, a.type, a.opening_balance,
	COALESCE(SUM(l.debit_amount), 0) AS debit_total,
	COALESCE(SUM(l.credit_amount), 0) AS credit_total
FROM accounts a
LEFT JOIN (journal_lines l
	JOIN journal_entries e ON e.id = l.journal_entry_id AND e.status = 'POSTED' AND e.entry_date <= $1
) ON l.account_id = a.id
WHERE a.is_active
GROUP BY a.id, a.code, a.name, a.type, a.opening_balance
ORDER BY a.code`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		if err := rows.Scan(&row.AccountID, &row.Code, &row.Name, &row.Type, &row.Opening, &row.DebitTotal, &row.CreditTotal); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SectionLines returns closing balances per account of one type as of a date,
// signed by the normal-balance convention.
func (r *repository) SectionLines(ctx context.Context, accountType string, asOf time.Time) ([]SectionLine, error) {
	const query = `
SELECT a.id, a.code, a.name,
	a.opening_balance + COALESCE(SUM(CASE WHEN a.type IN ('ASSET','EXPENSE')
		THEN l.debit_amount - l.credit_amount
		ELSE l.credit_amount - l.debit_amount END), 0) AS amount
FROM accounts a
LEFT JOIN (journal_lines l
	JOIN journal_entries e ON e.id = l.journal_entry_id AND e.status = 'POSTED' AND e.entry_date <= $2
) ON l.account_id = a.id
WHERE a.is_active AND a.type = $1
GROUP BY a.id, a.code, a.name, a.opening_balance
ORDER BY a.code`
	return r.queryLines(ctx, query, accountType, asOf)
}

// RangeActivity returns signed net movement per account of one type within a
// date range, ignoring opening balances. Used by the profit and loss report.
func (r *repository) RangeActivity(ctx context.Context, accountType string, from, to time.Time) ([]SectionLine, error) {
	const query = `
SELECT a.id, a.code, a.name,
	COALESCE(SUM(CASE WHEN a.type IN ('ASSET','EXPENSE')
		THEN l.debit_amount - l.credit_amount
		ELSE l.credit_amount - l.debit_amount END), 0) AS amount
FROM accounts a
LEFT JOIN (journal_lines l
	JOIN journal_entries e ON e.id = l.journal_entry_id
		AND e.status = 'POSTED' AND e.entry_date >= $2 AND e.entry_date <= $3
) ON l.account_id = a.id
WHERE a.is_active AND a.type = $1
GROUP BY a.id, a.code, a.name
ORDER BY a.code`
	return r.queryLines(ctx, query, accountType, from, to)
}

func (r *repository) queryLines(ctx context.Context, query string, args ...any) ([]SectionLine, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SectionLine
	for rows.Next() {
		var line SectionLine
		if err := rows.Scan(&line.AccountID, &line.Code, &line.Name, &line.Amount); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
