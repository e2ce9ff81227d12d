package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/observability"
)

// Runner executes the ledger verification jobs against the database.
type Runner struct {
	db      *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRunner constructs a Runner instance.
func NewRunner(db *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, logger: logger, metrics: metrics}
}

// HandleLedgerIntegrity checks every posted entry's lines against the
// balanced-entry rule and reports the number of violations.
func (r *Runner) HandleLedgerIntegrity(ctx context.Context, t *asynq.Task) error {
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	const query = `
SELECT e.id, e.number, SUM(l.debit_amount) AS debit, SUM(l.credit_amount) AS credit
FROM journal_entries e
JOIN journal_lines l ON l.journal_entry_id = e.id
WHERE e.status = 'POSTED'
GROUP BY e.id, e.number
HAVING ABS(SUM(l.debit_amount) - SUM(l.credit_amount)) > $1`
	rows, err := r.db.Query(ctx, query, shared.BalanceTolerance)
	if err != nil {
		return err
	}
	defer rows.Close()
	violations := 0
	for rows.Next() {
		var id int64
		var number string
		var debit, credit float64
		if err := rows.Scan(&id, &number, &debit, &credit); err != nil {
			return err
		}
		violations++
		r.logger.Error("unbalanced posted entry",
			slog.String("job", "ledger_integrity"),
			slog.Int64("entry_id", id),
			slog.String("number", number),
			slog.Float64("debit", debit),
			slog.Float64("credit", credit))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	r.metrics.SetIntegrityDrift(violations)
	r.logger.Info("ledger integrity scan finished",
		slog.String("job", "ledger_integrity"), slog.Int("violations", violations))
	return nil
}

// HandleBalanceRefresh recomputes current_balance for every account from
// posted lines. The recompute is idempotent, so overlap with an in-flight
// posting is harmless.
func (r *Runner) HandleBalanceRefresh(ctx context.Context, t *asynq.Task) error {
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	cmd, err := r.db.Exec(ctx, `
UPDATE accounts a SET current_balance = a.opening_balance + COALESCE((
	SELECT SUM(CASE WHEN a.type IN ('ASSET','EXPENSE')
		THEN l.debit_amount - l.credit_amount
		ELSE l.credit_amount - l.debit_amount END)
	FROM journal_lines l
	JOIN journal_entries e ON e.id = l.journal_entry_id
	WHERE l.account_id = a.id AND e.status = 'POSTED'
), 0), updated_at = NOW()`)
	if err != nil {
		return err
	}
	r.logger.Info("account balances refreshed",
		slog.String("job", "balance_refresh"), slog.Int64("accounts", cmd.RowsAffected()))
	return nil
}

// HandleReconDrift compares each bank account's reconciled balance against
// the last statement balance stamped at reconciliation time.
func (r *Runner) HandleReconDrift(ctx context.Context, t *asynq.Task) error {
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	const query = `
SELECT a.id, a.name, a.last_statement_balance,
	a.opening_balance + COALESCE((
		SELECT SUM(CASE WHEN t.type = 'CREDIT' THEN t.amount ELSE -t.amount END)
		FROM bank_transactions t
		WHERE t.bank_account_id = a.id AND t.is_reconciled
	), 0) AS reconciled
FROM bank_accounts a
WHERE a.is_active AND a.last_statement_balance IS NOT NULL`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	drifted := 0
	for rows.Next() {
		var id int64
		var name string
		var statement, reconciled float64
		if err := rows.Scan(&id, &name, &statement, &reconciled); err != nil {
			return err
		}
		if math.Abs(reconciled-statement) > shared.BalanceTolerance {
			drifted++
			r.logger.Warn("bank reconciliation drift",
				slog.String("job", "recon_drift"),
				slog.Int64("bank_account_id", id),
				slog.String("name", name),
				slog.Float64("statement_balance", statement),
				slog.Float64("reconciled_balance", reconciled))
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	r.logger.Info("reconciliation drift scan finished",
		slog.String("job", "recon_drift"), slog.Int("drifted", drifted))
	return nil
}
