// Package jobs runs scheduled background verification over the ledger and
// bank data: integrity scans, balance refreshes and reconciliation drift
// checks.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans posted entries for debit/credit drift.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskBalanceRefresh recomputes every account's cached balance.
	TaskBalanceRefresh = "ledger:balance_refresh"
	// TaskReconDrift compares reconciled bank balances with statements.
	TaskReconDrift = "bank:recon_drift"
)

// ScheduledPayload carries scheduling metadata shared by all cron tasks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity scan.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskLedgerIntegrity, at)
}

// NewBalanceRefreshTask constructs an Asynq task for the balance refresh.
func NewBalanceRefreshTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskBalanceRefresh, at)
}

// NewReconDriftTask constructs an Asynq task for the drift check.
func NewReconDriftTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskReconDrift, at)
}

func newScheduledTask(taskType string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}
