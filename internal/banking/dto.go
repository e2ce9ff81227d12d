package banking

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// CreateAccountInput groups fields required to register a bank account.
type CreateAccountInput struct {
	Name            string
	AccountNumber   string
	BankName        string
	LedgerAccountID int64
	OpeningBalance  float64
	OpeningDate     time.Time
}

// Validate ensures the input meets minimum criteria.
func (in CreateAccountInput) Validate() error {
	if in.Name == "" {
		return fmt.Errorf("bank account name required: %w", shared.ErrValidation)
	}
	if in.LedgerAccountID == 0 {
		return fmt.Errorf("linked ledger account required: %w", shared.ErrValidation)
	}
	if in.OpeningDate.IsZero() {
		return fmt.Errorf("opening date required: %w", shared.ErrValidation)
	}
	return nil
}

// AppendInput describes a new bank transaction.
type AppendInput struct {
	BankAccountID   int64
	TransactionDate time.Time
	Type            TransactionType
	Amount          float64
	Description     string
	JournalLineID   *int64
}

// Validate ensures the input meets minimum criteria.
func (in AppendInput) Validate() error {
	if in.BankAccountID == 0 {
		return fmt.Errorf("bank account required: %w", shared.ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("unknown transaction type %q: %w", in.Type, shared.ErrValidation)
	}
	if in.Amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", shared.ErrValidation)
	}
	if in.TransactionDate.IsZero() {
		return fmt.Errorf("transaction date required: %w", shared.ErrValidation)
	}
	return nil
}

// UpdateTransactionInput amends an unreconciled transaction. Nil pointers
// leave the field unchanged.
type UpdateTransactionInput struct {
	TransactionDate *time.Time
	Type            *TransactionType
	Amount          *float64
	Description     *string
}

// ReconcileInput marks transactions as confirmed against a bank statement.
type ReconcileInput struct {
	BankAccountID    int64
	StatementDate    time.Time
	StatementBalance float64
	TransactionIDs   []int64
}

// Validate ensures the input meets minimum criteria.
func (in ReconcileInput) Validate() error {
	if in.BankAccountID == 0 {
		return fmt.Errorf("bank account required: %w", shared.ErrValidation)
	}
	if in.StatementDate.IsZero() {
		return fmt.Errorf("statement date required: %w", shared.ErrValidation)
	}
	if len(in.TransactionIDs) == 0 {
		return fmt.Errorf("at least one transaction required: %w", shared.ErrValidation)
	}
	return nil
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	BankAccountID  int64
	ReconciledOnly bool
	PendingOnly    bool
	From           time.Time
	To             time.Time
}
