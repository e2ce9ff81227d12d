package banking

import "time"

// TransactionType enumerates bank transaction directions.
// CREDIT increases the bank balance, DEBIT decreases it.
type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionDebit || t == TransactionCredit
}

// Signed returns amount with the sign the type applies to a bank balance.
func (t TransactionType) Signed(amount float64) float64 {
	if t == TransactionDebit {
		return -amount
	}
	return amount
}

// BankAccount models a physical bank account mirrored in the ledger.
type BankAccount struct {
	ID            int64
	Name          string
	AccountNumber string
	BankName      string
	// LedgerAccountID points at the chart-of-accounts node carrying this
	// account's book balance; must be an asset or liability account.
	LedgerAccountID      int64
	OpeningBalance       float64
	OpeningDate          time.Time
	LastReconciledDate   *time.Time
	LastStatementBalance *float64
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// BankTransaction is one movement on a bank account. RunningBalance is the
// cumulative balance immediately after this transaction, computed in
// (transaction_date, id) order. Reconciled transactions are immutable.
type BankTransaction struct {
	ID              int64
	BankAccountID   int64
	TransactionDate time.Time
	Type            TransactionType
	Amount          float64
	Description     string
	RunningBalance  float64
	IsReconciled    bool
	ReconciledDate  *time.Time
	JournalLineID   *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Summary compares the book view with the reconciled bank view.
type Summary struct {
	BankAccountID     int64
	BookBalance       float64
	ReconciledBalance float64
	Difference        float64
}
