package banking

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/observability"
)

// BalancePort exposes the account registry's balance computation.
type BalancePort interface {
	CalculateBalance(ctx context.Context, accountID int64, asOf *time.Time) (float64, error)
}

// Service tracks running balances per bank account and reconciles
// transactions against bank statements.
type Service struct {
	repo     Repository
	balances BalancePort
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, balances BalancePort) *Service {
	return &Service{repo: repo, balances: balances, now: time.Now}
}

// WithMetrics attaches reconciliation counters.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) ListAccounts(ctx context.Context) ([]BankAccount, error) {
	return s.repo.ListAccounts(ctx)
}

func (s *Service) GetAccount(ctx context.Context, id int64) (BankAccount, error) {
	return s.repo.GetAccount(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]BankTransaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// CreateAccount registers a bank account. The linked ledger account must be an
// asset or liability node.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (BankAccount, error) {
	if err := in.Validate(); err != nil {
		return BankAccount{}, err
	}
	var created BankAccount
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accType, err := tx.LedgerAccountType(ctx, in.LedgerAccountID)
		if err != nil {
			return err
		}
		if accType != "ASSET" && accType != "LIABILITY" {
			return fmt.Errorf("ledger account must be asset or liability, got %s: %w", accType, shared.ErrValidation)
		}
		acc, err := tx.InsertAccount(ctx, in)
		if err != nil {
			return err
		}
		created = acc
		return nil
	})
	if err != nil {
		return BankAccount{}, err
	}
	return created, nil
}

// AppendTransaction adds a movement and continues the running balance. The
// bank account row is locked first: each balance derives from the previous
// transaction, so appends to one account must not interleave.
func (s *Service) AppendTransaction(ctx context.Context, in AppendInput) (BankTransaction, error) {
	if err := in.Validate(); err != nil {
		return BankTransaction{}, err
	}
	var created BankTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, in.BankAccountID)
		if err != nil {
			return err
		}
		previous, found, err := tx.LastRunningBalance(ctx, account.ID)
		if err != nil {
			return err
		}
		if !found {
			previous = account.OpeningBalance
		}
		txn, err := tx.InsertTransaction(ctx, BankTransaction{
			BankAccountID:   account.ID,
			TransactionDate: in.TransactionDate,
			Type:            in.Type,
			Amount:          shared.Round2(in.Amount),
			Description:     in.Description,
			RunningBalance:  shared.Round2(previous + in.Type.Signed(in.Amount)),
			JournalLineID:   in.JournalLineID,
		})
		if err != nil {
			return err
		}
		created = txn
		return nil
	})
	if err != nil {
		return BankTransaction{}, err
	}
	return created, nil
}

// UpdateTransaction amends an unreconciled transaction and rebuilds the
// account's running-balance chain.
func (s *Service) UpdateTransaction(ctx context.Context, id int64, in UpdateTransactionInput) (BankTransaction, error) {
	var updated BankTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if txn.IsReconciled {
			return fmt.Errorf("transaction %d is reconciled and immutable: %w", id, shared.ErrInvalidState)
		}
		if _, err := tx.GetAccountForUpdate(ctx, txn.BankAccountID); err != nil {
			return err
		}
		if in.TransactionDate != nil {
			txn.TransactionDate = *in.TransactionDate
		}
		if in.Type != nil {
			if !in.Type.Valid() {
				return fmt.Errorf("unknown transaction type %q: %w", *in.Type, shared.ErrValidation)
			}
			txn.Type = *in.Type
		}
		if in.Amount != nil {
			if *in.Amount <= 0 {
				return fmt.Errorf("amount must be positive: %w", shared.ErrValidation)
			}
			txn.Amount = shared.Round2(*in.Amount)
		}
		if in.Description != nil {
			txn.Description = *in.Description
		}
		if err := tx.UpdateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := tx.RebuildRunningBalances(ctx, txn.BankAccountID); err != nil {
			return err
		}
		updated = txn
		return nil
	})
	if err != nil {
		return BankTransaction{}, err
	}
	return s.repo.GetTransaction(ctx, updated.ID)
}

// DeleteTransaction removes an unreconciled transaction and rebuilds the
// running-balance chain.
func (s *Service) DeleteTransaction(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if txn.IsReconciled {
			return fmt.Errorf("transaction %d is reconciled and immutable: %w", id, shared.ErrInvalidState)
		}
		if _, err := tx.GetAccountForUpdate(ctx, txn.BankAccountID); err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, id); err != nil {
			return err
		}
		return tx.RebuildRunningBalances(ctx, txn.BankAccountID)
	})
}

// Reconcile flags the listed transactions as confirmed against a statement
// and stamps the statement date and balance on the account. Every listed
// transaction must belong to the account and still be unreconciled.
func (s *Service) Reconcile(ctx context.Context, in ReconcileInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, in.BankAccountID)
		if err != nil {
			return err
		}
		for _, id := range in.TransactionIDs {
			txn, err := tx.GetTransactionForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if txn.BankAccountID != account.ID {
				return fmt.Errorf("transaction %d does not belong to bank account %d: %w", id, account.ID, shared.ErrValidation)
			}
			if txn.IsReconciled {
				return fmt.Errorf("transaction %d already reconciled: %w", id, shared.ErrValidation)
			}
		}
		if err := tx.MarkReconciled(ctx, in.TransactionIDs, in.StatementDate); err != nil {
			return err
		}
		return tx.StampStatement(ctx, account.ID, in.StatementDate, shared.Round2(in.StatementBalance))
	})
	if err != nil {
		return err
	}
	s.metrics.ReconciliationRun()
	return nil
}

// Summarize compares the ledger's view of the linked account with the sum of
// reconciled bank transactions, exposing drift between book and bank.
func (s *Service) Summarize(ctx context.Context, bankAccountID int64) (Summary, error) {
	account, err := s.repo.GetAccount(ctx, bankAccountID)
	if err != nil {
		return Summary{}, err
	}
	book, err := s.balances.CalculateBalance(ctx, account.LedgerAccountID, nil)
	if err != nil {
		return Summary{}, err
	}
	reconciled, err := s.repo.ReconciledBalance(ctx, bankAccountID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		BankAccountID:     bankAccountID,
		BookBalance:       book,
		ReconciledBalance: reconciled,
		Difference:        shared.Round2(book - reconciled),
	}, nil
}
