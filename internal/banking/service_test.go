package banking

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

type memoryBankRepo struct {
	accounts     map[int64]BankAccount
	transactions map[int64]BankTransaction
	ledgerTypes  map[int64]string
	nextID       int64
}

type memoryBankTx struct {
	repo *memoryBankRepo
}

func newMemoryBankRepo() *memoryBankRepo {
	return &memoryBankRepo{
		accounts:     make(map[int64]BankAccount),
		transactions: make(map[int64]BankTransaction),
		ledgerTypes:  make(map[int64]string),
	}
}

func (r *memoryBankRepo) seedAccount(acc BankAccount) BankAccount {
	r.nextID++
	acc.ID = r.nextID
	acc.IsActive = true
	r.accounts[acc.ID] = acc
	return acc
}

func (r *memoryBankRepo) ordered(bankAccountID int64) []BankTransaction {
	var out []BankTransaction
	for _, t := range r.transactions {
		if t.BankAccountID == bankAccountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.Before(out[j].TransactionDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *memoryBankRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryBankTx{repo: r})
}

func (r *memoryBankRepo) ListAccounts(ctx context.Context) ([]BankAccount, error) {
	var out []BankAccount
	for _, acc := range r.accounts {
		out = append(out, acc)
	}
	return out, nil
}

func (r *memoryBankRepo) GetAccount(ctx context.Context, id int64) (BankAccount, error) {
	acc, ok := r.accounts[id]
	if !ok {
		return BankAccount{}, shared.ErrNotFound
	}
	return acc, nil
}

func (r *memoryBankRepo) ListTransactions(ctx context.Context, filter TransactionFilter) ([]BankTransaction, error) {
	var out []BankTransaction
	for _, t := range r.ordered(filter.BankAccountID) {
		if filter.ReconciledOnly && !t.IsReconciled {
			continue
		}
		if filter.PendingOnly && t.IsReconciled {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *memoryBankRepo) GetTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	t, ok := r.transactions[id]
	if !ok {
		return BankTransaction{}, shared.ErrNotFound
	}
	return t, nil
}

func (r *memoryBankRepo) ReconciledBalance(ctx context.Context, bankAccountID int64) (float64, error) {
	acc, ok := r.accounts[bankAccountID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	balance := acc.OpeningBalance
	for _, t := range r.transactions {
		if t.BankAccountID == bankAccountID && t.IsReconciled {
			balance += t.Type.Signed(t.Amount)
		}
	}
	return balance, nil
}

func (t *memoryBankTx) InsertAccount(ctx context.Context, in CreateAccountInput) (BankAccount, error) {
	return t.repo.seedAccount(BankAccount{
		Name:            in.Name,
		AccountNumber:   in.AccountNumber,
		BankName:        in.BankName,
		LedgerAccountID: in.LedgerAccountID,
		OpeningBalance:  in.OpeningBalance,
		OpeningDate:     in.OpeningDate,
	}), nil
}

func (t *memoryBankTx) GetAccountForUpdate(ctx context.Context, id int64) (BankAccount, error) {
	return t.repo.GetAccount(ctx, id)
}

func (t *memoryBankTx) LedgerAccountType(ctx context.Context, accountID int64) (string, error) {
	accType, ok := t.repo.ledgerTypes[accountID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return accType, nil
}

func (t *memoryBankTx) LastRunningBalance(ctx context.Context, bankAccountID int64) (float64, bool, error) {
	txns := t.repo.ordered(bankAccountID)
	if len(txns) == 0 {
		return 0, false, nil
	}
	return txns[len(txns)-1].RunningBalance, true, nil
}

func (t *memoryBankTx) InsertTransaction(ctx context.Context, txn BankTransaction) (BankTransaction, error) {
	t.repo.nextID++
	txn.ID = t.repo.nextID
	t.repo.transactions[txn.ID] = txn
	return txn, nil
}

func (t *memoryBankTx) GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error) {
	return t.repo.GetTransaction(ctx, id)
}

func (t *memoryBankTx) UpdateTransaction(ctx context.Context, txn BankTransaction) error {
	if _, ok := t.repo.transactions[txn.ID]; !ok {
		return shared.ErrNotFound
	}
	t.repo.transactions[txn.ID] = txn
	return nil
}

func (t *memoryBankTx) DeleteTransaction(ctx context.Context, id int64) error {
	if _, ok := t.repo.transactions[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.repo.transactions, id)
	return nil
}

func (t *memoryBankTx) RebuildRunningBalances(ctx context.Context, bankAccountID int64) error {
	balance := t.repo.accounts[bankAccountID].OpeningBalance
	for _, txn := range t.repo.ordered(bankAccountID) {
		balance = shared.Round2(balance + txn.Type.Signed(txn.Amount))
		txn.RunningBalance = balance
		t.repo.transactions[txn.ID] = txn
	}
	return nil
}

func (t *memoryBankTx) MarkReconciled(ctx context.Context, ids []int64, date time.Time) error {
	for _, id := range ids {
		txn := t.repo.transactions[id]
		txn.IsReconciled = true
		txn.ReconciledDate = &date
		t.repo.transactions[id] = txn
	}
	return nil
}

func (t *memoryBankTx) StampStatement(ctx context.Context, bankAccountID int64, date time.Time, balance float64) error {
	acc := t.repo.accounts[bankAccountID]
	acc.LastReconciledDate = &date
	acc.LastStatementBalance = &balance
	t.repo.accounts[bankAccountID] = acc
	return nil
}

type fixedBalances struct {
	balance float64
}

func (f fixedBalances) CalculateBalance(ctx context.Context, accountID int64, asOf *time.Time) (float64, error) {
	return f.balance, nil
}

func day(d int) time.Time {
	return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateAccountRequiresAssetOrLiability(t *testing.T) {
	repo := newMemoryBankRepo()
	repo.ledgerTypes[10] = "ASSET"
	repo.ledgerTypes[40] = "REVENUE"
	svc := NewService(repo, fixedBalances{})

	in := CreateAccountInput{Name: "Operating", LedgerAccountID: 40, OpeningDate: day(1)}
	_, err := svc.CreateAccount(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in.LedgerAccountID = 10
	acc, err := svc.CreateAccount(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, int64(10), acc.LedgerAccountID)
}

func TestAppendTransactionContinuesRunningBalance(t *testing.T) {
	repo := newMemoryBankRepo()
	account := repo.seedAccount(BankAccount{Name: "Operating", OpeningBalance: 1000})
	svc := NewService(repo, fixedBalances{})

	first, err := svc.AppendTransaction(context.Background(), AppendInput{
		BankAccountID: account.ID, TransactionDate: day(2), Type: TransactionCredit, Amount: 250, Description: "Customer receipt",
	})
	require.NoError(t, err)
	require.InDelta(t, 1250.0, first.RunningBalance, 0.001)

	second, err := svc.AppendTransaction(context.Background(), AppendInput{
		BankAccountID: account.ID, TransactionDate: day(3), Type: TransactionDebit, Amount: 400, Description: "Supplier payment",
	})
	require.NoError(t, err)
	require.InDelta(t, 850.0, second.RunningBalance, 0.001)
}

func TestUpdateTransactionRebuildsChain(t *testing.T) {
	repo := newMemoryBankRepo()
	account := repo.seedAccount(BankAccount{Name: "Operating", OpeningBalance: 100})
	svc := NewService(repo, fixedBalances{})

	first, err := svc.AppendTransaction(context.Background(), AppendInput{
		BankAccountID: account.ID, TransactionDate: day(2), Type: TransactionCredit, Amount: 50,
	})
	require.NoError(t, err)
	second, err := svc.AppendTransaction(context.Background(), AppendInput{
		BankAccountID: account.ID, TransactionDate: day(3), Type: TransactionDebit, Amount: 30,
	})
	require.NoError(t, err)
	require.InDelta(t, 120.0, second.RunningBalance, 0.001)

	amount := 80.0
	_, err = svc.UpdateTransaction(context.Background(), first.ID, UpdateTransactionInput{Amount: &amount})
	require.NoError(t, err)

	rebuilt, err := repo.GetTransaction(context.Background(), second.ID)
	require.NoError(t, err)
	require.InDelta(t, 150.0, rebuilt.RunningBalance, 0.001)
}

func TestReconciledTransactionIsImmutable(t *testing.T) {
	repo := newMemoryBankRepo()
	account := repo.seedAccount(BankAccount{Name: "Operating"})
	svc := NewService(repo, fixedBalances{})

	txn, err := svc.AppendTransaction(context.Background(), AppendInput{
		BankAccountID: account.ID, TransactionDate: day(2), Type: TransactionCredit, Amount: 75,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Reconcile(context.Background(), ReconcileInput{
		BankAccountID: account.ID, StatementDate: day(5), StatementBalance: 75, TransactionIDs: []int64{txn.ID},
	}))

	amount := 80.0
	_, err = svc.UpdateTransaction(context.Background(), txn.ID, UpdateTransactionInput{Amount: &amount})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.ErrorIs(t, svc.DeleteTransaction(context.Background(), txn.ID), shared.ErrInvalidState)
}

func TestDeleteTransactionRebuildsChain(t *testing.T) {
	repo := newMemoryBankRepo()
	account := repo.seedAccount(BankAccount{Name: "Operating", OpeningBalance: 100})
	svc := NewService(repo, fixedBalances{})

	first, err := svc.AppendTransaction(context.Background(), AppendInput{
		BankAccountID: account.ID, TransactionDate: day(2), Type: TransactionDebit, Amount: 40,
	})
	require.NoError(t, err)
	second, err := svc.AppendTransaction(context.Background(), AppendInput{
		BankAccountID: account.ID, TransactionDate: day(3), Type: TransactionCredit, Amount: 10,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTransaction(context.Background(), first.ID))
	rebuilt, err := repo.GetTransaction(context.Background(), second.ID)
	require.NoError(t, err)
	require.InDelta(t, 110.0, rebuilt.RunningBalance, 0.001)
}

func TestReconcileValidatesOwnershipAndState(t *testing.T) {
	repo := newMemoryBankRepo()
	account := repo.seedAccount(BankAccount{Name: "Operating"})
	other := repo.seedAccount(BankAccount{Name: "Savings"})
	svc := NewService(repo, fixedBalances{})

	mine, err := svc.AppendTransaction(context.Background(), AppendInput{
		BankAccountID: account.ID, TransactionDate: day(2), Type: TransactionCredit, Amount: 20,
	})
	require.NoError(t, err)
	foreign, err := svc.AppendTransaction(context.Background(), AppendInput{
		BankAccountID: other.ID, TransactionDate: day(2), Type: TransactionCredit, Amount: 20,
	})
	require.NoError(t, err)

	err = svc.Reconcile(context.Background(), ReconcileInput{
		BankAccountID: account.ID, StatementDate: day(5), TransactionIDs: []int64{foreign.ID},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, svc.Reconcile(context.Background(), ReconcileInput{
		BankAccountID: account.ID, StatementDate: day(5), StatementBalance: 20, TransactionIDs: []int64{mine.ID},
	}))

	// Statement date and balance are stamped on the account.
	stamped, err := repo.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotNil(t, stamped.LastReconciledDate)
	require.True(t, stamped.LastReconciledDate.Equal(day(5)))
	require.NotNil(t, stamped.LastStatementBalance)
	require.InDelta(t, 20.0, *stamped.LastStatementBalance, 0.001)

	// Reconciling the same transaction twice is rejected.
	err = svc.Reconcile(context.Background(), ReconcileInput{
		BankAccountID: account.ID, StatementDate: day(6), TransactionIDs: []int64{mine.ID},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSummarizeReportsDrift(t *testing.T) {
	repo := newMemoryBankRepo()
	account := repo.seedAccount(BankAccount{Name: "Operating", LedgerAccountID: 10, OpeningBalance: 500})
	svc := NewService(repo, fixedBalances{balance: 650})

	txn, err := svc.AppendTransaction(context.Background(), AppendInput{
		BankAccountID: account.ID, TransactionDate: day(2), Type: TransactionCredit, Amount: 100,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Reconcile(context.Background(), ReconcileInput{
		BankAccountID: account.ID, StatementDate: day(5), StatementBalance: 600, TransactionIDs: []int64{txn.ID},
	}))

	summary, err := svc.Summarize(context.Background(), account.ID)
	require.NoError(t, err)
	require.InDelta(t, 650.0, summary.BookBalance, 0.001)
	require.InDelta(t, 600.0, summary.ReconciledBalance, 0.001)
	require.InDelta(t, 50.0, summary.Difference, 0.001)
}
