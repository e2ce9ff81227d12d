package cashflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/banking"
	"github.com/meridian-erp/meridian/internal/ledger/journal"
	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/partners"
)

// memoryCashflowRepo fakes the settlement transaction surface: documents plus
// the duplicated journal and banking operations.
type memoryCashflowRepo struct {
	documents   map[int64]Document
	allocations map[int64][]Allocation
	entries     map[int64]journal.Entry
	entryLines  map[int64][]journal.Line
	bankTxns    map[int64]banking.BankTransaction
	bankAccts   map[int64]banking.BankAccount
	links       map[string]int64
	sequences   map[string]int64
	accounts    map[int64]bool
	recomputed  []int64
	nextID      int64
}

type memoryCashflowTx struct {
	repo *memoryCashflowRepo
}

func newMemoryCashflowRepo() *memoryCashflowRepo {
	return &memoryCashflowRepo{
		documents:   make(map[int64]Document),
		allocations: make(map[int64][]Allocation),
		entries:     make(map[int64]journal.Entry),
		entryLines:  make(map[int64][]journal.Line),
		bankTxns:    make(map[int64]banking.BankTransaction),
		bankAccts:   make(map[int64]banking.BankAccount),
		links:       make(map[string]int64),
		sequences:   make(map[string]int64),
		accounts:    make(map[int64]bool),
	}
}

func (r *memoryCashflowRepo) seedBankAccount(acc banking.BankAccount) banking.BankAccount {
	r.nextID++
	acc.ID = r.nextID
	acc.IsActive = true
	r.bankAccts[acc.ID] = acc
	return acc
}

func (r *memoryCashflowRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryCashflowTx{repo: r})
}

func (r *memoryCashflowRepo) Get(ctx context.Context, id int64) (Document, error) {
	doc, ok := r.documents[id]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	doc.Allocations = r.allocations[id]
	return doc, nil
}

func (r *memoryCashflowRepo) List(ctx context.Context, filter ListFilter) ([]Document, error) {
	var out []Document
	for _, doc := range r.documents {
		if filter.Direction != "" && doc.Direction != filter.Direction {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (t *memoryCashflowTx) NextDocumentNumber(ctx context.Context, prefix string, date time.Time) (string, error) {
	key := prefix + date.Format("20060102")
	t.repo.sequences[key]++
	return fmt.Sprintf("%s-%s-%04d", prefix, date.Format("20060102"), t.repo.sequences[key]), nil
}

func (t *memoryCashflowTx) InsertDocument(ctx context.Context, d Document) (Document, error) {
	t.repo.nextID++
	d.ID = t.repo.nextID
	t.repo.documents[d.ID] = d
	return d, nil
}

func (t *memoryCashflowTx) InsertAllocations(ctx context.Context, documentID int64, allocs []AllocationInput) error {
	for _, in := range allocs {
		t.repo.nextID++
		t.repo.allocations[documentID] = append(t.repo.allocations[documentID], Allocation{
			ID: t.repo.nextID, DocumentID: documentID,
			ReferenceType: in.ReferenceType, ReferenceID: in.ReferenceID, Amount: shared.Round2(in.Amount),
		})
	}
	return nil
}

func (t *memoryCashflowTx) GetForUpdate(ctx context.Context, id int64) (Document, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryCashflowTx) MarkPending(ctx context.Context, id int64) error {
	doc := t.repo.documents[id]
	doc.Status = StatusPending
	t.repo.documents[id] = doc
	return nil
}

func (t *memoryCashflowTx) MarkApproved(ctx context.Context, id, approverID int64, at time.Time, notes string) error {
	doc := t.repo.documents[id]
	doc.Status = StatusApproved
	doc.ApprovedBy = &approverID
	doc.ApprovedAt = &at
	doc.ApprovalNotes = notes
	t.repo.documents[id] = doc
	return nil
}

func (t *memoryCashflowTx) MarkSettled(ctx context.Context, id int64, status DocumentStatus, actorID int64, at time.Time, entryID, bankTxnID int64) error {
	doc := t.repo.documents[id]
	doc.Status = status
	doc.SettledBy = &actorID
	doc.SettledAt = &at
	doc.JournalEntryID = &entryID
	doc.BankTransactionID = &bankTxnID
	t.repo.documents[id] = doc
	return nil
}

func (t *memoryCashflowTx) MarkCancelled(ctx context.Context, id int64, at time.Time) error {
	doc := t.repo.documents[id]
	doc.Status = StatusCancelled
	doc.CancelledAt = &at
	t.repo.documents[id] = doc
	return nil
}

func (t *memoryCashflowTx) DeleteAllocations(ctx context.Context, documentID int64) error {
	delete(t.repo.allocations, documentID)
	return nil
}

func (t *memoryCashflowTx) DeleteDocument(ctx context.Context, id int64) error {
	if _, ok := t.repo.documents[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.repo.documents, id)
	return nil
}

func (t *memoryCashflowTx) AccountActive(ctx context.Context, accountID int64) (bool, error) {
	return t.repo.accounts[accountID], nil
}

func (t *memoryCashflowTx) InsertJournalEntry(ctx context.Context, e journal.Entry) (journal.Entry, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	t.repo.entries[e.ID] = e
	return e, nil
}

func (t *memoryCashflowTx) InsertJournalLine(ctx context.Context, entryID int64, line journal.LineInput) (int64, error) {
	t.repo.nextID++
	t.repo.entryLines[entryID] = append(t.repo.entryLines[entryID], journal.Line{
		ID: t.repo.nextID, EntryID: entryID, AccountID: line.AccountID,
		DebitAmount: shared.Round2(line.Debit), CreditAmount: shared.Round2(line.Credit),
		PartnerKind: line.PartnerKind, PartnerID: line.PartnerID,
	})
	return t.repo.nextID, nil
}

func (t *memoryCashflowTx) LinkJournalSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	key := module + "/" + ref.String()
	if _, exists := t.repo.links[key]; exists {
		return shared.ErrSourceConflict
	}
	t.repo.links[key] = entryID
	return nil
}

func (t *memoryCashflowTx) RecomputeAccountBalance(ctx context.Context, accountID int64) error {
	t.repo.recomputed = append(t.repo.recomputed, accountID)
	return nil
}

func (t *memoryCashflowTx) GetBankAccountForUpdate(ctx context.Context, id int64) (banking.BankAccount, error) {
	acc, ok := t.repo.bankAccts[id]
	if !ok {
		return banking.BankAccount{}, shared.ErrNotFound
	}
	return acc, nil
}

func (t *memoryCashflowTx) LastRunningBalance(ctx context.Context, bankAccountID int64) (float64, bool, error) {
	var last *banking.BankTransaction
	for id := range t.repo.bankTxns {
		txn := t.repo.bankTxns[id]
		if txn.BankAccountID != bankAccountID {
			continue
		}
		if last == nil || txn.ID > last.ID {
			last = &txn
		}
	}
	if last == nil {
		return 0, false, nil
	}
	return last.RunningBalance, true, nil
}

func (t *memoryCashflowTx) InsertBankTransaction(ctx context.Context, txn banking.BankTransaction) (banking.BankTransaction, error) {
	t.repo.nextID++
	txn.ID = t.repo.nextID
	t.repo.bankTxns[txn.ID] = txn
	return txn, nil
}

// staticResolver resolves only the partners it was seeded with.
type staticResolver struct {
	known map[partners.Ref]string
}

func (r staticResolver) Resolve(ctx context.Context, ref partners.Ref) (partners.Partner, error) {
	if ref.Kind == partners.KindOther {
		return partners.Partner{Kind: ref.Kind, ID: ref.ID}, nil
	}
	name, ok := r.known[ref]
	if !ok {
		return partners.Partner{}, fmt.Errorf("%s %d: %w", ref.Kind, ref.ID, shared.ErrNotFound)
	}
	return partners.Partner{Kind: ref.Kind, ID: ref.ID, Name: name}, nil
}

// recordingReverser stands in for the ledger engine during cancellation.
type recordingReverser struct {
	reversed []int64
	err      error
}

func (r *recordingReverser) Reverse(ctx context.Context, in journal.ReverseInput) (journal.Entry, error) {
	if r.err != nil {
		return journal.Entry{}, r.err
	}
	r.reversed = append(r.reversed, in.EntryID)
	return journal.Entry{ID: in.EntryID + 1000, Status: journal.StatusPosted}, nil
}

const (
	contraAccount = int64(500)
	ledgerAccount = int64(10)
)

type fixture struct {
	repo     *memoryCashflowRepo
	svc      *Service
	reverser *recordingReverser
	bank     banking.BankAccount
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryCashflowRepo()
	repo.accounts[contraAccount] = true
	repo.accounts[ledgerAccount] = true
	bank := repo.seedBankAccount(banking.BankAccount{Name: "Operating", LedgerAccountID: ledgerAccount, OpeningBalance: 1000})
	reverser := &recordingReverser{}
	resolver := staticResolver{known: map[partners.Ref]string{
		{Kind: partners.KindSupplier, ID: 3}: "Acme Supplies",
	}}
	svc := NewService(repo, resolver, reverser)
	svc.WithNow(func() time.Time { return time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC) })
	return &fixture{repo: repo, svc: svc, reverser: reverser, bank: bank}
}

func (f *fixture) paymentInput() CreateInput {
	bankID := f.bank.ID
	return CreateInput{
		Direction:       DirectionOutbound,
		Purpose:         PurposeSupplierPayment,
		Method:          MethodBankTransfer,
		Amount:          300,
		Date:            time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC),
		Description:     "June materials",
		Partner:         &partners.Ref{Kind: partners.KindSupplier, ID: 3},
		BankAccountID:   &bankID,
		ContraAccountID: contraAccount,
		CreatedBy:       9,
	}
}

func (f *fixture) receiptInput() CreateInput {
	bankID := f.bank.ID
	return CreateInput{
		Direction:       DirectionInbound,
		Purpose:         PurposeSaleReceipt,
		Method:          MethodCash,
		Amount:          120,
		Date:            time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC),
		Description:     "Walk-in sale",
		BankAccountID:   &bankID,
		ContraAccountID: contraAccount,
		CreatedBy:       9,
	}
}

func TestCreateAssignsNumberByDirection(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.Create(context.Background(), f.paymentInput())
	require.NoError(t, err)
	require.Equal(t, "PAY-20260610-0001", payment.Number)
	require.Equal(t, StatusDraft, payment.Status)
	require.NotEqual(t, uuid.Nil, payment.UID)

	receipt, err := f.svc.Create(context.Background(), f.receiptInput())
	require.NoError(t, err)
	require.Equal(t, "RCV-20260610-0001", receipt.Number)
}

func TestCreateRejectsUnknownPartner(t *testing.T) {
	f := newFixture(t)

	in := f.paymentInput()
	in.Partner = &partners.Ref{Kind: partners.KindSupplier, ID: 99}
	_, err := f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRejectsPurposeDirectionMismatch(t *testing.T) {
	f := newFixture(t)

	in := f.paymentInput()
	in.Purpose = PurposeSaleReceipt
	_, err := f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRejectsOverAllocation(t *testing.T) {
	f := newFixture(t)

	in := f.receiptInput()
	in.Allocations = []AllocationInput{
		{ReferenceType: "SALE", ReferenceID: 1, Amount: 100},
		{ReferenceType: "SALE", ReferenceID: 2, Amount: 30},
	}
	_, err := f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)

	// Allocations are receipt-only.
	out := f.paymentInput()
	out.Allocations = []AllocationInput{{ReferenceType: "PURCHASE", ReferenceID: 1, Amount: 50}}
	_, err = f.svc.Create(context.Background(), out)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestLifecycleDraftPendingApproved(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Create(context.Background(), f.paymentInput())
	require.NoError(t, err)

	doc, err = f.svc.Submit(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, doc.Status)

	_, err = f.svc.Submit(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	doc, err = f.svc.Approve(context.Background(), doc.ID, ApproveInput{ApproverID: 2, Notes: "ok"})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, doc.Status)
	require.NotNil(t, doc.ApprovedBy)
	require.Equal(t, int64(2), *doc.ApprovedBy)

	_, err = f.svc.Approve(context.Background(), doc.ID, ApproveInput{ApproverID: 2})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestApproveSkipsPendingForDrafts(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Create(context.Background(), f.paymentInput())
	require.NoError(t, err)

	doc, err = f.svc.Approve(context.Background(), doc.ID, ApproveInput{ApproverID: 2})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, doc.Status)
}

func TestMarkPaidSettlesAtomically(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Create(context.Background(), f.paymentInput())
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), doc.ID, ApproveInput{ApproverID: 2})
	require.NoError(t, err)

	settled, err := f.svc.MarkPaid(context.Background(), doc.ID, SettleInput{ActorID: 5})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, settled.Status)
	require.NotNil(t, settled.JournalEntryID)
	require.NotNil(t, settled.BankTransactionID)

	entry := f.repo.entries[*settled.JournalEntryID]
	require.Equal(t, journal.StatusPosted, entry.Status)
	require.Equal(t, journal.TypeAutomatic, entry.Type)
	require.Equal(t, SourcePayment, entry.SourceModule)
	require.Equal(t, doc.UID, entry.SourceID)

	lines := f.repo.entryLines[entry.ID]
	require.Len(t, lines, 2)
	require.Equal(t, contraAccount, lines[0].AccountID)
	require.InDelta(t, 300.0, lines[0].DebitAmount, 0.001)
	require.Equal(t, ledgerAccount, lines[1].AccountID)
	require.InDelta(t, 300.0, lines[1].CreditAmount, 0.001)

	txn := f.repo.bankTxns[*settled.BankTransactionID]
	require.Equal(t, banking.TransactionDebit, txn.Type)
	require.InDelta(t, 700.0, txn.RunningBalance, 0.001)
	require.NotNil(t, txn.JournalLineID)
	require.Equal(t, lines[1].ID, *txn.JournalLineID)

	require.ElementsMatch(t, []int64{contraAccount, ledgerAccount}, f.repo.recomputed)
}

func TestMarkDepositedMirrorsSides(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Create(context.Background(), f.receiptInput())
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), doc.ID, ApproveInput{ApproverID: 2})
	require.NoError(t, err)

	settled, err := f.svc.MarkDeposited(context.Background(), doc.ID, SettleInput{ActorID: 5})
	require.NoError(t, err)
	require.Equal(t, StatusDeposited, settled.Status)

	lines := f.repo.entryLines[*settled.JournalEntryID]
	require.Len(t, lines, 2)
	require.Equal(t, ledgerAccount, lines[0].AccountID)
	require.InDelta(t, 120.0, lines[0].DebitAmount, 0.001)
	require.Equal(t, contraAccount, lines[1].AccountID)
	require.InDelta(t, 120.0, lines[1].CreditAmount, 0.001)

	txn := f.repo.bankTxns[*settled.BankTransactionID]
	require.Equal(t, banking.TransactionCredit, txn.Type)
	require.InDelta(t, 1120.0, txn.RunningBalance, 0.001)
}

func TestSettleGuards(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Create(context.Background(), f.paymentInput())
	require.NoError(t, err)

	// Only approved documents settle.
	_, err = f.svc.MarkPaid(context.Background(), doc.ID, SettleInput{ActorID: 5})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// A payment cannot be deposited.
	_, err = f.svc.MarkDeposited(context.Background(), doc.ID, SettleInput{ActorID: 5})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Approve(context.Background(), doc.ID, ApproveInput{ApproverID: 2})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(context.Background(), doc.ID, SettleInput{ActorID: 5})
	require.NoError(t, err)

	// Settling twice hits the invalid-state guard before the source link.
	_, err = f.svc.MarkPaid(context.Background(), doc.ID, SettleInput{ActorID: 5})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSettleRequiresBankAccount(t *testing.T) {
	f := newFixture(t)

	in := f.paymentInput()
	in.BankAccountID = nil
	doc, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), doc.ID, ApproveInput{ApproverID: 2})
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(context.Background(), doc.ID, SettleInput{ActorID: 5})
	require.ErrorIs(t, err, shared.ErrValidation)

	// A settle-time override fills the gap.
	bankID := f.bank.ID
	settled, err := f.svc.MarkPaid(context.Background(), doc.ID, SettleInput{ActorID: 5, BankAccountID: &bankID})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, settled.Status)
}

func TestCancelUnsettledDocument(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Create(context.Background(), f.paymentInput())
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), doc.ID, CancelInput{ActorID: 5, Reason: "mistake"})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.Empty(t, f.reverser.reversed)

	_, err = f.svc.Cancel(context.Background(), doc.ID, CancelInput{ActorID: 5})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCancelSettledDocumentReversesEntry(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Create(context.Background(), f.paymentInput())
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), doc.ID, ApproveInput{ApproverID: 2})
	require.NoError(t, err)
	settled, err := f.svc.MarkPaid(context.Background(), doc.ID, SettleInput{ActorID: 5})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), doc.ID, CancelInput{ActorID: 5, Reason: "wrong supplier"})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, []int64{*settled.JournalEntryID}, f.reverser.reversed)
}

func TestCancelToleratesAlreadyReversedEntry(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Create(context.Background(), f.paymentInput())
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), doc.ID, ApproveInput{ApproverID: 2})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(context.Background(), doc.ID, SettleInput{ActorID: 5})
	require.NoError(t, err)

	f.reverser.err = fmt.Errorf("entry already reversed: %w", shared.ErrInvalidState)
	cancelled, err := f.svc.Cancel(context.Background(), doc.ID, CancelInput{ActorID: 5})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestDeleteRejectsSettledDocument(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Create(context.Background(), f.paymentInput())
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), doc.ID, ApproveInput{ApproverID: 2})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(context.Background(), doc.ID, SettleInput{ActorID: 5})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(context.Background(), doc.ID), shared.ErrInvalidState)
}

func TestDeleteRemovesDraftWithAllocations(t *testing.T) {
	f := newFixture(t)

	in := f.receiptInput()
	in.Allocations = []AllocationInput{{ReferenceType: "SALE", ReferenceID: 4, Amount: 120}}
	doc, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, doc.Allocations, 1)

	require.NoError(t, f.svc.Delete(context.Background(), doc.ID))
	_, err = f.svc.Get(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
