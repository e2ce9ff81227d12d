package cashflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/banking"
	"github.com/meridian-erp/meridian/internal/ledger/journal"
	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/partners"
)

// Source modules recorded on journal entries settled from here. One link per
// document UID makes settlement replay-safe.
const (
	SourcePayment = "CASHFLOW.PAYMENT"
	SourceReceipt = "CASHFLOW.RECEIPT"
)

// ReversalPort reverses a posted journal entry. Satisfied by journal.Service.
type ReversalPort interface {
	Reverse(ctx context.Context, in journal.ReverseInput) (journal.Entry, error)
}

// Service drives the payment/receipt document lifecycle. Settlement writes the
// document, a two-line posted journal entry and the bank transaction in a
// single transaction; cancellation of a settled document reverses the entry
// rather than deleting it.
type Service struct {
	repo     Repository
	partners partners.Resolver
	ledger   ReversalPort
	bumper   journal.CacheBumper
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, resolver partners.Resolver, ledger ReversalPort) *Service {
	return &Service{repo: repo, partners: resolver, ledger: ledger, now: time.Now}
}

// WithCacheBumper attaches report-cache invalidation.
func (s *Service) WithCacheBumper(b journal.CacheBumper) {
	s.bumper = b
}

// WithMetrics attaches settlement counters.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and persists a draft document with its allocations.
// The counterparty reference is resolved up front so a dangling partner never
// reaches the ledger.
func (s *Service) Create(ctx context.Context, in CreateInput) (Document, error) {
	if err := in.Validate(); err != nil {
		return Document{}, err
	}
	doc := Document{
		UID:             uuid.New(),
		Direction:       in.Direction,
		Purpose:         in.Purpose,
		Method:          in.Method,
		Status:          StatusDraft,
		Amount:          shared.Round2(in.Amount),
		DocDate:         in.Date,
		Description:     in.Description,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
		BankAccountID:   in.BankAccountID,
		ContraAccountID: in.ContraAccountID,
		CreatedBy:       in.CreatedBy,
	}
	if in.Partner != nil {
		if _, err := s.partners.Resolve(ctx, *in.Partner); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return Document{}, fmt.Errorf("%s %d not found: %w", in.Partner.Kind, in.Partner.ID, shared.ErrValidation)
			}
			return Document{}, err
		}
		kind := in.Partner.Kind
		id := in.Partner.ID
		doc.PartnerKind = &kind
		doc.PartnerID = &id
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		active, err := tx.AccountActive(ctx, in.ContraAccountID)
		if err != nil {
			return err
		}
		if !active {
			return fmt.Errorf("contra account %d missing or inactive: %w", in.ContraAccountID, shared.ErrValidation)
		}
		number, err := tx.NextDocumentNumber(ctx, numberPrefix(in.Direction), in.Date)
		if err != nil {
			return err
		}
		doc.Number = number
		inserted, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		if err := tx.InsertAllocations(ctx, inserted.ID, in.Allocations); err != nil {
			return err
		}
		doc = inserted
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return s.repo.Get(ctx, doc.ID)
}

// Submit moves a draft to pending.
func (s *Service) Submit(ctx context.Context, id int64) (Document, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusDraft {
			return fmt.Errorf("document %s is %s, only drafts can be submitted: %w", doc.Number, doc.Status, shared.ErrInvalidState)
		}
		return tx.MarkPending(ctx, id)
	})
	if err != nil {
		return Document{}, err
	}
	return s.repo.Get(ctx, id)
}

// Approve authorizes a document for settlement. Drafts may be approved
// directly; the pending step is optional for operators with approval rights.
func (s *Service) Approve(ctx context.Context, id int64, in ApproveInput) (Document, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusDraft && doc.Status != StatusPending {
			return fmt.Errorf("document %s is %s, only draft or pending documents can be approved: %w", doc.Number, doc.Status, shared.ErrInvalidState)
		}
		return tx.MarkApproved(ctx, id, in.ApproverID, s.now(), in.Notes)
	})
	if err != nil {
		return Document{}, err
	}
	return s.repo.Get(ctx, id)
}

// MarkPaid settles an approved outbound document.
func (s *Service) MarkPaid(ctx context.Context, id int64, in SettleInput) (Document, error) {
	return s.settle(ctx, id, in, DirectionOutbound)
}

// MarkDeposited settles an approved inbound document.
func (s *Service) MarkDeposited(ctx context.Context, id int64, in SettleInput) (Document, error) {
	return s.settle(ctx, id, in, DirectionInbound)
}

// settle is the atomic core: under the document row lock it mints a journal
// number, inserts the posted two-line entry with its idempotency link,
// recomputes both touched account balances, appends the bank transaction
// under the bank account row lock, and stamps the document settled. A failure
// at any step rolls back the whole settlement.
func (s *Service) settle(ctx context.Context, id int64, in SettleInput, want Direction) (Document, error) {
	var direction Direction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Direction != want {
			return fmt.Errorf("document %s is %s: %w", doc.Number, doc.Direction, shared.ErrValidation)
		}
		if doc.Status != StatusApproved {
			return fmt.Errorf("document %s is %s, only approved documents can be settled: %w", doc.Number, doc.Status, shared.ErrInvalidState)
		}
		bankAccountID := doc.BankAccountID
		if in.BankAccountID != nil {
			bankAccountID = in.BankAccountID
		}
		if bankAccountID == nil {
			return fmt.Errorf("document %s has no bank account: %w", doc.Number, shared.ErrValidation)
		}
		bank, err := tx.GetBankAccountForUpdate(ctx, *bankAccountID)
		if err != nil {
			return err
		}
		if !bank.IsActive {
			return fmt.Errorf("bank account %s is inactive: %w", bank.Name, shared.ErrValidation)
		}
		for _, accountID := range []int64{doc.ContraAccountID, bank.LedgerAccountID} {
			active, err := tx.AccountActive(ctx, accountID)
			if err != nil {
				return err
			}
			if !active {
				return fmt.Errorf("account %d missing or inactive: %w", accountID, shared.ErrValidation)
			}
		}

		settleDate := in.SettleDate
		if settleDate.IsZero() {
			settleDate = s.now()
		}
		now := s.now()
		actor := in.ActorID
		amount := shared.Round2(doc.Amount)

		number, err := tx.NextDocumentNumber(ctx, "JE", settleDate)
		if err != nil {
			return err
		}
		entry, err := tx.InsertJournalEntry(ctx, journal.Entry{
			Number:       number,
			EntryDate:    settleDate,
			Description:  settleDescription(doc),
			Type:         journal.TypeAutomatic,
			Status:       journal.StatusPosted,
			TotalDebit:   amount,
			TotalCredit:  amount,
			SourceModule: sourceModule(doc.Direction),
			SourceID:     doc.UID,
			CreatedBy:    actor,
			PostedBy:     &actor,
			PostedAt:     &now,
		})
		if err != nil {
			return err
		}
		if err := tx.LinkJournalSource(ctx, sourceModule(doc.Direction), doc.UID, entry.ID); err != nil {
			if errors.Is(err, shared.ErrSourceConflict) {
				return fmt.Errorf("document %s: %w", doc.Number, shared.ErrSourceAlreadyLinked)
			}
			return err
		}

		// Outbound: debit the contra (expense/payable), credit the bank.
		// Inbound mirrors.
		debitAccount, creditAccount := doc.ContraAccountID, bank.LedgerAccountID
		if doc.Direction == DirectionInbound {
			debitAccount, creditAccount = bank.LedgerAccountID, doc.ContraAccountID
		}
		var bankLineID int64
		for _, line := range []journal.LineInput{
			{AccountID: debitAccount, Debit: amount, PartnerKind: doc.PartnerKind, PartnerID: doc.PartnerID},
			{AccountID: creditAccount, Credit: amount, PartnerKind: doc.PartnerKind, PartnerID: doc.PartnerID},
		} {
			lineID, err := tx.InsertJournalLine(ctx, entry.ID, line)
			if err != nil {
				return err
			}
			if line.AccountID == bank.LedgerAccountID {
				bankLineID = lineID
			}
		}
		for _, accountID := range []int64{debitAccount, creditAccount} {
			if err := tx.RecomputeAccountBalance(ctx, accountID); err != nil {
				return err
			}
		}

		previous := bank.OpeningBalance
		if last, ok, err := tx.LastRunningBalance(ctx, bank.ID); err != nil {
			return err
		} else if ok {
			previous = last
		}
		txnType := banking.TransactionDebit
		status := StatusPaid
		if doc.Direction == DirectionInbound {
			txnType = banking.TransactionCredit
			status = StatusDeposited
		}
		bankTxn, err := tx.InsertBankTransaction(ctx, banking.BankTransaction{
			BankAccountID:   bank.ID,
			TransactionDate: settleDate,
			Type:            txnType,
			Amount:          amount,
			Description:     doc.Number + " " + doc.Description,
			RunningBalance:  shared.Round2(previous + txnType.Signed(amount)),
			JournalLineID:   &bankLineID,
		})
		if err != nil {
			return err
		}
		direction = doc.Direction
		return tx.MarkSettled(ctx, doc.ID, status, actor, now, entry.ID, bankTxn.ID)
	})
	if err != nil {
		return Document{}, err
	}
	s.metrics.DocumentSettled(string(direction))
	s.bump(ctx)
	return s.repo.Get(ctx, id)
}

// Cancel voids a document. When a journal entry is linked it is reversed
// first; cancellation never deletes posted history.
func (s *Service) Cancel(ctx context.Context, id int64, in CancelInput) (Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.Status == StatusCancelled {
		return Document{}, fmt.Errorf("document %s is already cancelled: %w", doc.Number, shared.ErrInvalidState)
	}
	var reversedEntryID *int64
	if doc.JournalEntryID != nil {
		reason := in.Reason
		if reason == "" {
			reason = "cancellation of " + doc.Number
		}
		_, err := s.ledger.Reverse(ctx, journal.ReverseInput{EntryID: *doc.JournalEntryID, ActorID: in.ActorID, Reason: reason})
		// An entry already reversed out of band still permits cancellation.
		if err != nil && !errors.Is(err, shared.ErrInvalidState) {
			return Document{}, err
		}
		reversedEntryID = doc.JournalEntryID
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusCancelled {
			return fmt.Errorf("document %s is already cancelled: %w", current.Number, shared.ErrInvalidState)
		}
		// A settlement that raced in between was not reversed above.
		if current.JournalEntryID != nil && (reversedEntryID == nil || *current.JournalEntryID != *reversedEntryID) {
			return fmt.Errorf("document %s was settled concurrently: %w", current.Number, shared.ErrConflict)
		}
		return tx.MarkCancelled(ctx, id, s.now())
	})
	if err != nil {
		return Document{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes an unsettled document outright. Settled documents carry
// posted history and must be cancelled instead.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status.Settled() || doc.JournalEntryID != nil {
			return fmt.Errorf("document %s is settled, cancel it instead: %w", doc.Number, shared.ErrInvalidState)
		}
		if err := tx.DeleteAllocations(ctx, id); err != nil {
			return err
		}
		return tx.DeleteDocument(ctx, id)
	})
}

func (s *Service) bump(ctx context.Context) {
	if s.bumper != nil {
		_ = s.bumper.Bump(ctx)
	}
}

func numberPrefix(d Direction) string {
	if d == DirectionInbound {
		return "RCV"
	}
	return "PAY"
}

func sourceModule(d Direction) string {
	if d == DirectionInbound {
		return SourceReceipt
	}
	return SourcePayment
}

func settleDescription(d Document) string {
	verb := "Payment"
	if d.Direction == DirectionInbound {
		verb = "Receipt"
	}
	if d.Description == "" {
		return fmt.Sprintf("%s %s", verb, d.Number)
	}
	return fmt.Sprintf("%s %s: %s", verb, d.Number, d.Description)
}
