package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/observability"
)

// CacheBumper invalidates derived report caches after a ledger mutation.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service is the ledger engine: it owns the draft/posted/reversed lifecycle
// and keeps account balances in step with postings.
type Service struct {
	repo    Repository
	bumper  CacheBumper
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithCacheBumper attaches report-cache invalidation.
func (s *Service) WithCacheBumper(b CacheBumper) {
	s.bumper = b
}

// WithMetrics attaches ledger counters.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	return s.repo.GetWithLines(ctx, id)
}

// CreateDraft validates and persists a draft entry with its lines atomically.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkAccounts(ctx, tx, in.Lines); err != nil {
			return err
		}
		number, err := tx.NextDocumentNumber(ctx, "JE", in.Date)
		if err != nil {
			return err
		}
		debit, credit := in.Totals()
		inserted, err := tx.InsertEntry(ctx, Entry{
			Number:       number,
			EntryDate:    in.Date,
			Description:  in.Description,
			Type:         in.Type,
			Status:       StatusDraft,
			TotalDebit:   debit,
			TotalCredit:  credit,
			SourceModule: in.SourceModule,
			SourceID:     in.SourceID,
			CreatedBy:    in.CreatedBy,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, in.Lines); err != nil {
			return err
		}
		if in.SourceModule != "" && in.SourceID != uuid.Nil {
			if err := tx.LinkSource(ctx, in.SourceModule, in.SourceID, inserted.ID); err != nil {
				if errors.Is(err, shared.ErrSourceConflict) {
					return fmt.Errorf("%s/%s: %w", in.SourceModule, in.SourceID, shared.ErrSourceAlreadyLinked)
				}
				return err
			}
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return s.repo.GetWithLines(ctx, entry.ID)
}

// Update replaces a draft entry's lines wholesale under the same balancing
// rule. Posted and reversed entries are immutable.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Entry, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return fmt.Errorf("entry %s is %s: %w", entry.Number, entry.Status, shared.ErrInvalidState)
		}
		if in.Date != nil {
			entry.EntryDate = *in.Date
		}
		if in.Description != nil {
			entry.Description = *in.Description
		}
		draft := DraftInput{Date: entry.EntryDate, Description: entry.Description, Type: entry.Type, Lines: in.Lines}
		if err := draft.Validate(); err != nil {
			return err
		}
		if err := checkAccounts(ctx, tx, in.Lines); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, id, in.Lines); err != nil {
			return err
		}
		entry.TotalDebit, entry.TotalCredit = draft.Totals()
		return tx.UpdateHeader(ctx, entry)
	})
	if err != nil {
		return Entry{}, err
	}
	return s.repo.GetWithLines(ctx, id)
}

// Post commits a draft entry. Within one transaction the entry is stamped
// posted and every distinct touched account has its cached balance recomputed,
// so no reader observes a posted entry with stale balances.
func (s *Service) Post(ctx context.Context, id, actorID int64) (Entry, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return fmt.Errorf("entry %s is %s, only drafts can be posted: %w", entry.Number, entry.Status, shared.ErrInvalidState)
		}
		if err := tx.MarkPosted(ctx, id, actorID, s.now()); err != nil {
			return err
		}
		lines, err := tx.GetLines(ctx, id)
		if err != nil {
			return err
		}
		return recomputeTouched(ctx, tx, lines)
	})
	if err != nil {
		return Entry{}, err
	}
	s.metrics.EntryPosted()
	s.bump(ctx)
	return s.repo.GetWithLines(ctx, id)
}

// Reverse creates a debit/credit-swapped entry numbered REV-<original>, posts
// it immediately, and marks the original reversed. The original is never
// mutated beyond its status; reversal is additive so audit history survives.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (Entry, error) {
	if in.EntryID == 0 {
		return Entry{}, fmt.Errorf("entry id required: %w", shared.ErrValidation)
	}
	reversalDate := in.ReversalDate
	if reversalDate.IsZero() {
		reversalDate = s.now()
	}
	var reversal Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return fmt.Errorf("entry %s is %s, only posted entries can be reversed: %w", original.Number, original.Status, shared.ErrInvalidState)
		}
		lines, err := tx.GetLines(ctx, in.EntryID)
		if err != nil {
			return err
		}
		now := s.now()
		actorID := in.ActorID
		inserted, err := tx.InsertEntry(ctx, Entry{
			Number:      "REV-" + original.Number,
			EntryDate:   reversalDate,
			Description: reversalDescription(in.Reason, original.Number),
			Type:        original.Type,
			Status:      StatusPosted,
			TotalDebit:  original.TotalCredit,
			TotalCredit: original.TotalDebit,
			CreatedBy:   in.ActorID,
			PostedBy:    &actorID,
			PostedAt:    &now,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, swapLines(lines)); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID, inserted.ID, now); err != nil {
			return err
		}
		if err := recomputeTouched(ctx, tx, lines); err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.metrics.EntryReversed()
	s.bump(ctx)
	return s.repo.GetWithLines(ctx, reversal.ID)
}

// Delete removes a draft entry and its lines. Posted history is never deleted.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return fmt.Errorf("entry %s is %s, only drafts can be deleted: %w", entry.Number, entry.Status, shared.ErrInvalidState)
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		return tx.DeleteEntry(ctx, id)
	})
}

func (s *Service) bump(ctx context.Context) {
	if s.bumper != nil {
		_ = s.bumper.Bump(ctx)
	}
}

func checkAccounts(ctx context.Context, tx TxRepository, lines []LineInput) error {
	seen := make(map[int64]bool)
	for _, line := range lines {
		if seen[line.AccountID] {
			continue
		}
		seen[line.AccountID] = true
		active, err := tx.AccountActive(ctx, line.AccountID)
		if err != nil {
			return err
		}
		if !active {
			return fmt.Errorf("account %d missing or inactive: %w", line.AccountID, shared.ErrValidation)
		}
	}
	return nil
}

func recomputeTouched(ctx context.Context, tx TxRepository, lines []Line) error {
	seen := make(map[int64]bool)
	for _, line := range lines {
		if seen[line.AccountID] {
			continue
		}
		seen[line.AccountID] = true
		if err := tx.RecomputeAccountBalance(ctx, line.AccountID); err != nil {
			return err
		}
	}
	return nil
}

func swapLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.CreditAmount,
			Credit:      line.DebitAmount,
			PartnerKind: line.PartnerKind,
			PartnerID:   line.PartnerID,
		})
	}
	return out
}

func reversalDescription(reason, number string) string {
	if reason != "" {
		return fmt.Sprintf("Reversal of %s: %s", number, reason)
	}
	return fmt.Sprintf("Reversal of %s", number)
}
