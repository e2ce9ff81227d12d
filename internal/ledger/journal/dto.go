package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/partners"
)

// LineInput describes one leg of a draft entry.
type LineInput struct {
	AccountID   int64
	Debit       float64
	Credit      float64
	PartnerKind *partners.Kind
	PartnerID   *int64
}

// DraftInput groups fields required to create a draft entry.
type DraftInput struct {
	Date        time.Time
	Description string
	Type        EntryType
	CreatedBy   int64
	// SourceModule/SourceID link programmatic postings back to their origin
	// and make replays idempotent. Empty for manual entries.
	SourceModule string
	SourceID     uuid.UUID
	Lines        []LineInput
}

// Validate enforces the balanced-entry rule: every line carries exactly one
// positive side, and total debits equal total credits within tolerance.
func (in DraftInput) Validate() error {
	if in.Date.IsZero() {
		return fmt.Errorf("entry date required: %w", shared.ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("unknown entry type %q: %w", in.Type, shared.ErrValidation)
	}
	if len(in.Lines) < 2 {
		return fmt.Errorf("entry requires at least two lines: %w", shared.ErrUnbalancedEntry)
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("line %d missing account: %w", idx+1, shared.ErrValidation)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("line %d has a negative amount: %w", idx+1, shared.ErrUnbalancedEntry)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("line %d cannot carry both debit and credit: %w", idx+1, shared.ErrUnbalancedEntry)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return fmt.Errorf("line %d must carry a debit or a credit: %w", idx+1, shared.ErrUnbalancedEntry)
		}
		if line.PartnerKind != nil {
			ref := partners.Ref{Kind: *line.PartnerKind}
			if line.PartnerID != nil {
				ref.ID = *line.PartnerID
			}
			if err := ref.Validate(); err != nil {
				return fmt.Errorf("line %d: %w", idx+1, err)
			}
		}
		debit += line.Debit
		credit += line.Credit
	}
	if !shared.AmountsEqual(debit, credit) {
		return fmt.Errorf("debits %.2f do not equal credits %.2f: %w", debit, credit, shared.ErrUnbalancedEntry)
	}
	return nil
}

// Totals sums the line amounts, rounded to cents.
func (in DraftInput) Totals() (debit, credit float64) {
	for _, line := range in.Lines {
		debit += line.Debit
		credit += line.Credit
	}
	return shared.Round2(debit), shared.Round2(credit)
}

// UpdateInput replaces a draft entry's lines wholesale and optionally amends
// header fields.
type UpdateInput struct {
	Date        *time.Time
	Description *string
	Lines       []LineInput
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID      int64
	ActorID      int64
	Reason       string
	ReversalDate time.Time
}

// ListFilter narrows entry listings.
type ListFilter struct {
	Status EntryStatus
	Type   EntryType
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
