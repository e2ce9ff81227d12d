package journal

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/partners"
)

// EntryStatus enumerates the journal entry lifecycle.
// DRAFT entries are editable and deletable; POSTED entries affect balances and
// can only be undone by reversal; REVERSED is terminal.
type EntryStatus string

const (
	StatusDraft    EntryStatus = "DRAFT"
	StatusPosted   EntryStatus = "POSTED"
	StatusReversed EntryStatus = "REVERSED"
)

// EntryType classifies how an entry originated.
type EntryType string

const (
	TypeManual     EntryType = "MANUAL"
	TypeAutomatic  EntryType = "AUTOMATIC"
	TypeAdjustment EntryType = "ADJUSTMENT"
	TypeClosing    EntryType = "CLOSING"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case TypeManual, TypeAutomatic, TypeAdjustment, TypeClosing:
		return true
	}
	return false
}

// Entry is one atomic accounting transaction.
type Entry struct {
	ID           int64
	Number       string
	EntryDate    time.Time
	Description  string
	Type         EntryType
	Status       EntryStatus
	TotalDebit   float64
	TotalCredit  float64
	SourceModule string
	SourceID     uuid.UUID
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PostedBy     *int64
	PostedAt     *time.Time
	ReversedAt   *time.Time
	// ReversalEntryID points at the entry that cancels this one, once reversed.
	ReversalEntryID *int64
	Lines           []Line
}

// Line is one leg of an entry. Exactly one of DebitAmount or CreditAmount is
// positive; the other is zero.
type Line struct {
	ID           int64
	EntryID      int64
	AccountID    int64
	AccountCode  string
	AccountName  string
	DebitAmount  float64
	CreditAmount float64
	PartnerKind  *partners.Kind
	PartnerID    *int64
	CreatedAt    time.Time
}
