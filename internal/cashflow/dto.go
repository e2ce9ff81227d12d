package cashflow

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/partners"
)

// AllocationInput applies part of an inbound document against an invoice.
type AllocationInput struct {
	ReferenceType string
	ReferenceID   int64
	Amount        float64
}

// CreateInput groups fields required to create a document.
type CreateInput struct {
	Direction   Direction
	Purpose     Purpose
	Method      Method
	Amount      float64
	Date        time.Time
	Description string

	Partner       *partners.Ref
	ReferenceType *string
	ReferenceID   *int64

	BankAccountID   *int64
	ContraAccountID int64

	CreatedBy   int64
	Allocations []AllocationInput
}

// Validate enforces the document shape rules. Allocations are only legal on
// inbound documents and may never exceed the document amount.
func (in CreateInput) Validate() error {
	if !in.Direction.Valid() {
		return fmt.Errorf("unknown direction %q: %w", in.Direction, shared.ErrValidation)
	}
	if !in.Purpose.AllowedFor(in.Direction) {
		return fmt.Errorf("purpose %q not allowed for %s documents: %w", in.Purpose, in.Direction, shared.ErrValidation)
	}
	if !in.Method.Valid() {
		return fmt.Errorf("unknown method %q: %w", in.Method, shared.ErrValidation)
	}
	if in.Amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", shared.ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("document date required: %w", shared.ErrValidation)
	}
	if in.ContraAccountID == 0 {
		return fmt.Errorf("contra account required: %w", shared.ErrValidation)
	}
	if in.Partner != nil {
		if err := in.Partner.Validate(); err != nil {
			return err
		}
	}
	if len(in.Allocations) > 0 && in.Direction != DirectionInbound {
		return fmt.Errorf("allocations are only valid on receipts: %w", shared.ErrValidation)
	}
	var allocated float64
	for idx, alloc := range in.Allocations {
		if alloc.ReferenceType == "" || alloc.ReferenceID == 0 {
			return fmt.Errorf("allocation %d missing reference: %w", idx+1, shared.ErrValidation)
		}
		if alloc.Amount <= 0 {
			return fmt.Errorf("allocation %d amount must be positive: %w", idx+1, shared.ErrValidation)
		}
		allocated += alloc.Amount
	}
	if shared.Round2(allocated) > shared.Round2(in.Amount)+shared.BalanceTolerance {
		return fmt.Errorf("allocations %.2f exceed document amount %.2f: %w", allocated, in.Amount, shared.ErrValidation)
	}
	return nil
}

// ApproveInput wraps parameters for approval.
type ApproveInput struct {
	ApproverID int64
	Notes      string
}

// SettleInput wraps parameters for markPaid/markDeposited. BankAccountID
// overrides the document's bank account when it was left open at creation.
type SettleInput struct {
	ActorID       int64
	BankAccountID *int64
	SettleDate    time.Time
}

// CancelInput wraps parameters for cancellation.
type CancelInput struct {
	ActorID int64
	Reason  string
}

// ListFilter narrows document listings.
type ListFilter struct {
	Direction Direction
	Status    DocumentStatus
	Purpose   Purpose
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
