package accounts

import (
	"fmt"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// CreateInput groups fields required to create an account.
type CreateInput struct {
	Code           string
	Name           string
	Type           AccountType
	Subtype        AccountSubtype
	ParentID       *int64
	OpeningBalance float64
	IsSystem       bool
}

// Validate ensures the input meets minimum criteria.
func (in CreateInput) Validate() error {
	if in.Code == "" {
		return fmt.Errorf("account code required: %w", shared.ErrValidation)
	}
	if in.Name == "" {
		return fmt.Errorf("account name required: %w", shared.ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("unknown account type %q: %w", in.Type, shared.ErrValidation)
	}
	if !SubtypeAllowed(in.Type, in.Subtype) {
		return fmt.Errorf("subtype %q not allowed for type %s: %w", in.Subtype, in.Type, shared.ErrValidation)
	}
	return nil
}

// UpdateInput groups mutable account fields. Nil pointers leave the field unchanged.
type UpdateInput struct {
	Name     *string
	Subtype  *AccountSubtype
	ParentID *int64
	Reparent bool
	IsActive *bool
}

// ListFilter narrows account listings.
type ListFilter struct {
	Type       AccountType
	ActiveOnly bool
}
