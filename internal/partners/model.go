// Package partners resolves the polymorphic counterparties referenced by
// journal lines and cashflow documents.
package partners

import (
	"fmt"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// Kind tags the table a partner reference points into.
type Kind string

const (
	KindSupplier Kind = "SUPPLIER"
	KindEmployee Kind = "EMPLOYEE"
	KindCustomer Kind = "CUSTOMER"
	// KindOther marks a free-form counterparty with no backing row.
	KindOther Kind = "OTHER"
)

// Valid reports whether k is a known partner kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSupplier, KindEmployee, KindCustomer, KindOther:
		return true
	}
	return false
}

// Ref is a tagged reference to one counterparty.
type Ref struct {
	Kind Kind
	ID   int64
}

// Validate checks structural validity; existence is checked by Resolver.
func (r Ref) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown partner kind %q: %w", r.Kind, shared.ErrValidation)
	}
	if r.Kind != KindOther && r.ID == 0 {
		return fmt.Errorf("partner id required for kind %s: %w", r.Kind, shared.ErrValidation)
	}
	return nil
}

// Partner is the resolved display form of a counterparty.
type Partner struct {
	Kind Kind
	ID   int64
	Name string
}
