// Package cashflow implements the shared document engine behind payments and
// payment receipts: validated cash movements that settle into a paired journal
// entry and bank transaction.
package cashflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/partners"
)

// Direction separates outbound payments from inbound receipts.
type Direction string

const (
	DirectionOutbound Direction = "OUTBOUND"
	DirectionInbound  Direction = "INBOUND"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionOutbound || d == DirectionInbound
}

// DocumentStatus enumerates the document lifecycle:
// DRAFT -> PENDING -> APPROVED -> PAID|DEPOSITED, with CANCELLED reachable
// until the document is cancelled.
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "DRAFT"
	StatusPending   DocumentStatus = "PENDING"
	StatusApproved  DocumentStatus = "APPROVED"
	StatusPaid      DocumentStatus = "PAID"
	StatusDeposited DocumentStatus = "DEPOSITED"
	StatusCancelled DocumentStatus = "CANCELLED"
)

// Settled reports whether s is a terminal settled state.
func (s DocumentStatus) Settled() bool {
	return s == StatusPaid || s == StatusDeposited
}

// Purpose classifies why money moved.
type Purpose string

const (
	PurposeSupplierPayment Purpose = "SUPPLIER_PAYMENT"
	PurposeExpensePayment  Purpose = "EXPENSE_PAYMENT"
	PurposePayrollPayment  Purpose = "PAYROLL_PAYMENT"
	PurposeRefundPayment   Purpose = "REFUND_PAYMENT"
	PurposeOtherPayment    Purpose = "OTHER_PAYMENT"

	PurposeCustomerPayment Purpose = "CUSTOMER_PAYMENT"
	PurposeSaleReceipt     Purpose = "SALE_RECEIPT"
	PurposeRefundReceipt   Purpose = "REFUND_RECEIPT"
	PurposeOtherReceipt    Purpose = "OTHER_RECEIPT"
)

var purposesByDirection = map[Direction][]Purpose{
	DirectionOutbound: {PurposeSupplierPayment, PurposeExpensePayment, PurposePayrollPayment, PurposeRefundPayment, PurposeOtherPayment},
	DirectionInbound:  {PurposeCustomerPayment, PurposeSaleReceipt, PurposeRefundReceipt, PurposeOtherReceipt},
}

// AllowedFor reports whether p belongs to the purpose catalogue for d.
func (p Purpose) AllowedFor(d Direction) bool {
	for _, candidate := range purposesByDirection[d] {
		if candidate == p {
			return true
		}
	}
	return false
}

// Method enumerates settlement channels.
type Method string

const (
	MethodCash         Method = "CASH"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodCard         Method = "CARD"
	MethodCheque       Method = "CHEQUE"
	MethodOther        Method = "OTHER"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCard, MethodCheque, MethodOther:
		return true
	}
	return false
}

// Allocation applies part of a receipt against an originating document,
// typically a sales invoice.
type Allocation struct {
	ID            int64
	DocumentID    int64
	ReferenceType string
	ReferenceID   int64
	Amount        float64
	CreatedAt     time.Time
}

// Document is a payment or payment receipt.
type Document struct {
	ID     int64
	UID    uuid.UUID
	Number string

	Direction Direction
	Purpose   Purpose
	Method    Method
	Status    DocumentStatus

	Amount      float64
	DocDate     time.Time
	Description string

	PartnerKind *partners.Kind
	PartnerID   *int64

	// ReferenceType/ReferenceID point at the originating business document
	// (sale, purchase invoice, expense claim).
	ReferenceType *string
	ReferenceID   *int64

	BankAccountID   *int64
	ContraAccountID int64

	// Populated once settled. The journal entry and bank transaction are
	// owned links; the entry is reversed, never deleted, when the document
	// is cancelled afterwards.
	JournalEntryID    *int64
	BankTransactionID *int64

	ApprovedBy    *int64
	ApprovedAt    *time.Time
	ApprovalNotes string
	SettledBy     *int64
	SettledAt     *time.Time
	CancelledAt   *time.Time

	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time

	Allocations []Allocation
}
