package accounts

import "time"

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// DebitNormal reports whether the type increases with debits.
// Asset and expense balances grow on the debit side; the rest grow on credit.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// AccountSubtype refines an account type for reporting.
type AccountSubtype string

var subtypesByType = map[AccountType][]AccountSubtype{
	AccountTypeAsset:     {"CURRENT_ASSET", "FIXED_ASSET", "BANK", "RECEIVABLE", "INVENTORY", "OTHER_ASSET"},
	AccountTypeLiability: {"CURRENT_LIABILITY", "LONG_TERM_LIABILITY", "PAYABLE", "CREDIT_CARD", "OTHER_LIABILITY"},
	AccountTypeEquity:    {"CAPITAL", "RETAINED_EARNINGS", "DRAWINGS"},
	AccountTypeRevenue:   {"OPERATING_REVENUE", "OTHER_REVENUE"},
	AccountTypeExpense:   {"OPERATING_EXPENSE", "PAYROLL_EXPENSE", "OTHER_EXPENSE"},
}

// SubtypeAllowed reports whether sub belongs to the catalogue for t.
// An empty subtype is always allowed.
func SubtypeAllowed(t AccountType, sub AccountSubtype) bool {
	if sub == "" {
		return true
	}
	for _, s := range subtypesByType[t] {
		if s == sub {
			return true
		}
	}
	return false
}

// Account models a chart-of-accounts node.
type Account struct {
	ID             int64
	Code           string
	Name           string
	Type           AccountType
	Subtype        AccountSubtype
	ParentID       *int64
	IsSystem       bool
	IsActive       bool
	OpeningBalance float64
	CurrentBalance float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TreeNode is an account with its children nested, ordered by code.
type TreeNode struct {
	Account
	Children []TreeNode
}
