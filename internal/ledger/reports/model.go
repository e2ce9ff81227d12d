// Package reports builds read-only financial statements from posted journal
// entries. Reports never mutate core state; results are cached behind a
// version key bumped on every posting.
package reports

import "time"

// TrialBalanceRow is one account line in the trial balance.
type TrialBalanceRow struct {
	AccountID   int64   `json:"account_id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Opening     float64 `json:"opening"`
	DebitTotal  float64 `json:"debit_total"`
	CreditTotal float64 `json:"credit_total"`
	Closing     float64 `json:"closing"`
}

// TrialBalance is the full statement as of a date.
type TrialBalance struct {
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  float64           `json:"total_debit"`
	TotalCredit float64           `json:"total_credit"`
	Balanced    bool              `json:"balanced"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// SectionLine is one account line inside a statement section.
type SectionLine struct {
	AccountID int64   `json:"account_id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
}

// Section groups lines under a heading with a subtotal.
type Section struct {
	Title string        `json:"title"`
	Lines []SectionLine `json:"lines"`
	Total float64       `json:"total"`
}

// BalanceSheet is the financial position as of a date. CurrentEarnings folds
// lifetime revenue minus expense into the equity side so the statement
// balances without a formal closing entry.
type BalanceSheet struct {
	AsOf            time.Time `json:"as_of"`
	Assets          Section   `json:"assets"`
	Liabilities     Section   `json:"liabilities"`
	Equity          Section   `json:"equity"`
	CurrentEarnings float64   `json:"current_earnings"`
	TotalAssets     float64   `json:"total_assets"`
	TotalLiabEquity float64   `json:"total_liabilities_equity"`
	Balanced        bool      `json:"balanced"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// ProfitLoss is the result of operations over a date range.
type ProfitLoss struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Revenue     Section   `json:"revenue"`
	Expenses    Section   `json:"expenses"`
	NetProfit   float64   `json:"net_profit"`
	GeneratedAt time.Time `json:"generated_at"`
}
