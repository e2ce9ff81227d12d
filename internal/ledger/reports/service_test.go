package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

type memoryReportRepo struct {
	trialRows map[string][]TrialBalanceRow
	sections  map[string][]SectionLine
	activity  map[string][]SectionLine
}

func (r *memoryReportRepo) TrialBalanceRows(ctx context.Context, asOf time.Time) ([]TrialBalanceRow, error) {
	return r.trialRows[asOf.Format("2006-01-02")], nil
}

func (r *memoryReportRepo) SectionLines(ctx context.Context, accountType string, asOf time.Time) ([]SectionLine, error) {
	return r.sections[accountType], nil
}

func (r *memoryReportRepo) RangeActivity(ctx context.Context, accountType string, from, to time.Time) ([]SectionLine, error) {
	return r.activity[accountType], nil
}

var asOf = time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

func TestTrialBalanceClosingFollowsNormalSide(t *testing.T) {
	repo := &memoryReportRepo{trialRows: map[string][]TrialBalanceRow{
		"2026-06-30": {
			{AccountID: 1, Code: "1000", Name: "Cash", Type: "ASSET", Opening: 100, DebitTotal: 500, CreditTotal: 200},
			{AccountID: 2, Code: "4000", Name: "Sales", Type: "REVENUE", DebitTotal: 0, CreditTotal: 300},
		},
	}}
	svc := NewService(repo, nil)

	tb, err := svc.TrialBalance(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, tb.Rows, 2)
	require.InDelta(t, 400.0, tb.Rows[0].Closing, 0.001)
	require.InDelta(t, 300.0, tb.Rows[1].Closing, 0.001)
	require.InDelta(t, 500.0, tb.TotalDebit, 0.001)
	require.InDelta(t, 500.0, tb.TotalCredit, 0.001)
	require.True(t, tb.Balanced)
}

func TestTrialBalanceFlagsDrift(t *testing.T) {
	repo := &memoryReportRepo{trialRows: map[string][]TrialBalanceRow{
		"2026-06-30": {
			{AccountID: 1, Code: "1000", Name: "Cash", Type: "ASSET", DebitTotal: 500, CreditTotal: 0},
			{AccountID: 2, Code: "4000", Name: "Sales", Type: "REVENUE", DebitTotal: 0, CreditTotal: 450},
		},
	}}
	svc := NewService(repo, nil)

	tb, err := svc.TrialBalance(context.Background(), asOf)
	require.NoError(t, err)
	require.False(t, tb.Balanced)
}

func TestTrialBalanceRequiresDate(t *testing.T) {
	svc := NewService(&memoryReportRepo{}, nil)
	_, err := svc.TrialBalance(context.Background(), time.Time{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestBalanceSheetFoldsCurrentEarnings(t *testing.T) {
	repo := &memoryReportRepo{sections: map[string][]SectionLine{
		"ASSET":     {{Code: "1000", Name: "Cash", Amount: 900}},
		"LIABILITY": {{Code: "2000", Name: "Payables", Amount: 300}},
		"EQUITY":    {{Code: "3000", Name: "Capital", Amount: 400}},
		"REVENUE":   {{Code: "4000", Name: "Sales", Amount: 500}},
		"EXPENSE":   {{Code: "5000", Name: "Rent", Amount: 300}},
	}}
	svc := NewService(repo, nil)

	bs, err := svc.BalanceSheet(context.Background(), asOf)
	require.NoError(t, err)
	require.InDelta(t, 200.0, bs.CurrentEarnings, 0.001)
	require.InDelta(t, 900.0, bs.TotalAssets, 0.001)
	require.InDelta(t, 900.0, bs.TotalLiabEquity, 0.001)
	require.True(t, bs.Balanced)
	require.Equal(t, "Assets", bs.Assets.Title)
	require.Len(t, bs.Equity.Lines, 1)
}

func TestBalanceSheetDetectsImbalance(t *testing.T) {
	repo := &memoryReportRepo{sections: map[string][]SectionLine{
		"ASSET":  {{Code: "1000", Name: "Cash", Amount: 1000}},
		"EQUITY": {{Code: "3000", Name: "Capital", Amount: 400}},
	}}
	svc := NewService(repo, nil)

	bs, err := svc.BalanceSheet(context.Background(), asOf)
	require.NoError(t, err)
	require.False(t, bs.Balanced)
}

func TestProfitLossNetsRevenueAgainstExpenses(t *testing.T) {
	repo := &memoryReportRepo{activity: map[string][]SectionLine{
		"REVENUE": {
			{Code: "4000", Name: "Sales", Amount: 800},
			{Code: "4100", Name: "Services", Amount: 200},
		},
		"EXPENSE": {{Code: "5000", Name: "Rent", Amount: 350}},
	}}
	svc := NewService(repo, nil)

	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	pl, err := svc.ProfitLoss(context.Background(), from, asOf)
	require.NoError(t, err)
	require.InDelta(t, 1000.0, pl.Revenue.Total, 0.001)
	require.InDelta(t, 350.0, pl.Expenses.Total, 0.001)
	require.InDelta(t, 650.0, pl.NetProfit, 0.001)
}

func TestProfitLossRejectsInvertedRange(t *testing.T) {
	svc := NewService(&memoryReportRepo{}, nil)
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.ProfitLoss(context.Background(), from, asOf)
	require.ErrorIs(t, err, shared.ErrValidation)
}
