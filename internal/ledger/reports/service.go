package reports

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// Service composes financial statements from posted activity.
type Service struct {
	repo  Repository
	cache *Cache
	now   func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// TrialBalance builds the statement as of a date.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	if asOf.IsZero() {
		return TrialBalance{}, fmt.Errorf("as_of date required: %w", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, keyTrialBalance(asOf)...)
	if err != nil {
		return TrialBalance{}, err
	}
	var tb TrialBalance
	err = s.fetch(ctx, key, &tb, func(ctx context.Context) (interface{}, error) {
		return s.buildTrialBalance(ctx, asOf)
	})
	return tb, err
}

func (s *Service) buildTrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	rows, err := s.repo.TrialBalanceRows(ctx, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{AsOf: asOf, GeneratedAt: s.now().UTC()}
	for _, row := range rows {
		if row.Type == "ASSET" || row.Type == "EXPENSE" {
			row.Closing = shared.Round2(row.Opening + row.DebitTotal - row.CreditTotal)
		} else {
			row.Closing = shared.Round2(row.Opening + row.CreditTotal - row.DebitTotal)
		}
		tb.TotalDebit += row.DebitTotal
		tb.TotalCredit += row.CreditTotal
		tb.Rows = append(tb.Rows, row)
	}
	tb.TotalDebit = shared.Round2(tb.TotalDebit)
	tb.TotalCredit = shared.Round2(tb.TotalCredit)
	tb.Balanced = shared.AmountsEqual(tb.TotalDebit, tb.TotalCredit)
	return tb, nil
}

// BalanceSheet builds the financial position as of a date. The three sections
// load in parallel; current earnings fold lifetime P&L into the equity side.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	if asOf.IsZero() {
		return BalanceSheet{}, fmt.Errorf("as_of date required: %w", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, keyBalanceSheet(asOf)...)
	if err != nil {
		return BalanceSheet{}, err
	}
	var bs BalanceSheet
	err = s.fetch(ctx, key, &bs, func(ctx context.Context) (interface{}, error) {
		return s.buildBalanceSheet(ctx, asOf)
	})
	return bs, err
}

func (s *Service) buildBalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	var assets, liabilities, equity, revenue, expense []SectionLine
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { assets, err = s.repo.SectionLines(gctx, "ASSET", asOf); return })
	g.Go(func() (err error) { liabilities, err = s.repo.SectionLines(gctx, "LIABILITY", asOf); return })
	g.Go(func() (err error) { equity, err = s.repo.SectionLines(gctx, "EQUITY", asOf); return })
	g.Go(func() (err error) { revenue, err = s.repo.SectionLines(gctx, "REVENUE", asOf); return })
	g.Go(func() (err error) { expense, err = s.repo.SectionLines(gctx, "EXPENSE", asOf); return })
	if err := g.Wait(); err != nil {
		return BalanceSheet{}, err
	}
	bs := BalanceSheet{
		AsOf:        asOf,
		Assets:      makeSection("Assets", assets),
		Liabilities: makeSection("Liabilities", liabilities),
		Equity:      makeSection("Equity", equity),
		GeneratedAt: s.now().UTC(),
	}
	bs.CurrentEarnings = shared.Round2(sectionTotal(revenue) - sectionTotal(expense))
	bs.TotalAssets = bs.Assets.Total
	bs.TotalLiabEquity = shared.Round2(bs.Liabilities.Total + bs.Equity.Total + bs.CurrentEarnings)
	bs.Balanced = math.Abs(bs.TotalAssets-bs.TotalLiabEquity) <= shared.BalanceTolerance
	return bs, nil
}

// ProfitLoss builds the result of operations over a date range.
func (s *Service) ProfitLoss(ctx context.Context, from, to time.Time) (ProfitLoss, error) {
	if from.IsZero() || to.IsZero() {
		return ProfitLoss{}, fmt.Errorf("from and to dates required: %w", shared.ErrValidation)
	}
	if to.Before(from) {
		return ProfitLoss{}, fmt.Errorf("to must not precede from: %w", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, keyProfitLoss(from, to)...)
	if err != nil {
		return ProfitLoss{}, err
	}
	var pl ProfitLoss
	err = s.fetch(ctx, key, &pl, func(ctx context.Context) (interface{}, error) {
		return s.buildProfitLoss(ctx, from, to)
	})
	return pl, err
}

func (s *Service) buildProfitLoss(ctx context.Context, from, to time.Time) (ProfitLoss, error) {
	var revenue, expense []SectionLine
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { revenue, err = s.repo.RangeActivity(gctx, "REVENUE", from, to); return })
	g.Go(func() (err error) { expense, err = s.repo.RangeActivity(gctx, "EXPENSE", from, to); return })
	if err := g.Wait(); err != nil {
		return ProfitLoss{}, err
	}
	pl := ProfitLoss{
		From:        from,
		To:          to,
		Revenue:     makeSection("Revenue", revenue),
		Expenses:    makeSection("Expenses", expense),
		GeneratedAt: s.now().UTC(),
	}
	pl.NetProfit = shared.Round2(pl.Revenue.Total - pl.Expenses.Total)
	return pl, nil
}

// fetch goes through the cache with a singleflight around the loader, so a
// stampede on a cold key builds the report once.
func (s *Service) fetch(ctx context.Context, key string, dest interface{}, build func(context.Context) (interface{}, error)) error {
	return s.cache.FetchJSON(ctx, key, dest, func(ctx context.Context) (interface{}, error) {
		return singleflightBuild(ctx, key, build)
	})
}

func makeSection(title string, lines []SectionLine) Section {
	sec := Section{Title: title, Lines: lines}
	sec.Total = sectionTotal(lines)
	return sec
}

func sectionTotal(lines []SectionLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.Amount
	}
	return shared.Round2(total)
}
