package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pocketledger/internal/core"
	"pocketledger/internal/storage"
)

func newTestAggregator(t *testing.T) (*Aggregator, context.CancelFunc) {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	agg := New(repo, core.Period{Year: 2025, Month: time.March}, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	go agg.Run(ctx)
	t.Cleanup(cancel)
	return agg, cancel
}

func at(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC).UnixMilli()
}

// waitFor reads snapshots until cond holds or the deadline passes.
func waitFor(t *testing.T, sub *Subscription, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-sub.C:
			if cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
			return Snapshot{}
		}
	}
}

func TestInsertRoundTripEmission(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	sub := agg.Subscribe()
	defer sub.Cancel()

	tx := core.Transaction{
		Amount:   core.Money{Cents: 1250},
		Category: "Food",
		Date:     at(2025, time.March, 5),
		Kind:     core.Spending,
	}
	id, err := agg.Insert(ctx, tx)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	snap := waitFor(t, sub, func(s Snapshot) bool { return len(s.Spending) == 1 })
	got := snap.Spending[0]
	if got.ID != id || got.Amount.Cents != 1250 || got.Category != "Food" {
		t.Fatalf("emitted transaction mismatch: %+v", got)
	}

	// Deleting removes it from the next emission.
	if err := agg.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	waitFor(t, sub, func(s Snapshot) bool { return len(s.Spending) == 0 })
}

func TestCategoryTotalsScenario(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()
	p := core.Period{Year: 2025, Month: time.March}

	for _, amount := range []struct {
		cents int64
		day   int
	}{{1250, 5}, {750, 20}} {
		_, err := agg.Insert(ctx, core.Transaction{
			Amount:   core.Money{Cents: amount.cents},
			Category: "Food",
			Date:     at(2025, time.March, amount.day),
			Kind:     core.Spending,
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	totals, err := agg.CategoryTotals(ctx, core.Spending, p)
	if err != nil {
		t.Fatalf("category totals: %v", err)
	}
	if len(totals) != 1 || totals[0].Category != "Food" || totals[0].Total.Cents != 2000 {
		t.Fatalf("expected Food: 20.00, got %+v", totals)
	}

	total, err := agg.TotalByKind(ctx, core.Spending, p)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total.Cents != 2000 {
		t.Fatalf("total = %d, want 2000", total.Cents)
	}
}

func TestDebtTotalsByPersonScenario(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()
	p := core.Period{Year: 2025, Month: time.March}

	for _, tx := range []core.Transaction{
		{Amount: core.Money{Cents: 10000}, Category: "Lend", Date: at(2025, time.March, 4), Kind: core.Debt, DebtDirection: core.Lend, Counterparty: "Alex"},
		{Amount: core.Money{Cents: 4000}, Category: "Borrow", Date: at(2025, time.March, 11), Kind: core.Debt, DebtDirection: core.Borrow, Counterparty: "Sam"},
	} {
		if _, err := agg.Insert(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	groups, err := agg.DebtTotalsByPerson(ctx, p)
	if err != nil {
		t.Fatalf("debt totals: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	byKey := map[string]int64{}
	for _, g := range groups {
		byKey[g.Category+"/"+g.Counterparty] = g.Total.Cents
	}
	if byKey["Lend/Alex"] != 10000 || byKey["Borrow/Sam"] != 4000 {
		t.Fatalf("unexpected groups: %v", byKey)
	}

	total, _ := agg.TotalByKind(ctx, core.Debt, p)
	if total.Cents != 14000 {
		t.Fatalf("debt total = %d, want 14000", total.Cents)
	}
}

func TestSummaryAndBalance(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()
	p := core.Period{Year: 2025, Month: time.March}

	for _, tx := range []core.Transaction{
		{Amount: core.Money{Cents: 50000}, Category: "Salary", Date: at(2025, time.March, 1), Kind: core.Earning},
		{Amount: core.Money{Cents: 20000}, Category: "Food", Date: at(2025, time.March, 5), Kind: core.Spending},
		{Amount: core.Money{Cents: 14000}, Category: "Lend", Date: at(2025, time.March, 8), Kind: core.Debt, DebtDirection: core.Lend, Counterparty: "Alex"},
	} {
		if _, err := agg.Insert(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	s, err := agg.Summary(ctx, p)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.TotalEarnings.Cents != 50000 || s.TotalSpending.Cents != 20000 || s.TotalDebt.Cents != 14000 {
		t.Fatalf("totals wrong: %+v", s)
	}
	if s.TotalLend.Cents != 14000 || s.TotalBorrow.Cents != 0 {
		t.Fatalf("lend/borrow wrong: lend=%d borrow=%d", s.TotalLend.Cents, s.TotalBorrow.Cents)
	}
	if s.Balance().Cents != 16000 {
		t.Fatalf("balance = %d, want 16000", s.Balance().Cents)
	}

	// Additivity: per-category totals partition the overall total.
	var sum int64
	for _, ct := range s.SpendingByCategory {
		sum += ct.Total.Cents
	}
	if sum != s.TotalSpending.Cents {
		t.Fatalf("category sum %d != total %d", sum, s.TotalSpending.Cents)
	}
}

func TestPeriodChangeEmission(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	if _, err := agg.Insert(ctx, core.Transaction{
		Amount: core.Money{Cents: 1000}, Category: "Food",
		Date: at(2025, time.March, 5), Kind: core.Spending,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := agg.Insert(ctx, core.Transaction{
		Amount: core.Money{Cents: 2000}, Category: "Bills",
		Date: at(2025, time.April, 3), Kind: core.Spending,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	sub := agg.Subscribe()
	defer sub.Cancel()

	waitFor(t, sub, func(s Snapshot) bool {
		return s.Summary.Period.Month == time.March && s.Summary.TotalSpending.Cents == 1000
	})

	if err := agg.SetPeriod(core.Period{Year: 2025, Month: time.April}); err != nil {
		t.Fatalf("set period: %v", err)
	}
	waitFor(t, sub, func(s Snapshot) bool {
		return s.Summary.Period.Month == time.April && s.Summary.TotalSpending.Cents == 2000
	})
}

func TestCancelledSubscriptionStopsReceiving(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	cancelled := agg.Subscribe()
	waitFor(t, cancelled, func(Snapshot) bool { return true })
	cancelled.Cancel()

	// Drain anything already buffered before the cancel took effect.
	select {
	case <-cancelled.C:
	default:
	}

	live := agg.Subscribe()
	defer live.Cancel()

	if _, err := agg.Insert(ctx, core.Transaction{
		Amount: core.Money{Cents: 500}, Category: "Food",
		Date: at(2025, time.March, 2), Kind: core.Spending,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// The live subscriber observing the insert proves the broadcast ran.
	waitFor(t, live, func(s Snapshot) bool { return len(s.Spending) == 1 })

	select {
	case snap := <-cancelled.C:
		t.Fatalf("cancelled subscription received snapshot: %+v", snap.Summary.Period)
	default:
	}
}

func TestInsertValidation(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	_, err := agg.Insert(ctx, core.Transaction{
		Amount: core.Money{}, Category: "Food",
		Date: at(2025, time.March, 2), Kind: core.Spending,
	})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	_, err = agg.Insert(ctx, core.Transaction{
		Amount: core.Money{Cents: 100}, Category: "Food",
		Date: at(2025, time.March, 2), Kind: core.Spending, Counterparty: "Sam",
	})
	if !errors.Is(err, core.ErrDebtFieldsForbidden) {
		t.Fatalf("expected ErrDebtFieldsForbidden, got %v", err)
	}
}

func TestDeleteAll(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	for day := 1; day <= 3; day++ {
		if _, err := agg.Insert(ctx, core.Transaction{
			Amount: core.Money{Cents: 100}, Category: "Food",
			Date: at(2025, time.March, day), Kind: core.Spending,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	sub := agg.Subscribe()
	defer sub.Cancel()
	waitFor(t, sub, func(s Snapshot) bool { return len(s.Spending) == 3 })

	if err := agg.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	snap := waitFor(t, sub, func(s Snapshot) bool { return len(s.Spending) == 0 })
	if snap.Summary.TotalSpending.Cents != 0 {
		t.Fatalf("total after delete all = %d", snap.Summary.TotalSpending.Cents)
	}
}
