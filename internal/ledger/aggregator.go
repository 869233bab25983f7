// Package ledger computes derived views over the transaction log for a
// selected calendar month and pushes fresh results to subscribers whenever
// the log or the selected month changes.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pocketledger/internal/core"
)

// Store is the persistence surface the aggregator works against.
type Store interface {
	InsertTransaction(ctx context.Context, t core.Transaction) (int64, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	DeleteAllTransactions(ctx context.Context) error
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ListAllTransactions(ctx context.Context) ([]core.Transaction, error)
	ListByKindAndRange(ctx context.Context, kind core.Kind, start, end int64) ([]core.Transaction, error)
	TotalByKindAndRange(ctx context.Context, kind core.Kind, start, end int64) (core.Money, error)
	TotalByDebtDirection(ctx context.Context, dir core.DebtDirection, start, end int64) (core.Money, error)
	CategoryTotals(ctx context.Context, kind core.Kind, start, end int64) ([]core.CategoryTotal, error)
	DebtTotalsByPerson(ctx context.Context, start, end int64) ([]core.DebtPersonTotal, error)
}

// Snapshot is one emission of the reactive view: the month's summary plus
// the per-kind transaction lists, date descending.
type Snapshot struct {
	Summary  core.MonthSummary
	Spending []core.Transaction
	Earnings []core.Transaction
	Debts    []core.Transaction
	Balance  core.Money
}

// Aggregator owns the ledger's query and mutation surface. Mutations pass
// through to the store, then trigger a recompute on a single background
// goroutine, so every emission is causally ordered after the mutation that
// caused it.
type Aggregator struct {
	store Store
	loc   *time.Location

	mu      sync.Mutex
	period  core.Period
	subs    map[int64]chan Snapshot
	nextSub int64

	dirty chan struct{}
}

func New(store Store, period core.Period, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{
		store:  store,
		loc:    loc,
		period: period,
		subs:   make(map[int64]chan Snapshot),
		dirty:  make(chan struct{}, 1),
	}
}

// Run drives the recompute loop until ctx is cancelled. Intended to be run
// in its own goroutine (e.g. under an errgroup).
func (a *Aggregator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.dirty:
		}

		snap, err := a.snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.ErrorContext(ctx, "Snapshot recompute failed", "error", err)
			continue
		}
		a.broadcast(snap)
	}
}

// Subscribe registers a live view. The returned subscription's channel
// carries the latest snapshot; stale intermediate snapshots may be
// dropped, never the newest. Cancel tears the listener down.
func (a *Aggregator) Subscribe() *Subscription {
	a.mu.Lock()
	a.nextSub++
	id := a.nextSub
	ch := make(chan Snapshot, 1)
	a.subs[id] = ch
	count := len(a.subs)
	a.mu.Unlock()

	slog.Debug("Subscriber registered", "subscribers", count)

	// Prompt an initial emission for the new subscriber.
	a.markDirty()

	return &Subscription{C: ch, ch: ch, id: id, agg: a}
}

func (a *Aggregator) unsubscribe(id int64) {
	a.mu.Lock()
	delete(a.subs, id)
	count := len(a.subs)
	a.mu.Unlock()

	slog.Debug("Subscriber removed", "subscribers", count)
}

// SetPeriod switches the aggregation window and triggers a fresh emission.
func (a *Aggregator) SetPeriod(p core.Period) error {
	if err := p.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.period = p
	a.mu.Unlock()
	a.markDirty()
	return nil
}

// Period returns the currently selected month.
func (a *Aggregator) Period() core.Period {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.period
}

// Insert validates and appends a transaction, returning its id.
func (a *Aggregator) Insert(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	id, err := a.store.InsertTransaction(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	a.markDirty()
	return id, nil
}

// Update fully overwrites the stored transaction keyed by t.ID.
func (a *Aggregator) Update(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := a.store.UpdateTransaction(ctx, t); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	a.markDirty()
	return nil
}

func (a *Aggregator) Delete(ctx context.Context, id int64) error {
	if err := a.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	a.markDirty()
	return nil
}

func (a *Aggregator) DeleteAll(ctx context.Context) error {
	if err := a.store.DeleteAllTransactions(ctx); err != nil {
		return fmt.Errorf("delete all transactions: %w", err)
	}
	a.markDirty()
	return nil
}

func (a *Aggregator) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return a.store.GetTransaction(ctx, id)
}

// ListByKind returns the period's transactions of one kind, date descending.
func (a *Aggregator) ListByKind(ctx context.Context, kind core.Kind, p core.Period) ([]core.Transaction, error) {
	start, end := p.Range(a.loc)
	return a.store.ListByKindAndRange(ctx, kind, start, end)
}

// TotalByKind sums the period's amounts for one kind; zero when no rows.
func (a *Aggregator) TotalByKind(ctx context.Context, kind core.Kind, p core.Period) (core.Money, error) {
	start, end := p.Range(a.loc)
	return a.store.TotalByKindAndRange(ctx, kind, start, end)
}

// CategoryTotals returns the period's per-category sums for one kind.
func (a *Aggregator) CategoryTotals(ctx context.Context, kind core.Kind, p core.Period) ([]core.CategoryTotal, error) {
	start, end := p.Range(a.loc)
	return a.store.CategoryTotals(ctx, kind, start, end)
}

// DebtTotalsByPerson returns the period's debt sums grouped by
// (category, counterparty).
func (a *Aggregator) DebtTotalsByPerson(ctx context.Context, p core.Period) ([]core.DebtPersonTotal, error) {
	start, end := p.Range(a.loc)
	return a.store.DebtTotalsByPerson(ctx, start, end)
}

// Summary computes the full set of aggregates for a period.
func (a *Aggregator) Summary(ctx context.Context, p core.Period) (core.MonthSummary, error) {
	start, end := p.Range(a.loc)
	s := core.MonthSummary{Period: p}
	var err error

	if s.TotalSpending, err = a.store.TotalByKindAndRange(ctx, core.Spending, start, end); err != nil {
		return s, fmt.Errorf("total spending: %w", err)
	}
	if s.TotalEarnings, err = a.store.TotalByKindAndRange(ctx, core.Earning, start, end); err != nil {
		return s, fmt.Errorf("total earnings: %w", err)
	}
	if s.TotalDebt, err = a.store.TotalByKindAndRange(ctx, core.Debt, start, end); err != nil {
		return s, fmt.Errorf("total debt: %w", err)
	}
	if s.TotalLend, err = a.store.TotalByDebtDirection(ctx, core.Lend, start, end); err != nil {
		return s, fmt.Errorf("total lend: %w", err)
	}
	if s.TotalBorrow, err = a.store.TotalByDebtDirection(ctx, core.Borrow, start, end); err != nil {
		return s, fmt.Errorf("total borrow: %w", err)
	}
	if s.SpendingByCategory, err = a.store.CategoryTotals(ctx, core.Spending, start, end); err != nil {
		return s, fmt.Errorf("spending by category: %w", err)
	}
	if s.EarningByCategory, err = a.store.CategoryTotals(ctx, core.Earning, start, end); err != nil {
		return s, fmt.Errorf("earning by category: %w", err)
	}
	if s.DebtByCategory, err = a.store.CategoryTotals(ctx, core.Debt, start, end); err != nil {
		return s, fmt.Errorf("debt by category: %w", err)
	}
	if s.DebtByPerson, err = a.store.DebtTotalsByPerson(ctx, start, end); err != nil {
		return s, fmt.Errorf("debt by person: %w", err)
	}
	return s, nil
}

func (a *Aggregator) snapshot(ctx context.Context) (Snapshot, error) {
	p := a.Period()

	summary, err := a.Summary(ctx, p)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Summary: summary, Balance: summary.Balance()}

	if snap.Spending, err = a.ListByKind(ctx, core.Spending, p); err != nil {
		return Snapshot{}, fmt.Errorf("list spending: %w", err)
	}
	if snap.Earnings, err = a.ListByKind(ctx, core.Earning, p); err != nil {
		return Snapshot{}, fmt.Errorf("list earnings: %w", err)
	}
	if snap.Debts, err = a.ListByKind(ctx, core.Debt, p); err != nil {
		return Snapshot{}, fmt.Errorf("list debts: %w", err)
	}
	return snap, nil
}

// markDirty coalesces pending recompute requests.
func (a *Aggregator) markDirty() {
	select {
	case a.dirty <- struct{}{}:
	default:
	}
}

func (a *Aggregator) broadcast(snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, ch := range a.subs {
		// Latest-wins: replace a stale pending snapshot rather than block.
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Subscription is one consumer's registration on the aggregator.
type Subscription struct {
	// C delivers snapshots until Cancel is called.
	C <-chan Snapshot

	ch   chan Snapshot
	id   int64
	agg  *Aggregator
	once sync.Once
}

// Cancel tears the subscription down; no further snapshots are delivered.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.agg.unsubscribe(s.id)
	})
}
