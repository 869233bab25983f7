package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"pocketledger/internal/core"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrBuiltInCategory   = errors.New("built-in categories cannot be deleted")
	ErrDuplicateCategory = errors.New("category already exists")
)

// Repository owns the SQLite store backing the ledger: the transaction log,
// the category table and the app_state key/value rows.
type Repository struct {
	db *sql.DB
}

func Open(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &Repository{db: db}

	if err := repo.SeedCategories(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed categories: %w", err)
	}

	return repo, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const transactionColumns = "id, amount_cents, category, occurred_at, note, kind, debt_direction, counterparty"

// InsertTransaction appends a transaction and returns its generated id.
func (r *Repository) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (amount_cents, category, occurred_at, note, kind, debt_direction, counterparty)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Amount.Cents, t.Category, t.Date, t.Note, string(t.Kind),
		nullable(string(t.DebtDirection)), nullable(t.Counterparty))
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert transaction id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"transaction_id", id,
		"kind", t.Kind,
		"category", t.Category,
		"amount_cents", t.Amount.Cents)

	return id, nil
}

// UpdateTransaction fully overwrites the row keyed by t.ID.
func (r *Repository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET amount_cents = ?, category = ?, occurred_at = ?, note = ?, kind = ?, debt_direction = ?, counterparty = ?
		 WHERE id = ?`,
		t.Amount.Cents, t.Category, t.Date, t.Note, string(t.Kind),
		nullable(string(t.DebtDirection)), nullable(t.Counterparty), t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteAllTransactions(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("delete all transactions: %w", err)
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// ListAllTransactions returns the full log ordered by date descending.
func (r *Repository) ListAllTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions ORDER BY occurred_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListByKindAndRange returns transactions of one kind inside the inclusive
// [start, end] millisecond window, ordered by date descending.
func (r *Repository) ListByKindAndRange(ctx context.Context, kind core.Kind, start, end int64) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE kind = ? AND occurred_at BETWEEN ? AND ?
		 ORDER BY occurred_at DESC, id DESC`,
		string(kind), start, end)
	if err != nil {
		return nil, fmt.Errorf("list transactions by kind and range: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// TotalByKindAndRange sums amounts for one kind in the window. An empty
// result set yields zero, never a null.
func (r *Repository) TotalByKindAndRange(ctx context.Context, kind core.Kind, start, end int64) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		 WHERE kind = ? AND occurred_at BETWEEN ? AND ?`,
		string(kind), start, end).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("total by kind and range: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// TotalByDebtDirection sums debt amounts of one direction in the window.
func (r *Repository) TotalByDebtDirection(ctx context.Context, dir core.DebtDirection, start, end int64) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		 WHERE kind = ? AND debt_direction = ? AND occurred_at BETWEEN ? AND ?`,
		string(core.Debt), string(dir), start, end).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("total by debt direction: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// CategoryTotals returns one row per distinct category with at least one
// matching transaction. Order is unspecified; callers sort.
func (r *Repository) CategoryTotals(ctx context.Context, kind core.Kind, start, end int64) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, SUM(amount_cents) FROM transactions
		 WHERE kind = ? AND occurred_at BETWEEN ? AND ?
		 GROUP BY category`,
		string(kind), start, end)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	var totals []core.CategoryTotal
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		totals = append(totals, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("category totals rows: %w", err)
	}
	return totals, nil
}

// DebtTotalsByPerson groups debt amounts by (category, counterparty).
// A missing counterparty groups under the empty string.
func (r *Repository) DebtTotalsByPerson(ctx context.Context, start, end int64) ([]core.DebtPersonTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, COALESCE(counterparty, ''), SUM(amount_cents) FROM transactions
		 WHERE kind = ? AND occurred_at BETWEEN ? AND ?
		 GROUP BY category, counterparty`,
		string(core.Debt), start, end)
	if err != nil {
		return nil, fmt.Errorf("debt totals by person: %w", err)
	}
	defer rows.Close()

	var totals []core.DebtPersonTotal
	for rows.Next() {
		var dt core.DebtPersonTotal
		if err := rows.Scan(&dt.Category, &dt.Counterparty, &dt.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan debt person total: %w", err)
		}
		totals = append(totals, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("debt totals rows: %w", err)
	}
	return totals, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t            core.Transaction
		kind         string
		dir          sql.NullString
		counterparty sql.NullString
	)
	err := row.Scan(&t.ID, &t.Amount.Cents, &t.Category, &t.Date, &t.Note, &kind, &dir, &counterparty)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)
	if dir.Valid {
		t.DebtDirection = core.DebtDirection(dir.String)
	}
	if counterparty.Valid {
		t.Counterparty = counterparty.String
	}
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transaction rows: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
