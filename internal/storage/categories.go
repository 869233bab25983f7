package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pocketledger/internal/core"
)

// seededFlag marks that built-in category seeding has run. The flag, not
// table emptiness, gates re-seeding: a user who empties the category table
// keeps it empty.
const seededFlag = "categories_seeded"

// SeedCategories inserts the built-in category lists exactly once.
func (r *Repository) SeedCategories(ctx context.Context) error {
	seeded, err := r.stateValue(ctx, seededFlag)
	if err != nil {
		return err
	}
	if seeded == "1" {
		return nil
	}

	count, err := r.CategoryCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		// Pre-existing data from before the flag existed; don't touch it.
		return r.setStateValue(ctx, seededFlag, "1")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	seed := func(names []string, kind core.Kind) error {
		for _, name := range names {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO categories (name, kind, built_in) VALUES (?, ?, 1)`,
				name, string(kind)); err != nil {
				return fmt.Errorf("seed category %q: %w", name, err)
			}
		}
		return nil
	}
	if err := seed(core.BuiltInSpending, core.Spending); err != nil {
		return err
	}
	if err := seed(core.BuiltInEarning, core.Earning); err != nil {
		return err
	}
	if err := seed(core.BuiltInDebt, core.Debt); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO app_state (key, value) VALUES (?, '1')
		 ON CONFLICT (key) DO UPDATE SET value = '1'`, seededFlag); err != nil {
		return fmt.Errorf("set seeded flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}

	slog.InfoContext(ctx, "Built-in categories seeded",
		"spending", len(core.BuiltInSpending),
		"earning", len(core.BuiltInEarning),
		"debt", len(core.BuiltInDebt))

	return nil
}

// ListCategories returns all categories, built-ins first, then by name.
func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, kind, built_in FROM categories ORDER BY built_in DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	return collectCategories(rows)
}

// ListCategoriesByKind returns the categories of one kind, built-ins first.
func (r *Repository) ListCategoriesByKind(ctx context.Context, kind core.Kind) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, kind, built_in FROM categories WHERE kind = ? ORDER BY built_in DESC, name ASC`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("list categories by kind: %w", err)
	}
	defer rows.Close()
	return collectCategories(rows)
}

func (r *Repository) InsertCategory(ctx context.Context, c core.Category) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, kind, built_in) VALUES (?, ?, ?)`,
		c.Name, string(c.Kind), boolToInt(c.BuiltIn))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, ErrDuplicateCategory
		}
		return 0, fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert category id: %w", err)
	}
	return id, nil
}

// DeleteCategory removes a non-built-in category by id.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	var builtIn int
	err := r.db.QueryRowContext(ctx,
		`SELECT built_in FROM categories WHERE id = ?`, id).Scan(&builtIn)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup category: %w", err)
	}
	if builtIn == 1 {
		return ErrBuiltInCategory
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// DeleteCustomCategories removes every non-built-in category.
func (r *Repository) DeleteCustomCategories(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE built_in = 0`); err != nil {
		return fmt.Errorf("delete custom categories: %w", err)
	}
	return nil
}

func (r *Repository) CategoryCount(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return count, nil
}

func collectCategories(rows *sql.Rows) ([]core.Category, error) {
	var out []core.Category
	for rows.Next() {
		var (
			c       core.Category
			kind    string
			builtIn int
		)
		if err := rows.Scan(&c.ID, &c.Name, &kind, &builtIn); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.Kind(kind)
		c.BuiltIn = builtIn == 1
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("category rows: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
