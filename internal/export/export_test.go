package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pocketledger/internal/core"
)

type stubStore struct {
	txs []core.Transaction
	err error
}

func (s *stubStore) ListAllTransactions(context.Context) ([]core.Transaction, error) {
	return s.txs, s.err
}

func TestExportEmptyLedger(t *testing.T) {
	e := New(&stubStore{}, t.TempDir())
	if _, err := e.Export(context.Background()); !errors.Is(err, ErrEmptyLedger) {
		t.Fatalf("expected ErrEmptyLedger, got %v", err)
	}
}

func TestExportWritesBackupFile(t *testing.T) {
	store := &stubStore{txs: []core.Transaction{
		{
			ID:       1,
			Amount:   core.Money{Cents: 1250},
			Category: "Food",
			Date:     1741176000000,
			Note:     "lunch",
			Kind:     core.Spending,
		},
		{
			ID:            2,
			Amount:        core.Money{Cents: 10000},
			Category:      "Lend",
			Date:          1741262400000,
			Kind:          core.Debt,
			DebtDirection: core.Lend,
			Counterparty:  "Alex",
		},
	}}

	dir := t.TempDir()
	e := New(store, dir)
	e.now = func() time.Time {
		return time.Date(2025, time.March, 10, 14, 30, 5, 0, time.UTC)
	}

	path, err := e.Export(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Base(path) != "expenses_backup_20250310_143005.json" {
		t.Fatalf("unexpected filename %q", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("decode backup: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	spend := records[0]
	if spend["amount"] != 12.5 || spend["category"] != "Food" || spend["type"] != "SPENDING" {
		t.Fatalf("spending record mismatch: %v", spend)
	}
	if spend["debtType"] != nil || spend["personName"] != nil {
		t.Fatalf("expected null debt fields, got %v", spend)
	}

	debt := records[1]
	if debt["type"] != "DEBT" || debt["debtType"] != "LEND" || debt["personName"] != "Alex" {
		t.Fatalf("debt record mismatch: %v", debt)
	}
}

func TestExportStoreError(t *testing.T) {
	boom := errors.New("disk gone")
	e := New(&stubStore{err: boom}, t.TempDir())
	if _, err := e.Export(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
