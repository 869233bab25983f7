// Package export writes the full transaction log to a timestamped JSON
// backup file.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pocketledger/internal/core"
)

// ErrEmptyLedger is returned when there are no transactions to export.
var ErrEmptyLedger = errors.New("export: no transactions to export")

// Store lists every transaction regardless of month.
type Store interface {
	ListAllTransactions(ctx context.Context) ([]core.Transaction, error)
}

// Exporter serializes the transaction log into backup files under Dir.
type Exporter struct {
	store Store
	dir   string
	now   func() time.Time
}

func New(store Store, dir string) *Exporter {
	return &Exporter{store: store, dir: dir, now: time.Now}
}

// record is the backup wire format. Amounts are plain decimal numbers,
// optional fields serialize as explicit nulls.
type record struct {
	ID          int64       `json:"id"`
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category"`
	Date        int64       `json:"date"`
	Note        string      `json:"note"`
	Type        string      `json:"type"`
	DebtType    *string     `json:"debtType"`
	PersonName  *string     `json:"personName"`
}

// Export writes all transactions to a new file in the export directory and
// returns its path. An empty ledger is an error, not an empty file.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	txs, err := e.store.ListAllTransactions(ctx)
	if err != nil {
		return "", fmt.Errorf("listing transactions: %w", err)
	}
	if len(txs) == 0 {
		return "", ErrEmptyLedger
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	records := make([]record, 0, len(txs))
	for _, tx := range txs {
		records = append(records, toRecord(tx))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding backup: %w", err)
	}

	path := filepath.Join(e.dir, e.now().Format("expenses_backup_20060102_150405.json"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing backup file: %w", err)
	}
	return path, nil
}

func toRecord(tx core.Transaction) record {
	r := record{
		ID:       tx.ID,
		Amount:   json.Number(tx.Amount.Decimal().String()),
		Category: tx.Category,
		Date:     tx.Date,
		Note:     tx.Note,
		Type:     string(tx.Kind),
	}
	if tx.DebtDirection != "" {
		dir := string(tx.DebtDirection)
		r.DebtType = &dir
	}
	if tx.Counterparty != "" {
		name := tx.Counterparty
		r.PersonName = &name
	}
	return r
}
