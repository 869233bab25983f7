package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"pocketledger/internal/core"
)

// app_state keys backing the access guard.
const (
	statePinHash      = "pin_hash"
	stateLastActiveAt = "last_active_at"
	stateLockoutUntil = "lockout_until"
)

// AccessState reads the persisted guard state. Missing keys read as zero
// values.
func (r *Repository) AccessState(ctx context.Context) (core.AccessState, error) {
	var st core.AccessState

	hash, err := r.stateValue(ctx, statePinHash)
	if err != nil {
		return st, err
	}
	st.PinHash = hash

	if st.LastActiveAt, err = r.stateMillis(ctx, stateLastActiveAt); err != nil {
		return st, err
	}
	if st.LockoutUntil, err = r.stateMillis(ctx, stateLockoutUntil); err != nil {
		return st, err
	}
	return st, nil
}

// SaveAccessState overwrites the persisted guard state in place, in one
// transaction.
func (r *Repository) SaveAccessState(ctx context.Context, st core.AccessState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin access state transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := func(key, value string) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO app_state (key, value) VALUES (?, ?)
			 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
			key, value)
		if err != nil {
			return fmt.Errorf("save app state %s: %w", key, err)
		}
		return nil
	}

	if err := upsert(statePinHash, st.PinHash); err != nil {
		return err
	}
	if err := upsert(stateLastActiveAt, strconv.FormatInt(st.LastActiveAt, 10)); err != nil {
		return err
	}
	if err := upsert(stateLockoutUntil, strconv.FormatInt(st.LockoutUntil, 10)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit access state: %w", err)
	}
	return nil
}

func (r *Repository) stateValue(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read app state %s: %w", key, err)
	}
	return value, nil
}

func (r *Repository) setStateValue(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO app_state (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("write app state %s: %w", key, err)
	}
	return nil
}

func (r *Repository) stateMillis(ctx context.Context, key string) (int64, error) {
	raw, err := r.stateValue(ctx, key)
	if err != nil || raw == "" {
		return 0, err
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse app state %s: %w", key, err)
	}
	return millis, nil
}
