// Package guard implements the PIN access guard: setup and validation of
// the app PIN, the inactivity-timeout policy and brute-force lockout.
//
// All lockout bookkeeping lives here, not in the presentation layer, so the
// policy is testable on its own. The PIN is persisted only as a bcrypt hash.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"pocketledger/internal/core"
)

// State is the observable lifecycle state of the guard.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateConfiguring  State = "configuring"
	StateUnlocked     State = "unlocked"
	StateLocked       State = "locked"
	StateLockedOut    State = "locked_out"
)

var (
	ErrInvalidPinFormat  = errors.New("pin must be a fixed-length numeric string")
	ErrPinMismatch       = errors.New("confirmation pin does not match")
	ErrInvalidCredential = errors.New("incorrect pin")
	ErrLockedOut         = errors.New("too many failed attempts, try again later")
	ErrNoPin             = errors.New("no pin configured")
	ErrNoPendingSetup    = errors.New("no pin setup in progress")
)

// StateStore persists the guard's singleton record.
type StateStore interface {
	AccessState(ctx context.Context) (core.AccessState, error)
	SaveAccessState(ctx context.Context, st core.AccessState) error
}

// Config holds the guard policy. The zero value of any field falls back to
// the default.
type Config struct {
	PinLength         int
	InactivityTimeout time.Duration
	MaxAttempts       int
	Cooldown          time.Duration
}

// DefaultConfig returns the policy the app shipped with. The short timeout
// and cooldown are demo values; production deployments override them.
func DefaultConfig() Config {
	return Config{
		PinLength:         4,
		InactivityTimeout: 10 * time.Second,
		MaxAttempts:       3,
		Cooldown:          60 * time.Second,
	}
}

// Guard arbitrates PIN setup, validation and lockout.
type Guard struct {
	store StateStore
	cfg   Config
	now   func() time.Time

	mu      sync.Mutex
	pending string // candidate PIN awaiting confirmation
	failed  int    // consecutive failed attempts since last success
}

func New(store StateStore, cfg Config) *Guard {
	def := DefaultConfig()
	if cfg.PinLength <= 0 {
		cfg.PinLength = def.PinLength
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = def.InactivityTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Guard{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// State derives the current lifecycle state.
func (g *Guard) State(ctx context.Context) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.store.AccessState(ctx)
	if err != nil {
		return "", fmt.Errorf("load access state: %w", err)
	}
	if !st.PinSet() {
		if g.pending != "" {
			return StateConfiguring, nil
		}
		return StateUnconfigured, nil
	}
	if g.lockedOut(st) {
		return StateLockedOut, nil
	}
	if g.requiresPin(st) {
		return StateLocked, nil
	}
	return StateUnlocked, nil
}

func (g *Guard) IsPinSet(ctx context.Context) (bool, error) {
	st, err := g.store.AccessState(ctx)
	if err != nil {
		return false, fmt.Errorf("load access state: %w", err)
	}
	return st.PinSet(), nil
}

// BeginSetup records a candidate PIN awaiting confirmation.
func (g *Guard) BeginSetup(pin string) error {
	if err := g.checkFormat(pin); err != nil {
		return err
	}
	g.mu.Lock()
	g.pending = pin
	g.mu.Unlock()
	return nil
}

// ConfirmSetup completes setup when the confirmation matches the candidate.
// On mismatch the candidate is discarded and the caller retries from
// BeginSetup.
func (g *Guard) ConfirmSetup(ctx context.Context, confirm string) error {
	g.mu.Lock()
	pending := g.pending
	g.pending = ""
	g.mu.Unlock()

	if pending == "" {
		return ErrNoPendingSetup
	}
	if confirm != pending {
		return ErrPinMismatch
	}
	return g.SetPin(ctx, pending)
}

// SetPin overwrites the stored PIN hash unconditionally and stamps the
// activity time. Used for initial setup and for PIN change after
// re-authentication.
func (g *Guard) SetPin(ctx context.Context, pin string) error {
	if err := g.checkFormat(pin); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	st := core.AccessState{
		PinHash:      string(hash),
		LastActiveAt: g.now().UnixMilli(),
		LockoutUntil: 0,
	}
	if err := g.store.SaveAccessState(ctx, st); err != nil {
		return fmt.Errorf("save access state: %w", err)
	}
	g.failed = 0
	g.pending = ""
	return nil
}

// ValidatePin checks a candidate against the stored hash. Failures count
// toward lockout; an attempt while locked out is rejected without
// consuming one. Success resets the counter and stamps activity.
func (g *Guard) ValidatePin(ctx context.Context, candidate string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.store.AccessState(ctx)
	if err != nil {
		return fmt.Errorf("load access state: %w", err)
	}
	if !st.PinSet() {
		return ErrNoPin
	}

	now := g.now().UnixMilli()
	if st.LockoutUntil != 0 {
		if now < st.LockoutUntil {
			return ErrLockedOut
		}
		// Cooldown elapsed: back to Locked, counter resets.
		st.LockoutUntil = 0
		g.failed = 0
		if err := g.store.SaveAccessState(ctx, st); err != nil {
			return fmt.Errorf("clear lockout: %w", err)
		}
	}

	if bcrypt.CompareHashAndPassword([]byte(st.PinHash), []byte(candidate)) != nil {
		g.failed++
		if g.failed >= g.cfg.MaxAttempts {
			st.LockoutUntil = now + g.cfg.Cooldown.Milliseconds()
			if err := g.store.SaveAccessState(ctx, st); err != nil {
				return fmt.Errorf("save lockout: %w", err)
			}
		}
		return ErrInvalidCredential
	}

	g.failed = 0
	st.LastActiveAt = now
	st.LockoutUntil = 0
	if err := g.store.SaveAccessState(ctx, st); err != nil {
		return fmt.Errorf("save access state: %w", err)
	}
	return nil
}

// ShouldRequirePin reports whether the caller must present a PIN challenge:
// false with no PIN configured, true when never active or when the
// inactivity timeout has elapsed. Exactly at the timeout does not require
// a PIN; one millisecond past does.
func (g *Guard) ShouldRequirePin(ctx context.Context) (bool, error) {
	st, err := g.store.AccessState(ctx)
	if err != nil {
		return false, fmt.Errorf("load access state: %w", err)
	}
	return g.requiresPin(st), nil
}

func (g *Guard) requiresPin(st core.AccessState) bool {
	if !st.PinSet() {
		return false
	}
	if st.LastActiveAt == 0 {
		return true
	}
	elapsed := g.now().UnixMilli() - st.LastActiveAt
	return elapsed > g.cfg.InactivityTimeout.Milliseconds()
}

func (g *Guard) lockedOut(st core.AccessState) bool {
	return st.LockoutUntil != 0 && g.now().UnixMilli() < st.LockoutUntil
}

// RecordActivity stamps the last-active time, deferring the next challenge.
func (g *Guard) RecordActivity(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.store.AccessState(ctx)
	if err != nil {
		return fmt.Errorf("load access state: %w", err)
	}
	st.LastActiveAt = g.now().UnixMilli()
	if err := g.store.SaveAccessState(ctx, st); err != nil {
		return fmt.Errorf("save access state: %w", err)
	}
	return nil
}

// EnterLockout forces the cooldown window to start now.
func (g *Guard) EnterLockout(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.store.AccessState(ctx)
	if err != nil {
		return fmt.Errorf("load access state: %w", err)
	}
	st.LockoutUntil = g.now().UnixMilli() + g.cfg.Cooldown.Milliseconds()
	if err := g.store.SaveAccessState(ctx, st); err != nil {
		return fmt.Errorf("save access state: %w", err)
	}
	return nil
}

// RemainingLockoutSeconds reports the seconds left in the cooldown,
// rounded up, or 0 when not locked out.
func (g *Guard) RemainingLockoutSeconds(ctx context.Context) (int, error) {
	st, err := g.store.AccessState(ctx)
	if err != nil {
		return 0, fmt.Errorf("load access state: %w", err)
	}
	if st.LockoutUntil == 0 {
		return 0, nil
	}
	remaining := st.LockoutUntil - g.now().UnixMilli()
	if remaining <= 0 {
		return 0, nil
	}
	return int((remaining + 999) / 1000), nil
}

// ClearLockout lifts the cooldown and resets the attempt counter.
func (g *Guard) ClearLockout(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.store.AccessState(ctx)
	if err != nil {
		return fmt.Errorf("load access state: %w", err)
	}
	st.LockoutUntil = 0
	if err := g.store.SaveAccessState(ctx, st); err != nil {
		return fmt.Errorf("save access state: %w", err)
	}
	g.failed = 0
	return nil
}

// RemovePin returns the guard to the unconfigured state.
func (g *Guard) RemovePin(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.store.SaveAccessState(ctx, core.AccessState{}); err != nil {
		return fmt.Errorf("save access state: %w", err)
	}
	g.failed = 0
	g.pending = ""
	return nil
}

// FailedAttempts returns the consecutive failed attempts since the last
// success.
func (g *Guard) FailedAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed
}

func (g *Guard) checkFormat(pin string) error {
	if len(pin) != g.cfg.PinLength {
		return ErrInvalidPinFormat
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return ErrInvalidPinFormat
		}
	}
	return nil
}
