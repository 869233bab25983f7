package core

import (
	"errors"
	"strings"
)

const (
	Spending Kind = "SPENDING"
	Earning  Kind = "EARNING"
	Debt     Kind = "DEBT"
)

const (
	Lend   DebtDirection = "LEND"
	Borrow DebtDirection = "BORROW"
)

type (
	// Kind is the top-level classification of a transaction.
	Kind string

	// DebtDirection sub-classifies a Debt transaction: Lend is money given
	// out, Borrow is money received.
	DebtDirection string

	// Transaction is a single ledger entry. Date is a unix timestamp in
	// milliseconds. DebtDirection and Counterparty are set only when
	// Kind == Debt.
	Transaction struct {
		ID            int64
		Amount        Money
		Category      string
		Date          int64
		Note          string
		Kind          Kind
		DebtDirection DebtDirection
		Counterparty  string
	}

	// Category labels transactions of one Kind. Built-in categories are
	// seeded at first run and cannot be deleted.
	Category struct {
		ID      int64
		Name    string
		Kind    Kind
		BuiltIn bool
	}
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyCategory        = errors.New("empty category")
	ErrInvalidKind          = errors.New("invalid transaction kind")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidDebtDirection = errors.New("invalid debt direction")
	ErrDebtFieldsForbidden  = errors.New("debt fields only allowed on debt transactions")
	ErrNoteTooLong          = errors.New("note too long (max 500 characters)")
)

// Built-in category names seeded once at first run.
var (
	BuiltInSpending = []string{
		"Food",
		"Grocery",
		"Bills",
		"Travel",
		"Shopping",
		"Entertainment",
		"Health",
		"Family",
		"Education",
		"Other",
	}

	BuiltInEarning = []string{
		"Salary",
		"Business",
		"Investment",
		"Interest",
		"Extra Income",
		"Other",
	}

	BuiltInDebt = []string{
		"Lend",
		"Borrow",
	}
)

func (k Kind) Valid() bool {
	switch k {
	case Spending, Earning, Debt:
		return true
	}
	return false
}

func (d DebtDirection) Valid() bool {
	switch d {
	case Lend, Borrow:
		return true
	}
	return false
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if t.Date <= 0 {
		return ErrInvalidDate
	}
	if len(t.Note) > 500 {
		return ErrNoteTooLong
	}
	if t.Kind == Debt {
		if !t.DebtDirection.Valid() {
			return ErrInvalidDebtDirection
		}
	} else if t.DebtDirection != "" || t.Counterparty != "" {
		return ErrDebtFieldsForbidden
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategory
	}
	if len(c.Name) > 100 {
		return errors.New("category name too long (max 100 characters)")
	}
	if !c.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}
