package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{"12.50", 1250, true},
		{"7.5", 750, true},
		{"100", 10000, true},
		{"0.01", 1, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"12.345", 0, false}, // sub-cent precision
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		m, err := ParseAmount(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ParseAmount(%q): unexpected error %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseAmount(%q): expected error", tc.in)
		}
		if tc.ok && m.Cents != tc.cents {
			t.Fatalf("ParseAmount(%q) = %d cents, want %d", tc.in, m.Cents, tc.cents)
		}
	}
}

func TestMoneyString(t *testing.T) {
	if got := (Money{Cents: 2000}).String(); got != "20.00" {
		t.Fatalf("expected 20.00, got %s", got)
	}
	if got := (Money{Cents: 1}).String(); got != "0.01" {
		t.Fatalf("expected 0.01, got %s", got)
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := Money{Cents: 1250}
	b := Money{Cents: 750}
	if got := a.Add(b); got.Cents != 2000 {
		t.Fatalf("Add: got %d", got.Cents)
	}
	if got := b.Sub(a); got.Cents != -500 {
		t.Fatalf("Sub: got %d", got.Cents)
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}
