package core

// CategoryTotal is an amount aggregated by category name.
type CategoryTotal struct {
	Category string
	Total    Money
}

// DebtPersonTotal is a debt amount grouped by (category, counterparty).
// Counterparty may be empty; consumers treat that as a distinct
// "unknown" group.
type DebtPersonTotal struct {
	Category     string
	Counterparty string
	Total        Money
}

// MonthSummary is the full set of derived aggregates for one period.
type MonthSummary struct {
	Period Period

	TotalSpending Money
	TotalEarnings Money
	TotalDebt     Money
	TotalLend     Money
	TotalBorrow   Money

	SpendingByCategory []CategoryTotal
	EarningByCategory  []CategoryTotal
	DebtByCategory     []CategoryTotal
	DebtByPerson       []DebtPersonTotal
}

// Balance is earnings minus spending minus debt for the period. It may be
// negative.
func (s MonthSummary) Balance() Money {
	return s.TotalEarnings.Sub(s.TotalSpending).Sub(s.TotalDebt)
}
