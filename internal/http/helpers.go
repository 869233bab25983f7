package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pocketledger/internal/core"
	"pocketledger/internal/export"
	"pocketledger/internal/guard"
	"pocketledger/internal/storage"
)

// transactionPayload is the wire form of a transaction. Amounts travel as
// decimal strings so clients never see float rounding.
type transactionPayload struct {
	ID         int64  `json:"id,omitempty"`
	Amount     string `json:"amount"`
	Category   string `json:"category"`
	Date       int64  `json:"date"`
	Note       string `json:"note,omitempty"`
	Type       string `json:"type"`
	DebtType   string `json:"debtType,omitempty"`
	PersonName string `json:"personName,omitempty"`
}

func (p transactionPayload) toDomain() (core.Transaction, error) {
	amount, err := core.ParseAmount(p.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:            p.ID,
		Amount:        amount,
		Category:      strings.TrimSpace(p.Category),
		Date:          p.Date,
		Note:          strings.TrimSpace(p.Note),
		Kind:          core.Kind(p.Type),
		DebtDirection: core.DebtDirection(p.DebtType),
		Counterparty:  strings.TrimSpace(p.PersonName),
	}, nil
}

func toPayload(t core.Transaction) transactionPayload {
	return transactionPayload{
		ID:         t.ID,
		Amount:     t.Amount.String(),
		Category:   t.Category,
		Date:       t.Date,
		Note:       t.Note,
		Type:       string(t.Kind),
		DebtType:   string(t.DebtDirection),
		PersonName: t.Counterparty,
	}
}

func toPayloads(txs []core.Transaction) []transactionPayload {
	out := make([]transactionPayload, 0, len(txs))
	for _, t := range txs {
		out = append(out, toPayload(t))
	}
	return out
}

type categoryTotalPayload struct {
	Category string `json:"category"`
	Total    string `json:"total"`
}

type debtPersonPayload struct {
	Category   string `json:"category"`
	PersonName string `json:"personName"`
	Total      string `json:"total"`
}

type summaryPayload struct {
	Period             string                 `json:"period"`
	TotalSpending      string                 `json:"totalSpending"`
	TotalEarnings      string                 `json:"totalEarnings"`
	TotalDebt          string                 `json:"totalDebt"`
	TotalLend          string                 `json:"totalLend"`
	TotalBorrow        string                 `json:"totalBorrow"`
	Balance            string                 `json:"balance"`
	SpendingByCategory []categoryTotalPayload `json:"spendingByCategory"`
	EarningByCategory  []categoryTotalPayload `json:"earningByCategory"`
	DebtByCategory     []categoryTotalPayload `json:"debtByCategory"`
	DebtByPerson       []debtPersonPayload    `json:"debtByPerson"`
}

func toSummaryPayload(s core.MonthSummary) summaryPayload {
	return summaryPayload{
		Period:             s.Period.String(),
		TotalSpending:      s.TotalSpending.String(),
		TotalEarnings:      s.TotalEarnings.String(),
		TotalDebt:          s.TotalDebt.String(),
		TotalLend:          s.TotalLend.String(),
		TotalBorrow:        s.TotalBorrow.String(),
		Balance:            s.Balance().String(),
		SpendingByCategory: toCategoryPayloads(s.SpendingByCategory),
		EarningByCategory:  toCategoryPayloads(s.EarningByCategory),
		DebtByCategory:     toCategoryPayloads(s.DebtByCategory),
		DebtByPerson:       toDebtPersonPayloads(s.DebtByPerson),
	}
}

func toCategoryPayloads(totals []core.CategoryTotal) []categoryTotalPayload {
	out := make([]categoryTotalPayload, 0, len(totals))
	for _, t := range totals {
		out = append(out, categoryTotalPayload{Category: t.Category, Total: t.Total.String()})
	}
	return out
}

func toDebtPersonPayloads(totals []core.DebtPersonTotal) []debtPersonPayload {
	out := make([]debtPersonPayload, 0, len(totals))
	for _, t := range totals {
		out = append(out, debtPersonPayload{Category: t.Category, PersonName: t.Counterparty, Total: t.Total.String()})
	}
	return out
}

// parsePeriod reads year/month query parameters, defaulting to the current
// month in the server's timezone.
func parsePeriod(r *http.Request, loc *time.Location) (core.Period, error) {
	p := core.PeriodOf(time.Now().In(loc))

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, fmt.Errorf("invalid year %q", v)
		}
		p.Year = y
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, fmt.Errorf("invalid month %q", v)
		}
		p.Month = time.Month(m)
	}
	if err := p.Validate(); err != nil {
		return core.Period{}, err
	}
	return p, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateCategory):
		return http.StatusConflict
	case errors.Is(err, storage.ErrBuiltInCategory):
		return http.StatusForbidden
	case errors.Is(err, export.ErrEmptyLedger):
		return http.StatusConflict
	case errors.Is(err, guard.ErrLockedOut):
		return http.StatusLocked
	case errors.Is(err, guard.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, guard.ErrInvalidPinFormat),
		errors.Is(err, guard.ErrPinMismatch),
		errors.Is(err, guard.ErrNoPendingSetup),
		errors.Is(err, guard.ErrNoPin),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidDebtDirection),
		errors.Is(err, core.ErrDebtFieldsForbidden),
		errors.Is(err, core.ErrNoteTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
