package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pocketledger/internal/core"
	"pocketledger/internal/export"
	"pocketledger/internal/guard"
	"pocketledger/internal/ledger"
	"pocketledger/internal/log"
	"pocketledger/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	repo, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	agg := ledger.New(repo, core.Period{Year: 2025, Month: time.March}, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	go agg.Run(ctx)
	t.Cleanup(cancel)

	g := guard.New(repo, guard.DefaultConfig())
	exp := export.New(repo, t.TempDir())
	logger := log.New(log.Config{Level: slog.LevelError})

	s := NewServer("127.0.0.1:0", logger, agg, g, repo, exp, time.UTC)
	ts := httptest.NewServer(s.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func marchMillis(day int) int64 {
	return time.Date(2025, time.March, day, 12, 0, 0, 0, time.UTC).UnixMilli()
}

func TestTransactionLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/transactions", transactionPayload{
		Amount:   "12.50",
		Category: "Food",
		Date:     marchMillis(5),
		Note:     "lunch",
		Type:     "SPENDING",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeBody[transactionPayload](t, resp)
	if created.ID == 0 || created.Amount != "12.50" {
		t.Fatalf("created payload: %+v", created)
	}

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/transactions?kind=SPENDING&year=2025&month=3", ts.URL), nil)
	list := decodeBody[[]transactionPayload](t, resp)
	if len(list) != 1 || list[0].Category != "Food" {
		t.Fatalf("list: %+v", list)
	}

	url := fmt.Sprintf("%s/api/transactions/%d", ts.URL, created.ID)

	resp = doJSON(t, http.MethodPut, url, transactionPayload{
		Amount:   "15.00",
		Category: "Food",
		Date:     marchMillis(5),
		Type:     "SPENDING",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, url, nil)
	got := decodeBody[transactionPayload](t, resp)
	if got.Amount != "15.00" {
		t.Fatalf("amount after update = %q", got.Amount)
	}

	resp = doJSON(t, http.MethodDelete, url, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d", resp.StatusCode)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	_, ts := newTestServer(t)

	cases := []struct {
		name    string
		payload transactionPayload
	}{
		{"zero amount", transactionPayload{Amount: "0", Category: "Food", Date: marchMillis(1), Type: "SPENDING"}},
		{"sub-cent amount", transactionPayload{Amount: "1.005", Category: "Food", Date: marchMillis(1), Type: "SPENDING"}},
		{"empty category", transactionPayload{Amount: "5.00", Date: marchMillis(1), Type: "SPENDING"}},
		{"bad kind", transactionPayload{Amount: "5.00", Category: "Food", Date: marchMillis(1), Type: "LOAN"}},
		{"debt fields on spending", transactionPayload{Amount: "5.00", Category: "Food", Date: marchMillis(1), Type: "SPENDING", PersonName: "Sam"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, ts.URL+"/api/transactions", tc.payload)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSummaryEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	for _, amount := range []string{"12.50", "7.50"} {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/transactions", transactionPayload{
			Amount: amount, Category: "Food", Date: marchMillis(5), Type: "SPENDING",
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create status = %d", resp.StatusCode)
		}
	}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/transactions", transactionPayload{
		Amount: "100.00", Category: "Salary", Date: marchMillis(1), Type: "EARNING",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/summary?year=2025&month=3", nil)
	sum := decodeBody[summaryPayload](t, resp)
	if sum.TotalSpending != "20.00" || sum.TotalEarnings != "100.00" || sum.Balance != "80.00" {
		t.Fatalf("summary: %+v", sum)
	}
	if len(sum.SpendingByCategory) != 1 || sum.SpendingByCategory[0].Total != "20.00" {
		t.Fatalf("spending by category: %+v", sum.SpendingByCategory)
	}

	// A mutation must invalidate the cached summary.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/transactions", transactionPayload{
		Amount: "5.00", Category: "Bills", Date: marchMillis(9), Type: "SPENDING",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/summary?year=2025&month=3", nil)
	sum = decodeBody[summaryPayload](t, resp)
	if sum.TotalSpending != "25.00" {
		t.Fatalf("summary after mutation: %+v", sum)
	}
}

func TestSummaryBadPeriod(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/summary?year=2025&month=13", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/categories", nil)
	all := decodeBody[[]categoryPayload](t, resp)
	if len(all) != 18 {
		t.Fatalf("seeded categories = %d, want 18", len(all))
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/categories", categoryPayload{Name: "Pets", Type: "SPENDING"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeBody[categoryPayload](t, resp)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/categories", categoryPayload{Name: "Pets", Type: "SPENDING"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/categories?kind=SPENDING", nil)
	spending := decodeBody[[]categoryPayload](t, resp)
	if len(spending) != 11 {
		t.Fatalf("spending categories = %d, want 11", len(spending))
	}

	var builtInID int64
	for _, c := range spending {
		if c.BuiltIn {
			builtInID = c.ID
			break
		}
	}
	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/categories/%d", ts.URL, builtInID), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("built-in delete status = %d, want 403", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/categories/%d", ts.URL, created.ID), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("custom delete status = %d", resp.StatusCode)
	}
}

func TestExportEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/export", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("empty export status = %d, want 409", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/transactions", transactionPayload{
		Amount: "9.99", Category: "Food", Date: marchMillis(2), Type: "SPENDING",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/export", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	out := decodeBody[map[string]string](t, resp)
	if !strings.HasPrefix(filepath.Base(out["path"]), "expenses_backup_") {
		t.Fatalf("export path = %q", out["path"])
	}
}

func TestLockEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/lock/status", nil)
	status := decodeBody[lockStatusPayload](t, resp)
	if status.State != "unconfigured" || status.PinSet {
		t.Fatalf("initial status: %+v", status)
	}

	// Confirmation mismatch leaves no PIN behind.
	doJSON(t, http.MethodPost, ts.URL+"/api/lock/setup", pinPayload{Pin: "1234"})
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/lock/confirm", pinPayload{Pin: "9999"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("mismatch status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/lock/setup", pinPayload{Pin: "123"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short pin status = %d, want 400", resp.StatusCode)
	}

	doJSON(t, http.MethodPost, ts.URL+"/api/lock/setup", pinPayload{Pin: "1234"})
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/lock/confirm", pinPayload{Pin: "1234"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("confirm status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/lock/status", nil)
	status = decodeBody[lockStatusPayload](t, resp)
	if !status.PinSet {
		t.Fatalf("status after setup: %+v", status)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/lock/validate", pinPayload{Pin: "0000"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong pin status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/lock/validate", pinPayload{Pin: "1234"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("right pin status = %d", resp.StatusCode)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	_, ts := newTestServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/api/lock/setup", pinPayload{Pin: "1234"})
	doJSON(t, http.MethodPost, ts.URL+"/api/lock/confirm", pinPayload{Pin: "1234"})

	for i := 0; i < 3; i++ {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/lock/validate", pinPayload{Pin: "0000"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i+1, resp.StatusCode)
		}
	}

	// Fourth attempt is rejected outright, correct PIN included.
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/lock/validate", pinPayload{Pin: "1234"})
	if resp.StatusCode != http.StatusLocked {
		t.Fatalf("locked-out status = %d, want 423", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["remainingLockoutSeconds"].(float64) <= 0 {
		t.Fatalf("remaining lockout: %v", body)
	}
}

func TestEventsStream(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/transactions", transactionPayload{
		Amount: "3.00", Category: "Food", Date: marchMillis(7), Type: "SPENDING",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/events", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	stream, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer stream.Body.Close()

	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	scanner := bufio.NewScanner(stream.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap snapshotPayload
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if len(snap.Spending) != 1 || snap.Summary.TotalSpending != "3.00" {
			t.Fatalf("snapshot: %+v", snap.Summary)
		}
		return
	}
	t.Fatalf("no snapshot event received: %v", scanner.Err())
}

func TestHealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := doJSON(t, http.MethodGet, ts.URL+path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
	}
}
