package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"pocketledger/internal/ledger"
	"pocketledger/internal/log"
)

type snapshotPayload struct {
	Summary  summaryPayload       `json:"summary"`
	Spending []transactionPayload `json:"spending"`
	Earnings []transactionPayload `json:"earnings"`
	Debts    []transactionPayload `json:"debts"`
	Balance  string               `json:"balance"`
}

func toSnapshotPayload(snap ledger.Snapshot) snapshotPayload {
	return snapshotPayload{
		Summary:  toSummaryPayload(snap.Summary),
		Spending: toPayloads(snap.Spending),
		Earnings: toPayloads(snap.Earnings),
		Debts:    toPayloads(snap.Debts),
		Balance:  snap.Balance.String(),
	}
}

// handleEvents streams ledger snapshots as server-sent events. A snapshot
// is pushed on subscribe and after every mutation or month change. Year
// and month query parameters switch the aggregation window first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if r.URL.Query().Get("year") != "" || r.URL.Query().Get("month") != "" {
		p, err := parsePeriod(r, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.ledger.SetPeriod(p); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.ledger.Subscribe()
	defer sub.Cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-sub.C:
			data, err := json.Marshal(toSnapshotPayload(snap))
			if err != nil {
				s.logger.ErrorContext(r.Context(), "Encoding snapshot failed", log.FieldError, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
