package http

import (
	"net/http"

	"pocketledger/internal/core"
	"pocketledger/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	p, err := parsePeriod(r, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	kind := core.Kind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "kind must be SPENDING, EARNING or DEBT")
		return
	}

	txs, err := s.ledger.ListByKind(r.Context(), kind, p)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "List transactions failed", log.FieldError, err)
		writeError(w, errorStatus(err), "could not list transactions")
		return
	}
	writeJSON(w, http.StatusOK, toPayloads(txs))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, toPayload(tx))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var payload transactionPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := payload.toDomain()
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	id, err := s.ledger.Insert(r.Context(), tx)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Create transaction failed", log.FieldError, err, log.FieldKind, string(tx.Kind))
		writeError(w, errorStatus(err), err.Error())
		return
	}
	s.summaryCache.Purge()

	tx.ID = id
	writeJSON(w, http.StatusCreated, toPayload(tx))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var payload transactionPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := payload.toDomain()
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	tx.ID = id

	if err := s.ledger.Update(r.Context(), tx); err != nil {
		s.logger.ErrorContext(r.Context(), "Update transaction failed", log.FieldError, err, log.FieldTxID, id)
		writeError(w, errorStatus(err), err.Error())
		return
	}
	s.summaryCache.Purge()

	writeJSON(w, http.StatusOK, toPayload(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.ledger.Delete(r.Context(), id); err != nil {
		writeError(w, errorStatus(err), "transaction not found")
		return
	}
	s.summaryCache.Purge()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAllTransactions(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteAll(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "Delete all transactions failed", log.FieldError, err)
		writeError(w, errorStatus(err), "could not delete transactions")
		return
	}
	s.summaryCache.Purge()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	p, err := parsePeriod(r, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if cached, ok := s.summaryCache.Get(p.String()); ok {
		writeJSON(w, http.StatusOK, toSummaryPayload(cached))
		return
	}

	summary, err := s.ledger.Summary(r.Context(), p)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Summary failed", log.FieldError, err)
		writeError(w, errorStatus(err), "could not compute summary")
		return
	}
	s.summaryCache.Set(p.String(), summary)

	writeJSON(w, http.StatusOK, toSummaryPayload(summary))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	path, err := s.exporter.Export(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Export failed", log.FieldError, err)
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}
