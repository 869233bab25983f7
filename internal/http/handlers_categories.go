package http

import (
	"net/http"
	"strings"

	"pocketledger/internal/core"
	"pocketledger/internal/log"
)

type categoryPayload struct {
	ID      int64  `json:"id,omitempty"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	BuiltIn bool   `json:"builtIn"`
}

func toCategoryPayload(c core.Category) categoryPayload {
	return categoryPayload{ID: c.ID, Name: c.Name, Type: string(c.Kind), BuiltIn: c.BuiltIn}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	var (
		cats []core.Category
		err  error
	)
	if v := r.URL.Query().Get("kind"); v != "" {
		kind := core.Kind(v)
		if !kind.Valid() {
			writeError(w, http.StatusBadRequest, "kind must be SPENDING, EARNING or DEBT")
			return
		}
		cats, err = s.store.ListCategoriesByKind(r.Context(), kind)
	} else {
		cats, err = s.store.ListCategories(r.Context())
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "List categories failed", log.FieldError, err)
		writeError(w, errorStatus(err), "could not list categories")
		return
	}

	out := make([]categoryPayload, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryPayload(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var payload categoryPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cat := core.Category{
		Name: strings.TrimSpace(payload.Name),
		Kind: core.Kind(payload.Type),
	}
	if err := cat.Validate(); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	id, err := s.store.InsertCategory(r.Context(), cat)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	cat.ID = id
	writeJSON(w, http.StatusCreated, toCategoryPayload(cat))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.DeleteCategory(r.Context(), id); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
