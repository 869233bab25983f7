package http

import (
	"errors"
	"net/http"

	"pocketledger/internal/guard"
	"pocketledger/internal/log"
)

type pinPayload struct {
	Pin string `json:"pin"`
}

type lockStatusPayload struct {
	State            string `json:"state"`
	PinSet           bool   `json:"pinSet"`
	RequiresPin      bool   `json:"requiresPin"`
	FailedAttempts   int    `json:"failedAttempts"`
	RemainingLockout int    `json:"remainingLockoutSeconds"`
}

func (s *Server) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state, err := s.guard.State(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Guard state lookup failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "could not read lock state")
		return
	}
	pinSet, err := s.guard.IsPinSet(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read lock state")
		return
	}
	requires, err := s.guard.ShouldRequirePin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read lock state")
		return
	}
	remaining, err := s.guard.RemainingLockoutSeconds(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read lock state")
		return
	}

	writeJSON(w, http.StatusOK, lockStatusPayload{
		State:            string(state),
		PinSet:           pinSet,
		RequiresPin:      requires,
		FailedAttempts:   s.guard.FailedAttempts(),
		RemainingLockout: remaining,
	})
}

// handleLockSetup records a candidate PIN awaiting confirmation.
func (s *Server) handleLockSetup(w http.ResponseWriter, r *http.Request) {
	var payload pinPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.guard.BeginSetup(payload.Pin); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLockConfirm finishes setup: on a match the PIN is hashed and saved.
func (s *Server) handleLockConfirm(w http.ResponseWriter, r *http.Request) {
	var payload pinPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.guard.ConfirmSetup(r.Context(), payload.Pin); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLockValidate(w http.ResponseWriter, r *http.Request) {
	var payload pinPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.guard.ValidatePin(r.Context(), payload.Pin)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, guard.ErrLockedOut):
		remaining, rErr := s.guard.RemainingLockoutSeconds(r.Context())
		if rErr != nil {
			remaining = 0
		}
		writeJSON(w, http.StatusLocked, map[string]any{
			"error":                   err.Error(),
			"remainingLockoutSeconds": remaining,
		})
	default:
		writeJSON(w, errorStatus(err), map[string]any{
			"error":          err.Error(),
			"failedAttempts": s.guard.FailedAttempts(),
		})
	}
}

func (s *Server) handleLockActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.RecordActivity(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "Recording activity failed", log.FieldError, err)
		writeError(w, errorStatus(err), "could not record activity")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChangePin replaces the stored PIN after re-validating the old one.
func (s *Server) handleChangePin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CurrentPin string `json:"currentPin"`
		NewPin     string `json:"newPin"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.guard.ValidatePin(r.Context(), payload.CurrentPin); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if err := s.guard.SetPin(r.Context(), payload.NewPin); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemovePin(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.RemovePin(r.Context()); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
