// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/ManuGH/therapyflow/internal/domain/session/store"
	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/ManuGH/therapyflow/internal/safety"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	// Without ?limit every session is returned; MaxListLimit only bounds explicit requests.
	if s.cfg.MaxListLimit > 0 && limit > s.cfg.MaxListLimit {
		limit = s.cfg.MaxListLimit
	}

	list, err := s.deps.Sessions.ListRecent(r.Context(), limit)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api.sessions")
		logger.Error().Err(err).Msg("listing sessions failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}
	if list == nil {
		list = []*model.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.deps.Sessions.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api.sessions")
		logger.Error().Err(err).Str(log.FieldSessionID, id).Msg("loading session failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to fetch session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type safetyCheckRequest struct {
	Transcript any `json:"transcript"`
}

type safetyCheckResponse struct {
	safety.Assessment
	BotResponse string `json:"botResponse"`
}

// handleSafetyCheck classifies arbitrary JSON input without creating a
// session. Non-string transcripts classify as not urgent.
func (s *Server) handleSafetyCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req safetyCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a := safety.ClassifyValue(req.Transcript)
	text, _ := req.Transcript.(string)
	writeJSON(w, http.StatusOK, safetyCheckResponse{Assessment: a, BotResponse: safety.Reply(text, a)})
}
