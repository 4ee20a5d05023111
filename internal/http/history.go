package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/researcher/internal/history"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

type historyListResponse struct {
	Runs []history.Record `json:"runs"`
}

// handleHistoryList handles GET /history?q=&limit=.
func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var (
		runs []history.Record
		err  error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		runs, err = s.history.Search(r.Context(), q, limit)
	} else {
		runs, err = s.history.List(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, protocol.ErrInternal, "failed to read history")
		return
	}
	if runs == nil {
		runs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, historyListResponse{Runs: runs})
}

// handleHistoryGet handles GET /history/{id}.
func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "invalid run id")
		return
	}
	rec, err := s.history.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, protocol.ErrNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, protocol.ErrInternal, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
