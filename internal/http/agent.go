package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nextlevelbuilder/researcher/internal/agent"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

// handleAgent handles POST /agent: {"query": "..."} → research response.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, protocol.ErrMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorize(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req protocol.AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, protocol.ErrInvalidRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "Invalid JSON: "+err.Error())
		return
	}

	res, err := s.svc.Research(r.Context(), agent.RunRequest{
		Query:      req.Query,
		SessionKey: rateLimitKey(r, s.cfg.Token),
	})
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(res))
}

func toAgentResponse(res *agent.RunResult) *protocol.AgentResponse {
	return &protocol.AgentResponse{
		Response:  res.Response,
		RunID:     res.RunID,
		ToolsUsed: res.ToolsUsed,
		Cached:    res.Cached,
	}
}
