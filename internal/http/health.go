package http

import (
	"net/http"

	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

type healthResponse struct {
	Status     string `json:"status"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Version    string `json:"version,omitempty"`
	Protocol   int    `json:"protocol"`
	ActiveRuns int    `json:"active_runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Provider:   s.cfg.Provider,
		Model:      s.svc.Model(),
		Version:    s.cfg.Version,
		Protocol:   protocol.ProtocolVersion,
		ActiveRuns: len(s.svc.Runs().Active()),
	})
}
