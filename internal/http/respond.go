package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/researcher/internal/agent"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorBody{Error: protocol.ErrorShape{
		Code:      code,
		Message:   message,
		Retryable: status == http.StatusTooManyRequests || status >= 500,
	}})
}

// writeAgentError maps a research failure to its status and a message safe
// for end users.
func writeAgentError(w http.ResponseWriter, err error) {
	code := agent.ErrorCode(err)
	writeError(w, statusForCode(code), code, agent.UserMessage(err))
}

func statusForCode(code string) int {
	switch code {
	case protocol.ErrInvalidRequest:
		return http.StatusBadRequest
	case protocol.ErrUnauthorized:
		return http.StatusUnauthorized
	case protocol.ErrNotFound:
		return http.StatusNotFound
	case protocol.ErrMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case protocol.ErrInputRejected:
		return http.StatusUnprocessableEntity
	case protocol.ErrResourceExhausted:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
