package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/querychat/querychat/internal/engine"
	"github.com/querychat/querychat/internal/llm"
	"github.com/querychat/querychat/internal/sqlrun"
)

type turnRequest struct {
	Text string `json:"text"`
}

type turnResponse struct {
	Reply    string `json:"reply"`
	Resolved bool   `json:"resolved"`
}

func handleTurn(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ENGINE_NOT_CONFIGURED", "conversation engine is not configured", false, nil)
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("session"))
	if sessionID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_REQUIRED", "session id is required", false, nil)
		return
	}

	var request turnRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid turn request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Text) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TEXT_REQUIRED", "text is required", false, nil)
		return
	}

	turn, err := deps.Engine.HandleTurn(r.Context(), sessionID, request.Text)
	if err != nil {
		writeTurnError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{Reply: turn.Text, Resolved: turn.Resolved})
}

func writeTurnError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	var execErr *sqlrun.ExecError
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		writeError(r.Context(), w, http.StatusBadGateway, "LLM_UNAVAILABLE", "language model is unavailable", true, nil)
	case errors.Is(err, llm.ErrMalformedReply):
		writeError(r.Context(), w, http.StatusBadGateway, "LLM_REPLY_MALFORMED", "language model returned an unusable reply", true, nil)
	case errors.As(err, &execErr):
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_EXECUTION_FAILED", execErr.Error(), false, map[string]any{"statement": execErr.Statement})
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", err.Error(), false, nil)
	}
}

func handleSessionStatus(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ENGINE_NOT_CONFIGURED", "conversation engine is not configured", false, nil)
		return
	}
	sessionID := strings.TrimSpace(r.PathValue("session"))
	if sessionID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_REQUIRED", "session id is required", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"active":     deps.Engine.ActiveSession(sessionID),
	})
}

func handleSessionCancel(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ENGINE_NOT_CONFIGURED", "conversation engine is not configured", false, nil)
		return
	}
	sessionID := strings.TrimSpace(r.PathValue("session"))
	if sessionID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_REQUIRED", "session id is required", false, nil)
		return
	}
	deps.Engine.Cancel(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func handleSchema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ddl": engine.SchemaDDL()})
}
