package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/querychat/querychat/internal/transcript/duckdb"
)

type transcriptQueryRequest struct {
	SQL      string `json:"sql"`
	Prefix   string `json:"prefix"`
	RowLimit int    `json:"row_limit"`
}

type transcriptQueryResponse struct {
	Columns []string       `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Stats   map[string]any `json:"stats"`
}

func handleTranscriptQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Transcripts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSCRIPTS_NOT_CONFIGURED", "transcript analytics is not configured", false, nil)
		return
	}

	var request transcriptQueryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid transcript query body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if !isAllowedSQL(request.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, nil)
		return
	}

	result, err := deps.Transcripts.Execute(r.Context(), duckdb.Request{
		SQL:      request.SQL,
		Prefix:   request.Prefix,
		RowLimit: request.RowLimit,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TRANSCRIPT_QUERY_FAILED", err.Error(), false, nil)
		return
	}

	writeJSON(w, http.StatusOK, transcriptQueryResponse{
		Columns: result.Columns,
		Rows:    result.Rows,
		Stats: map[string]any{
			"scanned_files": result.ScannedFiles,
			"scanned_bytes": result.ScannedBytes,
			"duration_ms":   result.Duration.Milliseconds(),
		},
	})
}

func isAllowedSQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}
