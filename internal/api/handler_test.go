package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/querychat/querychat/internal/auth"
	"github.com/querychat/querychat/internal/config"
	"github.com/querychat/querychat/internal/conversation"
	"github.com/querychat/querychat/internal/engine"
	"github.com/querychat/querychat/internal/llm"
	"github.com/querychat/querychat/internal/transcript/duckdb"
)

type scriptedGenerator struct {
	replies []string
	err     error
}

func (g *scriptedGenerator) Generate(context.Context, string, []llm.Message, string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", fmt.Errorf("no scripted reply left")
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

type fakeExecutor struct {
	results map[string]string
}

func (f *fakeExecutor) Execute(_ context.Context, statement string) (string, error) {
	return f.results[statement], nil
}

type fakeTranscripts struct {
	result duckdb.Result
	err    error
	last   duckdb.Request
}

func (f *fakeTranscripts) Execute(_ context.Context, request duckdb.Request) (duckdb.Result, error) {
	f.last = request
	return f.result, f.err
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("querychat-api", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func newTestEngine(generator llm.Generator, executor engine.Executor) *engine.Engine {
	return &engine.Engine{
		Store:     conversation.NewStore(),
		Generator: generator,
		Executor:  executor,
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestReadyEndpointReportsFailure(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{
		Readiness: func(context.Context) error { return errors.New("database unreachable") },
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", recorder.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error_code"] != "NOT_READY" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestTurnEndpointResolves(t *testing.T) {
	generator := &scriptedGenerator{replies: []string{
		`{"response_type":"sql_queries","sql_queries":["SELECT roll_no, s_name FROM student"]}`,
	}}
	executor := &fakeExecutor{results: map[string]string{
		"SELECT roll_no, s_name FROM student": "roll_no s_name\n1 Alice\n2 Bob",
	}}
	handler := NewHandler(testConfig(t), Dependencies{Engine: newTestEngine(generator, executor)})

	body := strings.NewReader(`{"text":"show names of all students"}`)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/sessions/chat-1/turns", body))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}

	var payload turnResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !payload.Resolved {
		t.Fatal("expected resolved turn")
	}
	if payload.Reply != "roll_no s_name\n1 Alice\n2 Bob" {
		t.Fatalf("reply = %q", payload.Reply)
	}
}

func TestTurnEndpointMapsModelErrors(t *testing.T) {
	cases := []struct {
		name      string
		generator *scriptedGenerator
		code      string
	}{
		{
			name:      "malformed reply",
			generator: &scriptedGenerator{replies: []string{"not json"}},
			code:      "LLM_REPLY_MALFORMED",
		},
		{
			name:      "model unreachable",
			generator: &scriptedGenerator{err: fmt.Errorf("reach model: %w", llm.ErrUnavailable)},
			code:      "LLM_UNAVAILABLE",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(testConfig(t), Dependencies{Engine: newTestEngine(tc.generator, &fakeExecutor{})})

			body := strings.NewReader(`{"text":"list students"}`)
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/sessions/chat-1/turns", body))
			if recorder.Code != http.StatusBadGateway {
				t.Fatalf("status = %d", recorder.Code)
			}

			var payload map[string]any
			if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if payload["error_code"] != tc.code {
				t.Fatalf("error_code = %v, want %s", payload["error_code"], tc.code)
			}
			if payload["retryable"] != true {
				t.Fatalf("retryable = %v", payload["retryable"])
			}
		})
	}
}

func TestTurnEndpointRejectsEmptyText(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Engine: newTestEngine(&scriptedGenerator{}, &fakeExecutor{})})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/sessions/chat-1/turns", strings.NewReader(`{"text":"  "}`)))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestSessionStatusAndCancel(t *testing.T) {
	generator := &scriptedGenerator{replies: []string{
		`{"response_type":"more_info","more_info_text":"Which student?"}`,
	}}
	handler := NewHandler(testConfig(t), Dependencies{Engine: newTestEngine(generator, &fakeExecutor{})})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/sessions/chat-9/turns", strings.NewReader(`{"text":"update a student"}`)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("turn status = %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/sessions/chat-9", nil))
	var status map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status["active"] != true {
		t.Fatalf("status = %v", status)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/v1/sessions/chat-9", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/sessions/chat-9", nil))
	if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status["active"] != false {
		t.Fatalf("status after cancel = %v", status)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(payload["ddl"], "student") {
		t.Fatalf("ddl = %q", payload["ddl"])
	}
}

func TestTranscriptQueryEndpoint(t *testing.T) {
	transcripts := &fakeTranscripts{result: duckdb.Result{
		Columns:      []string{"c"},
		Rows:         [][]any{{int64(3)}},
		ScannedFiles: 2,
	}}
	handler := NewHandler(testConfig(t), Dependencies{Transcripts: transcripts})

	body := strings.NewReader(`{"sql":"SELECT COUNT(*) AS c FROM transcripts","prefix":"date=2026-03-04/","row_limit":100}`)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/transcripts/query", body))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	if transcripts.last.Prefix != "date=2026-03-04/" || transcripts.last.RowLimit != 100 {
		t.Fatalf("request = %+v", transcripts.last)
	}

	var payload transcriptQueryResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(payload.Rows) != 1 || payload.Columns[0] != "c" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestTranscriptQueryRejectsWrites(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Transcripts: &fakeTranscripts{}})

	body := strings.NewReader(`{"sql":"DROP TABLE transcripts"}`)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/transcripts/query", body))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error_code"] != "SQL_NOT_ALLOWED" {
		t.Fatalf("error_code = %v", payload["error_code"])
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Required = true
	validator, err := auth.NewStaticAPIKeyValidator("secret-key")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	handler := NewHandler(cfg, Dependencies{
		Engine:         newTestEngine(&scriptedGenerator{}, &fakeExecutor{}),
		AuthMiddleware: auth.Middleware(nil, validator),
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", recorder.Code)
	}

	request := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
	request.Header.Set("X-API-Key", "secret-key")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d", recorder.Code)
	}

	// Health stays open even when auth is required.
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("health status = %d", recorder.Code)
	}
}
