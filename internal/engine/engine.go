package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/querychat/querychat/internal/conversation"
	"github.com/querychat/querychat/internal/llm"
	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/transcript"
)

// Executor runs one SQL statement and renders a one-line result.
type Executor interface {
	Execute(ctx context.Context, statement string) (string, error)
}

// Archiver records resolved turns. Archiving is best effort and never fails
// the user-visible turn.
type Archiver interface {
	ArchiveTurn(ctx context.Context, record transcript.Record) error
}

// Turn is the outcome of one inbound-message cycle.
type Turn struct {
	Text     string
	Resolved bool
}

// Engine drives one conversation turn: build the prompt from session state,
// call the model, apply the parsed reply, and either continue the
// conversation or execute the final SQL.
type Engine struct {
	Store     *conversation.Store
	Generator llm.Generator
	Executor  Executor
	Archiver  Archiver
	Logger    *slog.Logger
}

func (e *Engine) HandleTurn(ctx context.Context, sessionID, userText string) (Turn, error) {
	state := e.Store.GetOrCreate(sessionID, userText)

	history := historyMessages(state.UserFollowups, state.AssistantFollowups)
	raw, err := e.Generator.Generate(ctx, systemPrompt(), history, userText)
	if err != nil {
		observability.IncrementTurn("llm_unavailable")
		return Turn{}, err
	}

	reply, err := llm.ParseReply(raw)
	if err != nil {
		observability.IncrementTurn("malformed_reply")
		return Turn{}, err
	}

	switch reply.Kind {
	case llm.NeedsMoreInfo:
		if err := e.Store.RecordFollowup(sessionID, userText, reply.FollowupText); err != nil {
			return Turn{}, err
		}
		observability.IncrementTurn("followup")
		return Turn{Text: reply.FollowupText}, nil
	default:
		return e.resolve(ctx, sessionID, userText, reply.Statements)
	}
}

func (e *Engine) resolve(ctx context.Context, sessionID, userText string, statements []string) (Turn, error) {
	if err := e.Store.Resolve(sessionID, statements); err != nil {
		return Turn{}, err
	}

	lines := make([]string, 0, len(statements))
	for _, statement := range statements {
		line, err := e.Executor.Execute(ctx, statement)
		if err != nil {
			// Earlier statements in the batch are already committed.
			// Drop the pending SQL but keep the conversation so the
			// user can retry or rephrase.
			e.Store.Reopen(sessionID)
			observability.IncrementTurn("sql_failed")
			return Turn{}, err
		}
		lines = append(lines, line)
	}
	result := strings.Join(lines, "\n")

	e.archive(ctx, sessionID, userText, statements, result)
	e.Store.Reset(sessionID)
	observability.IncrementTurn("resolved")
	return Turn{Text: result, Resolved: true}, nil
}

func (e *Engine) archive(ctx context.Context, sessionID, userText string, statements []string, result string) {
	if e.Archiver == nil {
		return
	}
	state := e.Store.GetOrCreate(sessionID, userText)
	record := transcript.Record{
		SessionID:          sessionID,
		OriginalQuery:      state.OriginalQuery,
		UserFollowups:      state.UserFollowups,
		AssistantFollowups: state.AssistantFollowups,
		FinalUserText:      userText,
		Statements:         statements,
		Result:             result,
		ResolvedAt:         time.Now().UTC(),
	}
	if err := e.Archiver.ArchiveTurn(ctx, record); err != nil && e.Logger != nil {
		e.Logger.WarnContext(ctx, "transcript archive failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}
}

// Cancel discards any in-progress session state.
func (e *Engine) Cancel(sessionID string) {
	e.Store.Reset(sessionID)
}

// ActiveSession reports whether a conversation is in progress.
func (e *Engine) ActiveSession(sessionID string) bool {
	return e.Store.Active(sessionID)
}
