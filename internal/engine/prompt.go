package engine

import (
	_ "embed"
	"strings"

	"github.com/querychat/querychat/internal/llm"
)

// The literal DDL is embedded into the system prompt so the model grounds its
// SQL in the real schema.
//
//go:embed schema.sql
var schemaDDL string

const wireFormatInstructions = `You MUST answer with a single JSON object and nothing else, using this format:
{"response_type": "more_info" | "sql_queries", "more_info_text": "<question for the client, required when response_type is more_info>", "sql_queries": ["<SQL statement>", ...]}
If you need more information you MUST ask the client for it via a more_info response.
If the client asks to insert information they MUST provide values for EVERY field.
The same applies to other requests, including creating tables and fetching data.
Only when you have sufficient information, answer with response_type "sql_queries" and the final PostgreSQL statements in execution order.`

func SchemaDDL() string {
	return strings.TrimSpace(schemaDDL)
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an expert database engineer. You create SQL queries for the following PostgreSQL schema:\n\n")
	b.WriteString(SchemaDDL())
	b.WriteString("\n\n")
	b.WriteString(wireFormatInstructions)
	return b.String()
}

// historyMessages interleaves the recorded followups into alternating
// user/assistant turns. UserFollowups[i] is the user text that prompted
// AssistantFollowups[i]; the current turn's user text is carried separately.
func historyMessages(userFollowups, assistantFollowups []string) []llm.Message {
	messages := make([]llm.Message, 0, len(userFollowups)+len(assistantFollowups))
	for i, assistantText := range assistantFollowups {
		if i < len(userFollowups) {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userFollowups[i]})
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: assistantText})
	}
	return messages
}
