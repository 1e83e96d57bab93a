package llm

import (
	"context"
	"errors"
)

// ErrUnavailable marks transport or API failures talking to the model
// provider. Callers surface it to the user without retrying.
var ErrUnavailable = errors.New("llm unavailable")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []Message, userText string) (string, error)
}
