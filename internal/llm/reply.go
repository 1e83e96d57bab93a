package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedReply marks a model reply that does not conform to the expected
// wire format. The turn fails; the caller prompts the user to retry.
var ErrMalformedReply = errors.New("malformed llm reply")

type ReplyKind int

const (
	NeedsMoreInfo ReplyKind = iota
	SQLReady
)

// Reply is the structured decision extracted from one raw model reply.
// Exactly one of FollowupText or Statements is populated, depending on Kind.
type Reply struct {
	Kind         ReplyKind
	FollowupText string
	Statements   []string
}

const (
	responseTypeMoreInfo   = "more_info"
	responseTypeSQLQueries = "sql_queries"
)

type wireReply struct {
	ResponseType *string  `json:"response_type"`
	MoreInfoText string   `json:"more_info_text"`
	SQLQueries   []string `json:"sql_queries"`
}

// ParseReply decodes a raw model reply into a Reply. Model output is
// adversarial: structured decoding is used instead of field scraping, and any
// missing or mis-shaped required field is rejected.
func ParseReply(raw string) (Reply, error) {
	cleaned := stripMarkdownFences(raw)
	if cleaned == "" {
		return Reply{}, fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}

	var wire wireReply
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return Reply{}, fmt.Errorf("%w: decode reply: %v", ErrMalformedReply, err)
	}
	if wire.ResponseType == nil {
		return Reply{}, fmt.Errorf("%w: missing response_type", ErrMalformedReply)
	}

	switch *wire.ResponseType {
	case responseTypeMoreInfo:
		text := strings.TrimSpace(wire.MoreInfoText)
		if text == "" {
			return Reply{}, fmt.Errorf("%w: more_info reply without more_info_text", ErrMalformedReply)
		}
		return Reply{Kind: NeedsMoreInfo, FollowupText: text}, nil
	case responseTypeSQLQueries:
		statements := make([]string, 0, len(wire.SQLQueries))
		for _, statement := range wire.SQLQueries {
			if strings.TrimSpace(statement) == "" {
				continue
			}
			statements = append(statements, strings.TrimSpace(statement))
		}
		if len(statements) == 0 {
			return Reply{}, fmt.Errorf("%w: sql_queries reply without statements", ErrMalformedReply)
		}
		return Reply{Kind: SQLReady, Statements: statements}, nil
	default:
		return Reply{}, fmt.Errorf("%w: unknown response_type %q", ErrMalformedReply, *wire.ResponseType)
	}
}

// Models often wrap JSON output in markdown code fences despite instructions.
func stripMarkdownFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
