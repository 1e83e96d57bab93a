// Package transcript archives resolved conversation turns to object storage
// as parquet, and prunes them after a retention window.
package transcript

import "time"

// Record is one resolved turn: the full conversation that produced the SQL,
// the statements that ran, and the rendered result.
type Record struct {
	SessionID          string
	OriginalQuery      string
	UserFollowups      []string
	AssistantFollowups []string
	FinalUserText      string
	Statements         []string
	Result             string
	ResolvedAt         time.Time
}
