package transcript

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// One parquet row per executed statement keeps the archive flat and easy to
// aggregate; conversation context repeats across the rows of a turn.
type parquetTurn struct {
	SessionID          string `parquet:"session_id"`
	OriginalQuery      string `parquet:"original_query"`
	UserFollowups      string `parquet:"user_followups"`
	AssistantFollowups string `parquet:"assistant_followups"`
	FinalUserText      string `parquet:"final_user_text"`
	StatementIndex     int32  `parquet:"statement_index"`
	Statement          string `parquet:"statement"`
	Verb               string `parquet:"verb"`
	Result             string `parquet:"result"`
	ResolvedAtUnixMs   int64  `parquet:"resolved_at_unix_ms"`
}

const followupSeparator = "\x1f"

func EncodeRecordToParquet(record Record, classify func(string) string) ([]byte, error) {
	if len(record.Statements) == 0 {
		return nil, fmt.Errorf("at least one statement is required")
	}

	rows := make([]parquetTurn, 0, len(record.Statements))
	for index, statement := range record.Statements {
		verb := ""
		if classify != nil {
			verb = classify(statement)
		}
		rows = append(rows, parquetTurn{
			SessionID:          record.SessionID,
			OriginalQuery:      record.OriginalQuery,
			UserFollowups:      strings.Join(record.UserFollowups, followupSeparator),
			AssistantFollowups: strings.Join(record.AssistantFollowups, followupSeparator),
			FinalUserText:      record.FinalUserText,
			StatementIndex:     int32(index),
			Statement:          statement,
			Verb:               verb,
			Result:             record.Result,
			ResolvedAtUnixMs:   record.ResolvedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetTurn](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
