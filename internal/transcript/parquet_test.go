package transcript

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
)

func TestEncodeRecordToParquet(t *testing.T) {
	record := Record{
		SessionID:          "chat-42",
		OriginalQuery:      "add two students",
		UserFollowups:      []string{"add two students", "Alice and Bob"},
		AssistantFollowups: []string{"Which students should I add?"},
		FinalUserText:      "Alice and Bob",
		Statements: []string{
			"INSERT INTO student (roll_no, s_name) VALUES (1, 'Alice')",
			"INSERT INTO student (roll_no, s_name) VALUES (2, 'Bob')",
		},
		Result:     "successfully inserted 1 row(s)\nsuccessfully inserted 1 row(s)",
		ResolvedAt: time.Date(2026, time.March, 4, 9, 30, 0, 0, time.UTC),
	}

	data, err := EncodeRecordToParquet(record, func(string) string { return "insert" })
	if err != nil {
		t.Fatalf("EncodeRecordToParquet() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}

	reader := parquet.NewGenericReader[parquetTurn](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]parquetTurn, 2)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("read rows = %d", count)
	}
	if rows[0].StatementIndex != 0 || rows[1].StatementIndex != 1 {
		t.Fatalf("unexpected statement indexes: %+v", rows)
	}
	if rows[0].SessionID != "chat-42" || rows[1].SessionID != "chat-42" {
		t.Fatalf("unexpected session ids: %+v", rows)
	}
	if rows[1].Verb != "insert" {
		t.Fatalf("Verb = %q", rows[1].Verb)
	}
	followups := strings.Split(rows[0].UserFollowups, followupSeparator)
	if len(followups) != 2 || followups[1] != "Alice and Bob" {
		t.Fatalf("unexpected user followups: %q", rows[0].UserFollowups)
	}
	if rows[0].ResolvedAtUnixMs != record.ResolvedAt.UnixMilli() {
		t.Fatalf("ResolvedAtUnixMs = %d", rows[0].ResolvedAtUnixMs)
	}
}

func TestEncodeRecordToParquetRequiresStatements(t *testing.T) {
	_, err := EncodeRecordToParquet(Record{SessionID: "chat-1"}, nil)
	if err == nil {
		t.Fatal("expected error for record without statements")
	}
}
