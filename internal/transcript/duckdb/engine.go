// Package duckdb runs read-only analytics over archived transcript parquet
// files. Objects are staged to a temp dir and exposed as a single
// "transcripts" view.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/querychat/querychat/internal/storage"
)

type Request struct {
	SQL      string
	Prefix   string
	RowLimit int
}

type Result struct {
	Columns      []string
	Rows         [][]any
	ScannedFiles int
	ScannedBytes int64
	Duration     time.Duration
}

type Engine struct {
	Store storage.ObjectStore
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Execute(ctx context.Context, request Request) (Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if e.Store == nil {
		return Result{}, fmt.Errorf("object store is required")
	}

	start := time.Now()
	infos, err := e.Store.List(ctx, request.Prefix)
	if err != nil {
		return Result{}, fmt.Errorf("list transcripts: %w", err)
	}
	if len(infos) == 0 {
		return Result{}, fmt.Errorf("no transcripts under prefix %q", request.Prefix)
	}

	workDir, err := os.MkdirTemp("", "querychat-transcripts-")
	if err != nil {
		return Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := make([]string, 0, len(infos))
	var scannedBytes int64
	for index, info := range infos {
		reader, err := e.Store.Get(ctx, info.Key)
		if err != nil {
			return Result{}, fmt.Errorf("get object %q: %w", info.Key, err)
		}

		localPath := filepath.Join(workDir, fmt.Sprintf("turn_%d.parquet", index))
		if err := writeFile(localPath, reader); err != nil {
			_ = reader.Close()
			return Result{}, fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		if err := reader.Close(); err != nil {
			return Result{}, fmt.Errorf("close object %q: %w", info.Key, err)
		}

		localPaths = append(localPaths, localPath)
		scannedBytes += info.Size
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW transcripts AS SELECT * FROM read_parquet(%s)`, quoteStringArray(localPaths))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return Result{}, fmt.Errorf("create transcripts view: %w", err)
	}

	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return Result{
		Columns:      columns,
		Rows:         resultRows,
		ScannedFiles: len(infos),
		ScannedBytes: scannedBytes,
		Duration:     time.Since(start),
	}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
