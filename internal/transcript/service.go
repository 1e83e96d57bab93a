package transcript

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/sqlrun"
	"github.com/querychat/querychat/internal/storage"
)

// Service writes resolved turns to the object store. It satisfies the
// engine's Archiver dependency.
type Service struct {
	Store  storage.ObjectStore
	Logger *slog.Logger
}

func (s *Service) ArchiveTurn(ctx context.Context, record Record) error {
	if s.Store == nil {
		return fmt.Errorf("object store is required")
	}
	if record.ResolvedAt.IsZero() {
		return fmt.Errorf("resolved timestamp is required")
	}

	data, err := EncodeRecordToParquet(record, func(statement string) string {
		return string(sqlrun.Classify(statement))
	})
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	key, err := storage.BuildTranscriptPath(record.SessionID, record.ResolvedAt, record.ResolvedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("build transcript path: %w", err)
	}

	if _, err := s.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		return fmt.Errorf("store transcript: %w", err)
	}
	observability.IncrementTranscriptArchived()
	if s.Logger != nil {
		s.Logger.DebugContext(ctx, "transcript archived",
			slog.String("session_id", record.SessionID),
			slog.String("key", key),
			slog.Int("bytes", len(data)),
		)
	}
	return nil
}
