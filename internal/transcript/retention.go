package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type RetentionConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

type RetentionSummary struct {
	Scanned int
	Deleted int
}

// RunRetentionOnce deletes archived transcripts older than MaxAge.
func (s *Service) RunRetentionOnce(ctx context.Context, cfg RetentionConfig) (RetentionSummary, error) {
	if s.Store == nil {
		return RetentionSummary{}, fmt.Errorf("object store is required")
	}
	if cfg.MaxAge <= 0 {
		return RetentionSummary{}, fmt.Errorf("retention max age must be positive")
	}

	infos, err := s.Store.List(ctx, "")
	if err != nil {
		return RetentionSummary{}, fmt.Errorf("list transcripts: %w", err)
	}

	cutoff := time.Now().Add(-cfg.MaxAge)
	summary := RetentionSummary{Scanned: len(infos)}
	for _, info := range infos {
		if info.LastModified.IsZero() || !info.LastModified.Before(cutoff) {
			continue
		}
		if err := s.Store.Delete(ctx, info.Key); err != nil {
			return summary, fmt.Errorf("delete transcript %q: %w", info.Key, err)
		}
		summary.Deleted++
	}
	return summary, nil
}

// RunRetentionLoop sweeps on the configured interval until ctx is done.
func (s *Service) RunRetentionLoop(ctx context.Context, cfg RetentionConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := s.RunRetentionOnce(ctx, cfg)
			if err != nil {
				if s.Logger != nil {
					s.Logger.WarnContext(ctx, "transcript retention sweep failed", slog.Any("error", err))
				}
				continue
			}
			if s.Logger != nil && summary.Deleted > 0 {
				s.Logger.InfoContext(ctx, "transcript retention sweep",
					slog.Int("scanned", summary.Scanned),
					slog.Int("deleted", summary.Deleted),
				)
			}
		}
	}
}
