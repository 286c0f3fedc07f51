package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcmkm/speech-to-text/internal/config"
	"github.com/mmcmkm/speech-to-text/internal/history"
)

func TestPruneHistory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	tests := []struct {
		name          string
		retentionDays int
		wantCount     int
	}{
		{"keeps recent entries", 30, 1},
		{"zero keeps everything", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer store.Close()

			now := time.Now()
			for _, created := range []time.Time{now.AddDate(0, 0, -45), now.Add(-time.Hour)} {
				if _, err := store.Record(ctx, history.Entry{SessionID: "s", CreatedAt: created, Text: "テスト"}); err != nil {
					t.Fatalf("Record failed: %v", err)
				}
			}

			pruneHistory(store, config.HistoryConfig{RetentionDays: tt.retentionDays}, logger)

			n, err := store.Count(ctx)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != tt.wantCount {
				t.Errorf("Expected %d entries, got %d", tt.wantCount, n)
			}
		})
	}
}
