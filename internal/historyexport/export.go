// Package historyexport streams a board's status history out of the
// database, as NDJSON, to a writer or to object storage.
package historyexport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

// Uploader stores one object. objectstore.MinioStore satisfies it.
type Uploader interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

type Service struct {
	store  repo.Store
	logger *slog.Logger
	prefix string
	now    func() time.Time
}

func New(store repo.Store, logger *slog.Logger, cfg Config) *Service {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.KeyPrefix), "/")
	if prefix == "" {
		prefix = "boards"
	}
	return &Service{store: store, logger: logger, prefix: prefix, now: time.Now}
}

// WriteBoard writes the board's history at or after since, oldest first, and
// returns the number of entries written.
func (s *Service) WriteBoard(ctx context.Context, w io.Writer, boardID string, since time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("history export not initialized")
	}
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return 0, domain.Invalid("board", "board id is required")
	}

	var entries []domain.HistoryEntry
	err := s.store.Read(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		entries, err = r.History.ListByBoard(ctx, boardID, since)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list board history: %w", err)
	}

	exp := NewNDJSONExporter(w)
	for _, entry := range entries {
		if err := exp.Export(ctx, entry); err != nil {
			return 0, fmt.Errorf("export history %d: %w", entry.ID, err)
		}
	}
	return len(entries), nil
}

// UploadBoard exports the board's history into one object and returns its key.
func (s *Service) UploadBoard(ctx context.Context, up Uploader, boardID string, since time.Time) (string, int, error) {
	if s == nil {
		return "", 0, fmt.Errorf("history export not initialized")
	}
	if up == nil {
		return "", 0, fmt.Errorf("uploader is required")
	}
	var buf bytes.Buffer
	n, err := s.WriteBoard(ctx, &buf, boardID, since)
	if err != nil {
		return "", 0, err
	}
	key := s.objectKey(strings.TrimSpace(boardID))
	if err := up.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/x-ndjson"); err != nil {
		return "", 0, err
	}
	s.logger.Info("history exported", "board_id", boardID, "entries", n, "key", key)
	return key, n, nil
}

func (s *Service) objectKey(boardID string) string {
	return fmt.Sprintf("%s/%s/history-%s.ndjson", s.prefix, boardID, s.now().UTC().Format("20060102T150405Z"))
}
