package historyexport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/repo"
	"github.com/taskflow-labs/taskflow/internal/repo/memstore"
)

type fakeUploader struct {
	key         string
	body        []byte
	size        int64
	contentType string
	err         error
}

func (f *fakeUploader) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.key, f.body, f.size, f.contentType = key, raw, size, contentType
	return nil
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seededService(t *testing.T) *Service {
	t.Helper()
	store := memstore.New()
	err := store.WithinTx(context.Background(), func(ctx context.Context, r repo.Repos) error {
		for i, to := range []string{"in_progress", "done"} {
			if _, err := r.History.Append(ctx, domain.HistoryEntry{
				TaskID: "t1", BoardID: "b1", FromStatus: "todo", ToStatus: to,
				Actor: "alice", OccurredAt: base.Add(time.Duration(i) * time.Hour),
			}); err != nil {
				return err
			}
		}
		_, err := r.History.Append(ctx, domain.HistoryEntry{
			TaskID: "t9", BoardID: "b2", ToStatus: "todo", Actor: "bob", OccurredAt: base,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed history: %v", err)
	}
	s := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{KeyPrefix: "/exports/"})
	s.now = func() time.Time { return base }
	return s
}

func TestWriteBoardEmitsNDJSON(t *testing.T) {
	s := seededService(t)
	var buf bytes.Buffer

	n, err := s.WriteBoard(context.Background(), &buf, "b1", time.Time{})
	if err != nil {
		t.Fatalf("WriteBoard: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if n != 2 || len(lines) != 2 {
		t.Fatalf("n=%d lines=%d", n, len(lines))
	}
	var first exportEntry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.ToStatus != "in_progress" || first.BoardID != "b1" || first.IntegritySHA256 == "" {
		t.Fatalf("first=%+v", first)
	}
	if first.OccurredAt != "2026-03-01T12:00:00Z" {
		t.Fatalf("occurred_at=%q", first.OccurredAt)
	}
}

func TestWriteBoardSince(t *testing.T) {
	s := seededService(t)
	var buf bytes.Buffer
	n, err := s.WriteBoard(context.Background(), &buf, "b1", base.Add(30*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if !strings.Contains(buf.String(), `"to_status":"done"`) {
		t.Fatalf("unexpected output %s", buf.String())
	}
	if _, err := s.WriteBoard(context.Background(), &buf, " ", time.Time{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank board err=%v", err)
	}
}

func TestUploadBoard(t *testing.T) {
	s := seededService(t)
	up := &fakeUploader{}

	key, n, err := s.UploadBoard(context.Background(), up, "b1", time.Time{})
	if err != nil {
		t.Fatalf("UploadBoard: %v", err)
	}
	if key != "exports/b1/history-20260301T120000Z.ndjson" || up.key != key {
		t.Fatalf("key=%q uploaded=%q", key, up.key)
	}
	if n != 2 || up.size != int64(len(up.body)) || up.contentType != "application/x-ndjson" {
		t.Fatalf("n=%d size=%d body=%d type=%q", n, up.size, len(up.body), up.contentType)
	}

	up.err = errors.New("bucket gone")
	if _, _, err := s.UploadBoard(context.Background(), up, "b1", time.Time{}); err == nil {
		t.Fatalf("expected upload error")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}},
		{name: "stdout", cfg: Config{Format: "NDJSON", Destination: "stdout"}},
		{name: "csv", cfg: Config{Format: "csv"}, wantErr: true},
		{name: "kafka", cfg: Config{Destination: "kafka"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("Validate()=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}
