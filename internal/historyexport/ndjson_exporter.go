package historyexport

import (
	"context"
	"encoding/json"
	"io"

	"github.com/taskflow-labs/taskflow/internal/domain"
)

// Exporter sends history entries to external systems.
type Exporter interface {
	Export(ctx context.Context, entry domain.HistoryEntry) error
}

// NDJSONExporter writes history entries as newline-delimited JSON.
type NDJSONExporter struct {
	enc *json.Encoder
}

func NewNDJSONExporter(w io.Writer) *NDJSONExporter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	return &NDJSONExporter{enc: enc}
}

func (e *NDJSONExporter) Export(ctx context.Context, entry domain.HistoryEntry) error {
	return e.enc.Encode(exportEntryFromDomain(entry))
}

type exportEntry struct {
	ID              int64  `json:"id"`
	TaskID          string `json:"task_id"`
	BoardID         string `json:"board_id"`
	FromStatus      string `json:"from_status"`
	ToStatus        string `json:"to_status"`
	FromStatusID    string `json:"from_status_id,omitempty"`
	ToStatusID      string `json:"to_status_id,omitempty"`
	TransitionID    string `json:"transition_id,omitempty"`
	Actor           string `json:"actor"`
	Comment         string `json:"comment,omitempty"`
	OccurredAt      string `json:"occurred_at"`
	IntegritySHA256 string `json:"integrity_sha256"`
}

func exportEntryFromDomain(entry domain.HistoryEntry) exportEntry {
	return exportEntry{
		ID:              entry.ID,
		TaskID:          entry.TaskID,
		BoardID:         entry.BoardID,
		FromStatus:      entry.FromStatus,
		ToStatus:        entry.ToStatus,
		FromStatusID:    entry.FromStatusID,
		ToStatusID:      entry.ToStatusID,
		TransitionID:    entry.TransitionID,
		Actor:           entry.Actor,
		Comment:         entry.Comment,
		OccurredAt:      entry.OccurredAt.UTC().Format(timeFormatRFC3339Nano),
		IntegritySHA256: entry.IntegritySHA256,
	}
}

const timeFormatRFC3339Nano = "2006-01-02T15:04:05.999999999Z07:00"
