package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/wardline/internal/domain"
)

var csvHeader = []string{
	"event_id",
	"occurred_at",
	"encounter_id",
	"update_id",
	"actor_id",
	"actor_name",
	"action",
	"description",
	"attachment_filenames",
}

// CSVBuilder writes the audit CSV for a report to path.
type CSVBuilder interface {
	Build(path string, events []*domain.AuditEvent, photos []*domain.AuditAttachment) error
}

// CSVBuilderFunc adapts a function to CSVBuilder.
type CSVBuilderFunc func(path string, events []*domain.AuditEvent, photos []*domain.AuditAttachment) error

func (f CSVBuilderFunc) Build(path string, events []*domain.AuditEvent, photos []*domain.AuditAttachment) error {
	return f(path, events, photos)
}

// FileCSVBuilder writes the CSV to a new file.
type FileCSVBuilder struct{}

func (FileCSVBuilder) Build(path string, events []*domain.AuditEvent, photos []*domain.AuditAttachment) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("report.FileCSVBuilder.Build: %w", err)
	}

	if err := WriteCSV(f, events, photos); err != nil {
		_ = f.Close()
		return fmt.Errorf("report.FileCSVBuilder.Build: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report.FileCSVBuilder.Build: close: %w", err)
	}
	return nil
}

// WriteCSV writes one row per event. Photo filenames attached to the event's
// encounter update are joined with ";".
func WriteCSV(w io.Writer, events []*domain.AuditEvent, photos []*domain.AuditAttachment) error {
	byUpdate := make(map[uuid.UUID][]string, len(photos))
	for _, p := range photos {
		byUpdate[p.UpdateID] = append(byUpdate[p.UpdateID], p.OriginalFilename)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, e := range events {
		var filenames []string
		if e.UpdateID != nil {
			filenames = byUpdate[*e.UpdateID]
		}

		row := []string{
			e.ID.String(),
			e.OccurredAt.UTC().Format(time.RFC3339),
			optionalID(e.EncounterID),
			optionalID(e.UpdateID),
			optionalID(e.ActorID),
			e.ActorName,
			e.Action,
			e.Description,
			strings.Join(filenames, ";"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write event %s: %w", e.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
