package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"mercator-hq/custodian/pkg/compliance"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Exporter writes a stream of audit entries to w.
type Exporter interface {
	ExportStream(ctx context.Context, entries <-chan *compliance.AuditEntry, w io.Writer) error
}

// NewExporter returns the exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case FormatJSON, "":
		return &JSONExporter{}, nil
	case FormatCSV:
		return &CSVExporter{IncludeHeader: true}, nil
	default:
		return nil, compliance.NewValidationError("format", fmt.Sprintf("unsupported export format %q (must be json or csv)", format))
	}
}

// Export streams every entry matching q to w in the given format.
func (l *Log) Export(ctx context.Context, w io.Writer, format string, q compliance.AuditQuery) error {
	exporter, err := NewExporter(format)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries, errc := l.Stream(ctx, q, DefaultPageSize)
	if err := exporter.ExportStream(ctx, entries, w); err != nil {
		return err
	}
	return <-errc
}

// JSONExporter writes entries as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// ExportStream implements Exporter.
func (e *JSONExporter) ExportStream(ctx context.Context, entries <-chan *compliance.AuditEntry, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}

	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case entry, ok := <-entries:
			if !ok {
				_, err := io.WriteString(w, "]\n")
				return err
			}

			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			first = false

			var data []byte
			var err error
			if e.Pretty {
				data, err = json.MarshalIndent(entry, "", "  ")
			} else {
				data, err = json.Marshal(entry)
			}
			if err != nil {
				return fmt.Errorf("failed to encode audit entry %s: %w", entry.ID, err)
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
		}
	}
}

// CSVExporter writes entries as CSV. Details are flattened to a JSON column.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

var csvHeader = []string{
	"id", "timestamp", "event_type", "compliance_impact",
	"actor", "actor_type", "detection_record_id", "deletion_request_id", "policy_id",
	"request_id", "details",
}

// ExportStream implements Exporter.
func (e *CSVExporter) ExportStream(ctx context.Context, entries <-chan *compliance.AuditEntry, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case entry, ok := <-entries:
			if !ok {
				writer.Flush()
				return writer.Error()
			}

			if err := writer.Write(entryToRow(entry)); err != nil {
				return err
			}

			count++
			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return err
				}
			}
		}
	}
}

func entryToRow(e *compliance.AuditEntry) []string {
	return []string{
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.EventType,
		string(e.ComplianceImpact),
		e.Actor,
		e.ActorType,
		e.DetectionRecordID,
		e.DeletionRequestID,
		e.PolicyID,
		e.RequestID,
		detailsJSON(e.Details),
	}
}

// detailsJSON renders details for a single CSV column, dropping nil values.
func detailsJSON(details map[string]any) string {
	clean := make(map[string]any, len(details))
	for k, v := range details {
		if v != nil {
			clean[k] = v
		}
	}
	if len(clean) == 0 {
		return ""
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return ""
	}
	return string(data)
}
