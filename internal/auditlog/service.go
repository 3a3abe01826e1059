package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
)

// WriteEvent inserts a record, falling back to disk spool on DB
// failure (ON CONFLICT makes retries from the spool idempotent).
func (s *Service) WriteEvent(ctx context.Context, rec InspectionAuditRecord) error {
	if rec.EventID == uuid.Nil {
		rec.EventID = uuid.New()
	}

	query := `
		INSERT INTO inspection_audit (
			event_id, session_id, product_name, result, total_rois, passed_rois,
			request_id, client_ip, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := s.DB.ExecContext(ctx, query,
		rec.EventID, rec.SessionID, rec.ProductName, rec.Result, rec.TotalROIs, rec.PassedROIs,
		rec.RequestID, rec.ClientIP, rec.Metadata, rec.CreatedAt,
	)

	if err != nil {
		log.Printf("[auditlog] db write failed: %v; spooling event %s", err, rec.EventID)
		if spoolErr := SpoolEvent(rec); spoolErr != nil {
			log.Printf("[auditlog] CRITICAL: spool failed for event %s: %v", rec.EventID, spoolErr)
			return fmt.Errorf("auditlog critical failure: %w", spoolErr)
		}
		return nil
	}
	return nil
}

// Append-only: no Update or Delete methods are exposed.

// QueryEvents implements filters and ID-based cursor pagination.
func (s *Service) QueryEvents(ctx context.Context, f AuditFilter) ([]InspectionAuditRecord, string, error) {
	q := `SELECT id, event_id, session_id, product_name, result, total_rois, passed_rois, created_at, metadata
	      FROM inspection_audit WHERE product_name = $1`
	args := []interface{}{f.ProductName}
	idx := 2

	if f.Result != "" {
		q += fmt.Sprintf(" AND result = $%d", idx)
		args = append(args, f.Result)
		idx++
	}
	if f.Cursor != "" {
		q += fmt.Sprintf(" AND id < $%d", idx)
		args = append(args, f.Cursor)
		idx++
	}

	q += " ORDER BY created_at DESC, id DESC LIMIT " + fmt.Sprintf("$%d", idx)
	args = append(args, f.Limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var records []InspectionAuditRecord
	var lastID string
	for rows.Next() {
		var rec InspectionAuditRecord
		var meta []byte
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.SessionID, &rec.ProductName, &rec.Result,
			&rec.TotalROIs, &rec.PassedROIs, &rec.CreatedAt, &meta); err != nil {
			return nil, "", err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &rec.Metadata)
		}
		records = append(records, rec)
		lastID = rec.ID.String()
	}
	return records, lastID, nil
}

// ExportEvents streams matching records as newline-delimited JSON,
// bounded so a runaway export can't exhaust memory or the connection.
func (s *Service) ExportEvents(ctx context.Context, f AuditFilter, w io.Writer) error {
	q := `SELECT id, event_id, session_id, product_name, result, total_rois, passed_rois, created_at, metadata
	      FROM inspection_audit WHERE product_name = $1`
	rows, err := s.DB.QueryContext(ctx, q, f.ProductName)
	if err != nil {
		return err
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	const maxRecords = 10000
	count := 0

	for rows.Next() {
		if count >= maxRecords {
			break
		}
		var rec InspectionAuditRecord
		var meta []byte
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.SessionID, &rec.ProductName, &rec.Result,
			&rec.TotalROIs, &rec.PassedROIs, &rec.CreatedAt, &meta); err != nil {
			return err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &rec.Metadata)
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
		count++
	}
	return nil
}
