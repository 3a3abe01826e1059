// Package auditlog is the durable inspection audit trail: every
// completed inspection is appended to Postgres, with disk-spool
// failover when the database is unreachable (supplements spec.md's
// Cross-cutting row; adapted from the teacher's internal/audit,
// domain-agnostic failover mechanics kept nearly verbatim).
package auditlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InspectionAuditRecord is one append-only audit entry for a completed
// inspection (spec §4 supplement: InspectionAuditRecord).
type InspectionAuditRecord struct {
	ID          uuid.UUID       `json:"id"`
	EventID     uuid.UUID       `json:"event_id"` // idempotency key
	SessionID   uuid.UUID       `json:"session_id"`
	ProductName string          `json:"product_name"`
	Result      string          `json:"result"` // pass/fail
	TotalROIs   int             `json:"total_rois"`
	PassedROIs  int             `json:"passed_rois"`
	RequestID   string          `json:"request_id,omitempty"`
	ClientIP    string          `json:"client_ip,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// FailoverEvent wraps a record for JSONL spooling.
type FailoverEvent struct {
	EventID   string                `json:"event_id"`
	SessionID string                `json:"session_id"`
	Payload   InspectionAuditRecord `json:"payload"`
	Timestamp time.Time             `json:"timestamp"`
}

// AuditFilter scopes QueryEvents.
type AuditFilter struct {
	ProductName string
	Result      string
	DateFrom    *time.Time
	DateTo      *time.Time
	Limit       int
	Cursor      string // ID-based cursor
}

// Service is the audit log's DB-facing surface.
type Service struct {
	DB *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// EnsureRetention guards any caller proposing a non-compliant retention
// window for the inspection audit trail.
func (s *Service) EnsureRetention(years int) error {
	if years < MinRetentionYears {
		return fmt.Errorf("retention policy restriction: minimum %d years required", MinRetentionYears)
	}
	return nil
}
