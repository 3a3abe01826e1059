package auditlog_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/technosupport/visual-aoi/internal/auditlog"
)

func TestWriteEventSuccess(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := auditlog.NewService(db)
	rec := auditlog.InspectionAuditRecord{EventID: uuid.New(), SessionID: uuid.New(), ProductName: "widget-a", Result: "pass", CreatedAt: time.Now()}

	mock.ExpectExec("INSERT INTO inspection_audit").WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.WriteEvent(context.Background(), rec); err != nil {
		t.Errorf("WriteEvent failed: %v", err)
	}
}

func TestWriteEventFailoverSpools(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	tempDir, _ := os.MkdirTemp("", "auditlog_test")
	defer os.RemoveAll(tempDir)
	auditlog.ConfigureFailover(tempDir, 100)

	s := auditlog.NewService(db)
	rec := auditlog.InspectionAuditRecord{EventID: uuid.New(), SessionID: uuid.New(), ProductName: "widget-a", Result: "fail"}

	mock.ExpectExec("INSERT INTO inspection_audit").WillReturnError(sql.ErrConnDone)

	if err := s.WriteEvent(context.Background(), rec); err != nil {
		t.Errorf("WriteEvent failed on failover: %v", err)
	}

	files, _ := os.ReadDir(tempDir)
	if len(files) == 0 {
		t.Error("no spool file created")
	}
}

func TestReplaySpoolWritesSpooledEventToDB(t *testing.T) {
	tempDir, _ := os.MkdirTemp("", "auditlog_replay_test")
	defer os.RemoveAll(tempDir)
	auditlog.ConfigureFailover(tempDir, 100)

	rec := auditlog.InspectionAuditRecord{EventID: uuid.New(), SessionID: uuid.New(), ProductName: "widget-a"}
	if err := auditlog.SpoolEvent(rec); err != nil {
		t.Fatalf("spool setup failed: %v", err)
	}

	db, mock, _ := sqlmock.New()
	defer db.Close()
	s := auditlog.NewService(db)

	mock.ExpectExec("INSERT INTO inspection_audit").WillReturnResult(sqlmock.NewResult(1, 1))

	s.ReplaySpool(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("replay didn't call DB: %s", err)
	}
}

func TestWriteEventGeneratesEventID(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	s := auditlog.NewService(db)

	mock.ExpectExec("INSERT INTO inspection_audit").WillReturnResult(sqlmock.NewResult(1, 1))

	rec := auditlog.InspectionAuditRecord{EventID: uuid.Nil, ProductName: "widget-a"}
	if err := s.WriteEvent(context.Background(), rec); err != nil {
		t.Errorf("WriteEvent failed: %v", err)
	}
}

func TestRetentionGuardRejectsShortWindow(t *testing.T) {
	if err := auditlog.CheckRetentionPolicy(1); err == nil {
		t.Error("allowed 1 year retention")
	}
	if err := auditlog.CheckRetentionPolicy(7); err != nil {
		t.Error("blocked 7 year retention")
	}

	safeDate := auditlog.EnsureSafePurgeDate()
	if !safeDate.Before(time.Now()) {
		t.Error("safe purge date invalid")
	}
}

func TestFailoverConfig(t *testing.T) {
	tmp := os.TempDir()
	auditlog.ConfigureFailover(tmp, 500)
	if auditlog.SpoolDir != tmp {
		t.Error("config failed")
	}
}
