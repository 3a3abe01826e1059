package auditlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	SpoolDir           = "/var/lib/visual-aoi/audit_spool"
	MaxSpoolSize int64 = 1024 * 1024 * 1024 // 1GB
)

// ConfigureFailover sets the spool directory and size cap before the
// first WriteEvent call.
func ConfigureFailover(dir string, maxMB int64) {
	if dir != "" {
		SpoolDir = dir
	}
	if maxMB > 0 {
		MaxSpoolSize = maxMB * 1024 * 1024
	}
	_ = os.MkdirAll(SpoolDir, 0750)
}

// SpoolEvent appends rec to the local JSONL spool file.
func SpoolEvent(rec InspectionAuditRecord) error {
	if isSpoolFull() {
		return fmt.Errorf("audit spool full (cap %d bytes), dropping event %s", MaxSpoolSize, rec.EventID)
	}

	payload := FailoverEvent{
		EventID:   rec.EventID.String(),
		SessionID: rec.SessionID.String(),
		Payload:   rec,
		Timestamp: time.Now(),
	}
	line, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	filename := filepath.Join(SpoolDir, "audit_spool.log")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

func isSpoolFull() bool {
	var size int64
	filepath.Walk(SpoolDir, func(_ string, info fs.FileInfo, err error) error {
		if err == nil && info != nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size >= MaxSpoolSize
}

// StartReplayer periodically flushes the spool back into the database.
func (s *Service) StartReplayer(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReplaySpool(ctx)
			}
		}
	}()
}

var replayLock sync.Mutex

// ReplaySpool drains the spool file into the database, re-spooling any
// record that fails again rather than dropping it.
func (s *Service) ReplaySpool(ctx context.Context) {
	replayLock.Lock()
	defer replayLock.Unlock()

	filename := filepath.Join(SpoolDir, "audit_spool.log")
	info, err := os.Stat(filename)
	if os.IsNotExist(err) || (info != nil && info.Size() == 0) {
		return
	}

	replayFile := filepath.Join(SpoolDir, fmt.Sprintf("replay_%d.log", time.Now().UnixNano()))
	if err := os.Rename(filename, replayFile); err != nil {
		log.Printf("[auditlog] failed to rotate spool for replay: %v", err)
		return
	}

	f, err := os.Open(replayFile)
	if err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	var succeeded, failed int
	for scanner.Scan() {
		var fe FailoverEvent
		if err := json.Unmarshal(scanner.Bytes(), &fe); err != nil {
			failed++
			continue
		}
		// WriteEvent re-spools on failure, so a still-down DB just
		// moves pending records back to the live spool file.
		if err := s.WriteEvent(ctx, fe.Payload); err == nil {
			succeeded++
		}
	}
	f.Close()
	os.Remove(replayFile)

	if succeeded > 0 {
		log.Printf("[auditlog] replay flushed %d events (%d malformed)", succeeded, failed)
	}
}
