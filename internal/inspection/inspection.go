// Package inspection is the Session Manager: it owns session
// lifecycle, per-inspection workspaces, and the idle-expiry sweeper
// (spec §4.6).
package inspection

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/visual-aoi/internal/apierrors"
	"github.com/technosupport/visual-aoi/internal/sharedfs"
)

const defaultIdleTimeout = time.Hour
const sweepInterval = 5 * time.Minute

// ClientMetadata is opaque per-session info supplied by the
// acquisition client (spec §4 supplement: Session.client_metadata).
type ClientMetadata map[string]string

// Session is one client's inspection workspace (spec §3 Session).
type Session struct {
	ID             uuid.UUID
	Product        string
	ClientMetadata ClientMetadata
	CreatedAt      time.Time

	mu             sync.Mutex
	lastActivity   time.Time
	inflight       bool
	inspectionCount int
	lastResult      any
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// beginInflight returns false (409) if an inspection is already
// running on this session (spec §4.6 concurrency: "a second inflight
// request on the same session returns a 409").
func (s *Session) beginInflight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

func (s *Session) endInflight(result any) {
	s.mu.Lock()
	s.inflight = false
	s.inspectionCount++
	s.lastResult = result
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Snapshot is a read-only view of a Session's externally-visible state.
type Snapshot struct {
	ID              uuid.UUID
	Product         string
	ClientMetadata  ClientMetadata
	CreatedAt       time.Time
	LastActivity    time.Time
	InspectionCount int
	LastResult      any
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID: s.ID, Product: s.Product, ClientMetadata: s.ClientMetadata, CreatedAt: s.CreatedAt,
		LastActivity: s.lastActivity, InspectionCount: s.inspectionCount, LastResult: s.lastResult,
	}
}

// Manager holds all live sessions behind a coarse RWMutex (spec §5:
// "the Session map holds a coarse mutex for insert/remove; per-session
// state uses per-session mutex").
type Manager struct {
	fs          *sharedfs.Root
	idleTimeout time.Duration

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager builds a Manager backed by fs. idleTimeout of 0 uses the
// spec default of 1 hour.
func NewManager(fs *sharedfs.Root, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	return &Manager{
		fs:          fs,
		idleTimeout: idleTimeout,
		sessions:    make(map[uuid.UUID]*Session),
		stop:        make(chan struct{}),
	}
}

// Create allocates a fresh session workspace (spec §4.6 Create).
func (m *Manager) Create(product string, meta ClientMetadata) (*Session, error) {
	id := uuid.New()
	if err := m.fs.CreateSessionDirs(id); err != nil {
		return nil, err
	}
	now := time.Now()
	sess := &Session{ID: id, Product: product, ClientMetadata: meta, CreatedAt: now, lastActivity: now}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return sess, nil
}

// Get returns the session by id (spec §4.6 Get).
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apierrors.New(apierrors.NotFound, "session not found", nil)
	}
	return sess, nil
}

// List returns a snapshot of every live session (spec §4.6 List).
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.snapshot())
	}
	return out
}

// Close removes the session and its workspace; idempotent — removal is
// always attempted even if the session is already gone (spec §4.6
// Close).
func (m *Manager) Close(id uuid.UUID) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return m.fs.RemoveSessionDirs(id)
}

// BeginInspection acquires the per-session inflight guard. Callers
// must call EndInspection when done, regardless of outcome.
func (m *Manager) BeginInspection(id uuid.UUID) (*Session, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	sess.touch()
	if !sess.beginInflight() {
		return nil, apierrors.New(apierrors.Conflict, "an inspection is already in progress for this session", nil)
	}
	return sess, nil
}

// EndInspection releases the inflight guard and records the result.
func (m *Manager) EndInspection(sess *Session, result any) {
	sess.endInflight(result)
}

// Count returns the number of live sessions (spec §6 GET /api/health).
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Start launches the idle-expiry sweeper, modeled on the teacher's
// license scheduler Start/Stop/wg.Wait shape.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.sweep(ctx)
}

// Stop halts the sweeper and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stop)
	m.wg.Wait()
}

func (m *Manager) sweep(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	now := time.Now()
	var expired []uuid.UUID

	m.mu.RLock()
	for id, s := range m.sessions {
		if s.idleSince(now) > m.idleTimeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		_ = m.Close(id)
	}
}
