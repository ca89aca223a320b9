package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/surge-downloader/ferry/internal/engine"
	"github.com/surge-downloader/ferry/internal/engine/events"
	"github.com/surge-downloader/ferry/internal/engine/progress"
	"github.com/surge-downloader/ferry/internal/engine/single"
	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/state"
	"github.com/surge-downloader/ferry/internal/utils"
)

var (
	ErrNotFound     = errors.New("download not found")
	ErrDestInUse    = errors.New("destination already in use by another download")
	ErrShuttingDown = errors.New("manager is shutting down")
)

// SessionStore persists session records between processes
type SessionStore interface {
	SaveSession(s *state.Session) error
	RemoveSession(id string) error
}

type stateStore struct{}

func (stateStore) SaveSession(s *state.Session) error { return state.SaveSession(s) }
func (stateStore) RemoveSession(id string) error      { return state.RemoveSession(id) }

// StateStore writes sessions to the SQLite database in internal/state
func StateStore() SessionStore { return stateStore{} }

// Status is a point-in-time view of one session
type Status struct {
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	Filename   string        `json:"filename"`
	DestPath   string        `json:"dest_path"`
	Status     string        `json:"status"`
	TotalSize  int64         `json:"total_size"` // -1 when unknown
	Downloaded uint64        `json:"downloaded"`
	Progress   float64       `json:"progress"` // percentage 0-100
	Speed      uint64        `json:"speed"`    // bytes per second
	TimeLeft   time.Duration `json:"time_left"`
	Message    string        `json:"message,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type session struct {
	id        string
	url       string
	destPath  string
	filename  string
	ctrl      *Controller
	createdAt time.Time

	// guarded by Manager.mu
	status  string
	total   int64
	started time.Time
}

// Manager keeps independent sessions, each driven by its own Controller
type Manager struct {
	engine  Engine
	client  *http.Client
	runtime *types.RuntimeConfig
	store   SessionStore
	bus     *events.Bus
	base    context.Context
	stop    context.CancelFunc
	log     zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool
}

type ManagerOption func(*Manager)

// WithStore persists every settlement. Without it sessions live in memory only.
func WithStore(s SessionStore) ManagerOption {
	return func(m *Manager) { m.store = s }
}

func WithEngine(e Engine) ManagerOption {
	return func(m *Manager) { m.engine = e }
}

func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.client = c }
}

func NewManager(runtime *types.RuntimeConfig, opts ...ManagerOption) *Manager {
	base, stop := context.WithCancel(context.Background())
	m := &Manager{
		client:   &http.Client{},
		runtime:  runtime,
		bus:      events.NewBus(),
		base:     base,
		stop:     stop,
		log:      utils.Logger("manager"),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.engine == nil {
		m.engine = single.NewDownloader(m.client, runtime)
	}
	return m
}

// Add resolves the destination under dir and starts a new session. An
// empty filename is resolved by probing the server.
func (m *Manager) Add(ctx context.Context, uri, dir, filename string) (string, error) {
	if filename == "" {
		probe, err := engine.ProbeServer(ctx, m.client, uri, m.runtime)
		if err != nil {
			return "", err
		}
		filename = probe.Filename
	}
	if dir == "" {
		dir = "."
	}
	path := utils.UniqueFilePath(filepath.Join(dir, filename))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrShuttingDown
	}
	for _, s := range m.sessions {
		if s.destPath == path && s.ctrl.State() != Idle {
			m.mu.Unlock()
			return "", fmt.Errorf("%w: %s", ErrDestInUse, path)
		}
	}
	s := m.register(uuid.New().String(), uri, path, filepath.Base(path), 0)
	s.status = state.StatusDownloading
	s.started = time.Now()
	m.mu.Unlock()

	m.bus.Publish(events.DownloadStartedMsg{
		DownloadID: s.id,
		URL:        uri,
		Filename:   s.filename,
		DestPath:   path,
	})
	m.persist(s, state.StatusDownloading, 0, "")

	if err := s.ctrl.Start(); err != nil {
		return "", err
	}
	m.log.Info().Str("id", s.id).Str("url", uri).Str("dest", path).Msg("download added")
	return s.id, nil
}

// Restore registers a stored session without starting it, so Resume can
// pick it up from its resume offset
func (m *Manager) Restore(rec state.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[rec.ID]; ok {
		return
	}
	s := m.register(rec.ID, rec.URL, rec.DestPath, rec.Filename, rec.ResumeOffset)
	s.status = rec.Status
	s.total = rec.TotalSize
	if rec.CreatedAt > 0 {
		s.createdAt = time.Unix(rec.CreatedAt, 0)
	}
}

// register creates the session and its controller. m.mu must be held.
func (m *Manager) register(id, uri, path, filename string, offset uint64) *session {
	s := &session{
		id:        id,
		url:       uri,
		destPath:  path,
		filename:  filename,
		createdAt: time.Now(),
		total:     -1,
	}
	s.ctrl = NewController(m.engine, NewFileDestination(path), uri,
		WithBaseContext(m.base),
		WithResumeOffset(offset),
		WithObserver(progress.NewObserver(progress.WithWindow(m.runtime.GetRateWindow()))),
		WithLogger(utils.Logger("session").With().Str("id", id).Logger()),
		WithOnSettled(func(st Settlement) { m.settled(s, st) }),
	)
	m.sessions[id] = s
	return s
}

func (m *Manager) settled(s *session, st Settlement) {
	status := st.StoredStatus()
	switch status {
	case "":
		// Superseded by a newer run
		return
	case state.StatusPaused:
		m.bus.Publish(events.DownloadPausedMsg{DownloadID: s.id, ResumeOffset: st.ResumeOffset})
	case state.StatusFailed:
		m.bus.Publish(events.DownloadErrorMsg{DownloadID: s.id, Err: st.Err.Error()})
	case state.StatusCompleted:
		m.mu.RLock()
		elapsed := time.Since(s.started)
		m.mu.RUnlock()
		p, _ := s.ctrl.Observer().Current()
		m.bus.Publish(events.DownloadCompleteMsg{
			DownloadID: s.id,
			Filename:   s.filename,
			Elapsed:    elapsed,
			Total:      p.Value,
		})
	}

	m.persist(s, status, st.ResumeOffset, errText(st.Err))
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// persist records the session's status, keeping the last known total
func (m *Manager) persist(s *session, status string, offset uint64, errMsg string) {
	m.mu.Lock()
	if s.status == state.StatusCompleted && status == state.StatusCancelled {
		// A cancel that raced the final commit leaves the file in place
		m.mu.Unlock()
		return
	}
	s.status = status
	if p, ok := s.ctrl.Observer().Current(); ok {
		if total, known := p.Target.Get(); known {
			s.total = int64(total)
		}
	}
	rec := &state.Session{
		ID:           s.id,
		URL:          s.url,
		DestPath:     s.destPath,
		Filename:     s.filename,
		Status:       status,
		TotalSize:    s.total,
		ResumeOffset: offset,
		Error:        errMsg,
		CreatedAt:    s.createdAt.Unix(),
	}
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	if err := m.store.SaveSession(rec); err != nil {
		m.log.Warn().Err(err).Str("id", s.id).Msg("failed to persist session")
	}
}

func (m *Manager) get(id string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

func (m *Manager) Pause(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.ctrl.Pause()
}

// Resume starts a paused, failed or restored session from its resume offset
func (m *Manager) Resume(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	if _, err := Decide(s.ctrl.State(), TriggerStart); err != nil {
		return err
	}

	m.mu.Lock()
	prevStatus, prevStarted := s.status, s.started
	s.started = time.Now()
	m.mu.Unlock()

	// The record must land before the run can settle and write its own
	m.persist(s, state.StatusDownloading, s.ctrl.ResumeOffset(), "")
	if err := s.ctrl.Start(); err != nil {
		m.mu.Lock()
		s.started = prevStarted
		m.mu.Unlock()
		if s.ctrl.State() != Running {
			m.persist(s, prevStatus, s.ctrl.ResumeOffset(), errText(s.ctrl.Err()))
		}
		return err
	}

	m.bus.Publish(events.DownloadResumedMsg{DownloadID: id})
	return nil
}

// Cancel stops the session and discards its partial data. It stays listed.
// A completed session is left as it is.
func (m *Manager) Cancel(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	m.mu.RLock()
	completed := s.status == state.StatusCompleted
	m.mu.RUnlock()
	if completed && s.ctrl.State() == Idle {
		return nil
	}

	if err := s.ctrl.Cancel(); err != nil {
		return err
	}
	m.persist(s, state.StatusCancelled, 0, "")
	m.bus.Publish(events.DownloadCancelledMsg{DownloadID: id})
	return nil
}

// Remove cancels the session if needed and forgets it, in memory and in
// the store. Ids only known to the store are removed from the store.
func (m *Manager) Remove(ctx context.Context, id string) error {
	s, err := m.get(id)
	if err != nil {
		if m.store != nil {
			return m.store.RemoveSession(id)
		}
		return err
	}

	if s.ctrl.State() != Idle {
		if err := s.ctrl.Cancel(); err != nil {
			return err
		}
	}
	if err := s.ctrl.Wait(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.RemoveSession(id); err != nil {
			return err
		}
	}
	m.bus.Publish(events.DownloadRemovedMsg{DownloadID: id})
	return nil
}

// Wait blocks until session id has no run in flight
func (m *Manager) Wait(ctx context.Context, id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.ctrl.Wait(ctx)
}

func (m *Manager) Status(id string) (*Status, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	st := m.status(s)
	return &st, nil
}

// List returns every session, oldest first
func (m *Manager) List() []Status {
	m.mu.RLock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].createdAt.Equal(sessions[j].createdAt) {
			return sessions[i].createdAt.Before(sessions[j].createdAt)
		}
		return sessions[i].id < sessions[j].id
	})

	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, m.status(s))
	}
	return out
}

func (m *Manager) status(s *session) Status {
	m.mu.RLock()
	stored, total := s.status, s.total
	m.mu.RUnlock()

	st := Status{
		ID:        s.id,
		URL:       s.url,
		Filename:  s.filename,
		DestPath:  s.destPath,
		TotalSize: total,
	}

	if p, ok := s.ctrl.Observer().Current(); ok {
		st.Downloaded = p.Value
		st.Speed = p.Rate
		st.TimeLeft = p.TimeLeft
		st.Message = p.Message
		if t, known := p.Target.Get(); known {
			st.TotalSize = int64(t)
		}
	} else {
		st.Downloaded = s.ctrl.ResumeOffset()
	}

	switch s.ctrl.State() {
	case Running:
		st.Status = state.StatusDownloading
	case Paused:
		st.Status = state.StatusPaused
	default:
		st.Status = stored
	}
	if err := s.ctrl.Err(); err != nil {
		st.Error = err.Error()
	}
	if st.TotalSize > 0 {
		st.Progress = float64(st.Downloaded) * 100 / float64(st.TotalSize)
	}
	return st
}

// Observer exposes the progress sink of session id
func (m *Manager) Observer(id string) (*progress.Observer, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return s.ctrl.Observer(), nil
}

// Events subscribes to lifecycle messages
func (m *Manager) Events(buffer int) (<-chan any, func()) {
	return m.bus.Subscribe(buffer)
}

// PublishProgress puts a ProgressMsg for every running session on the
// event bus each interval, until ctx is done or the manager shuts down
func (m *Manager) PublishProgress(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.base.Done():
			return
		case <-t.C:
			m.publishProgress()
		}
	}
}

func (m *Manager) publishProgress() {
	m.mu.RLock()
	running := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.ctrl.State() == Running {
			running = append(running, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range running {
		st := m.status(s)
		m.bus.Publish(events.ProgressMsg{
			DownloadID: st.ID,
			Downloaded: st.Downloaded,
			Total:      st.TotalSize,
			Speed:      st.Speed,
			TimeLeft:   st.TimeLeft,
			Message:    st.Message,
		})
	}
}

// HasURL reports whether a live session already fetches url
func (m *Manager) HasURL(url string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.url == url && s.ctrl.State() != Idle {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of running sessions
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.ctrl.State() == Running {
			n++
		}
	}
	return n
}

// Shutdown stops every running session the way Pause would, so each keeps
// its resume offset, and waits for them to settle
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.stop()

	for _, s := range sessions {
		if err := s.ctrl.Wait(ctx); err != nil {
			utils.Debug("Shutdown: timed out waiting for %s", s.id)
			return err
		}
	}
	return nil
}
