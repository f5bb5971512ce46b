package session

import (
	"container/list"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"workspace-terminal/internal/logging"
)

const (
	defaultHistorySize = 100
)

// Options configures a Store. Zero limits disable the corresponding
// eviction policy.
type Options struct {
	MaxSessions int
	IdleTTL     time.Duration
	HistorySize int
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// Logger receives eviction events; nil discards them.
	Logger *slog.Logger
}

// Store maps session IDs to their current working directory. Absent
// sessions resolve to the workspace root and are created on first
// reference.
type Store struct {
	mu       sync.Mutex
	root     string
	sessions map[string]*entry
	lru      *list.List // front = most recently used
	opts     Options

	// locks outlive entries: a session evicted or forgotten mid-request
	// keeps its lock until the last holder releases it.
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

type entry struct {
	id         string
	cwd        string
	createdAt  time.Time
	lastActive time.Time
	commands   int
	history    *RingBuffer
	elem       *list.Element
}

// NewStore creates a store rooted at the given absolute workspace path.
func NewStore(root string, opts Options) *Store {
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Store{
		root:     filepath.Clean(root),
		sessions: make(map[string]*entry),
		lru:      list.New(),
		locks:    make(map[string]*sessionLock),
		opts:     opts,
	}
}

// Root returns the workspace root.
func (s *Store) Root() string {
	return s.root
}

// Get returns the session's current directory, creating the session at the
// workspace root if it does not exist.
func (s *Store) Get(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchLocked(id).cwd
}

// Set updates the session's current directory. Callers must have validated
// path as an existing directory.
func (s *Store) Set(id, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked(id).cwd = path
}

// Lock serializes requests for a session until the returned function is
// called.
func (s *Store) Lock(id string) func() {
	s.mu.Lock()
	s.touchLocked(id)
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			s.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, id)
			}
			s.mu.Unlock()
		})
	}
}

// Record appends a history entry to the session.
func (s *Store) Record(id string, h HistoryEntry) {
	s.mu.Lock()
	e := s.touchLocked(id)
	e.commands++
	s.mu.Unlock()

	e.history.Write(h)
}

// History returns the session's recent commands, oldest first.
func (s *Store) History(id string) ([]HistoryEntry, bool) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()

	if !ok {
		return nil, false
	}
	return e.history.ReadAll(), true
}

// Lookup returns a session without creating or touching it.
func (s *Store) Lookup(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return e.snapshot(), true
}

// List returns all sessions ordered by ID.
func (s *Store) List() []Session {
	s.mu.Lock()
	result := make([]Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		result = append(result, e.snapshot())
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Forget removes a session. The next reference starts again at the root.
func (s *Store) Forget(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if ok {
		s.removeLocked(e)
	}
	return ok
}

// Sweep evicts sessions idle for longer than IdleTTL and returns their IDs.
func (s *Store) Sweep() []string {
	if s.opts.IdleTTL <= 0 {
		return nil
	}
	cutoff := s.opts.Now().Add(-s.opts.IdleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for elem := s.lru.Back(); elem != nil; {
		e := elem.Value.(*entry)
		prev := elem.Prev()
		if !e.lastActive.Before(cutoff) {
			break
		}
		s.removeLocked(e)
		s.opts.Logger.Info("session_evicted", "session", e.id, "reason", "idle", "cwd", e.cwd)
		evicted = append(evicted, e.id)
		elem = prev
	}
	return evicted
}

// Run sweeps idle sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 || s.opts.IdleTTL <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Reconcile resets to the workspace root every session whose directory is
// path or lies beneath it and is no longer a directory. It returns the
// sessions that were reset.
func (s *Store) Reconcile(path string) []Session {
	path = filepath.Clean(path)

	s.mu.Lock()
	var candidates []*entry
	for _, e := range s.sessions {
		if e.cwd != s.root && within(path, e.cwd) {
			candidates = append(candidates, e)
		}
	}
	s.mu.Unlock()

	var reset []Session
	for _, e := range candidates {
		if info, err := os.Stat(e.cwd); err == nil && info.IsDir() {
			continue
		}
		s.mu.Lock()
		if current, ok := s.sessions[e.id]; ok && current == e && within(path, e.cwd) {
			e.cwd = s.root
			reset = append(reset, e.snapshot())
		}
		s.mu.Unlock()
	}
	return reset
}

// touchLocked returns the entry for id, creating it if necessary, marks it
// as most recently used and enforces MaxSessions.
func (s *Store) touchLocked(id string) *entry {
	now := s.opts.Now()
	if e, ok := s.sessions[id]; ok {
		e.lastActive = now
		s.lru.MoveToFront(e.elem)
		return e
	}

	e := &entry{
		id:         id,
		cwd:        s.root,
		createdAt:  now,
		lastActive: now,
		history:    NewRingBuffer(s.opts.HistorySize),
	}
	e.elem = s.lru.PushFront(e)
	s.sessions[id] = e

	for s.opts.MaxSessions > 0 && len(s.sessions) > s.opts.MaxSessions {
		oldest := s.lru.Back()
		if oldest == nil || oldest == e.elem {
			break
		}
		victim := oldest.Value.(*entry)
		s.removeLocked(victim)
		s.opts.Logger.Info("session_evicted", "session", victim.id, "reason", "max_sessions", "cwd", victim.cwd)
	}
	return e
}

func (s *Store) removeLocked(e *entry) {
	s.lru.Remove(e.elem)
	delete(s.sessions, e.id)
}

func (e *entry) snapshot() Session {
	return Session{
		ID:           e.id,
		Cwd:          e.cwd,
		CreatedAt:    e.createdAt,
		LastActive:   e.lastActive,
		CommandCount: e.commands,
	}
}

func within(parent, path string) bool {
	if path == parent {
		return true
	}
	return strings.HasPrefix(path, parent+string(filepath.Separator))
}
