// Package session holds per-session conversation state: a sliding window of
// prior turns plus the last-mentioned entities used for anaphora resolution.
// State is purely in-process; durability across restarts is a non-goal.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/PartSenseAI/partsense-mvp/engine/domain"
)

// State is a snapshot of one session's conversation state.
type State struct {
	Turns []domain.Turn
	// Last-mentioned entities, keyed by entity type. Only Model, Part, and
	// Symptom are tracked; later mentions overwrite earlier ones.
	LastMentioned map[domain.EntityType]domain.EntityRef
}

// LastModel returns the last-mentioned model, if any.
func (s State) LastModel() (domain.EntityRef, bool) {
	ref, ok := s.LastMentioned[domain.EntityModel]
	return ref, ok
}

// LastPart returns the last-mentioned part, if any.
func (s State) LastPart() (domain.EntityRef, bool) {
	ref, ok := s.LastMentioned[domain.EntityPart]
	return ref, ok
}

// LastSymptom returns the last-mentioned symptom, if any.
func (s State) LastSymptom() (domain.EntityRef, bool) {
	ref, ok := s.LastMentioned[domain.EntitySymptom]
	return ref, ok
}

// Options configures the session manager.
type Options struct {
	// MaxTurns bounds the sliding window; oldest turns evicted first.
	MaxTurns int
	// IdleTimeout evicts sessions with no activity for this long.
	IdleTimeout time.Duration
	// SweepInterval controls how often the idle sweeper runs.
	SweepInterval time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxTurns:      10,
		IdleTimeout:   30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

type entry struct {
	mu       sync.Mutex
	turns    []domain.Turn
	mentions map[domain.EntityType]domain.EntityRef
	lastSeen time.Time
}

// Manager stores sessions keyed by an opaque client-supplied identifier.
// Unknown identifiers create fresh state; there is no cross-session sharing.
type Manager struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]*entry
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	now     func() time.Time // for testing
}

// NewManager creates a Manager and starts its idle-eviction sweeper.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultOptions().MaxTurns
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultOptions().IdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultOptions().SweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:    opts,
		entries: make(map[string]*entry),
		logger:  logger,
		cancel:  cancel,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go m.sweep(ctx)
	return m
}

// Close stops the sweeper.
func (m *Manager) Close() {
	m.cancel()
	<-m.done
}

func (m *Manager) sweep(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := m.now().Add(-m.opts.IdleTimeout)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		e.mu.Lock()
		idle := e.lastSeen.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(m.entries, id)
			m.logger.Debug("session evicted", "session_id", id)
		}
	}
}

func (m *Manager) entryFor(sessionID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		e = &entry{
			mentions: make(map[domain.EntityType]domain.EntityRef),
			lastSeen: m.now(),
		}
		m.entries[sessionID] = e
	}
	return e
}

// Get returns a copy of the session's state, creating fresh state for an
// unknown identifier.
func (m *Manager) Get(sessionID string) State {
	e := m.entryFor(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		Turns:         make([]domain.Turn, len(e.turns)),
		LastMentioned: make(map[domain.EntityType]domain.EntityRef, len(e.mentions)),
	}
	copy(st.Turns, e.turns)
	for k, v := range e.mentions {
		st.LastMentioned[k] = v
	}
	return st
}

// Append records a completed turn and the entities it resolved. Appends for
// the same session are serialised by a per-session lock.
func (m *Manager) Append(sessionID string, turn domain.Turn, mentions []domain.EntityRef) {
	e := m.entryFor(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.turns = append(e.turns, turn)
	if len(e.turns) > m.opts.MaxTurns {
		e.turns = e.turns[len(e.turns)-m.opts.MaxTurns:]
	}
	for _, ref := range mentions {
		switch ref.Type {
		case domain.EntityModel, domain.EntityPart, domain.EntitySymptom:
			e.mentions[ref.Type] = ref
		}
	}
	e.lastSeen = m.now()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
