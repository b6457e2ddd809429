package mapserver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/layers"
	"github.com/chrissnell/aqtimeline/internal/renderer"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Publisher sends session state to the connected client.
type Publisher interface {
	PublishState(state any) error
}

// session is one connected map client.
type session struct {
	loop      *layers.Loop
	publisher Publisher
	remote    string
	started   time.Time
}

// SessionInfo describes a session in listings.
type SessionInfo struct {
	ID      string    `json:"id"`
	Remote  string    `json:"remote"`
	Started time.Time `json:"started"`
}

// Hub tracks the live sessions and the catalog new sessions start with.
type Hub struct {
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	registry *catalog.Registry
	sessions map[string]*session
}

// NewHub creates a hub serving reg.
func NewHub(reg *catalog.Registry, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		logger:   logger,
		registry: reg,
		sessions: make(map[string]*session),
	}
}

// Registry returns the current catalog.
func (h *Hub) Registry() *catalog.Registry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry
}

func (h *Hub) add(id string, s *session) {
	h.mu.Lock()
	h.sessions[id] = s
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Infow("session registered", "session", id, "remote", s.remote, "sessions", n)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Infow("session unregistered", "session", id, "sessions", n)
}

func (h *Hub) get(id string) (*session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Sessions lists the live sessions, oldest first.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	out := make([]SessionInfo, 0, len(h.sessions))
	for id, s := range h.sessions {
		out = append(out, SessionInfo{ID: id, Remote: s.remote, Started: s.started})
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Started.Equal(out[j].Started) {
			return out[i].Started.Before(out[j].Started)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Do runs fn on a session's loop and publishes the resulting state from the
// loop goroutine, so state frames stay ordered with command frames.
func (h *Hub) Do(ctx context.Context, id string, fn func(*layers.Manager) error) (layers.Snapshot, error) {
	s, ok := h.get(id)
	if !ok {
		return layers.Snapshot{}, ErrSessionNotFound
	}
	return s.do(ctx, fn)
}

// Snapshot fetches one session's state.
func (h *Hub) Snapshot(ctx context.Context, id string) (layers.Snapshot, error) {
	s, ok := h.get(id)
	if !ok {
		return layers.Snapshot{}, ErrSessionNotFound
	}
	return s.loop.Snapshot(ctx)
}

// SetRegistry swaps the catalog for new sessions and rebuilds every live one.
// Sessions that went away meanwhile are skipped.
func (h *Hub) SetRegistry(ctx context.Context, reg *catalog.Registry) error {
	h.mu.Lock()
	h.registry = reg
	live := make(map[string]*session, len(h.sessions))
	for id, s := range h.sessions {
		live[id] = s
	}
	h.mu.Unlock()

	var errs []error
	for id, s := range live {
		_, err := s.do(ctx, func(m *layers.Manager) error { return m.SetRegistry(reg) })
		if errors.Is(err, renderer.ErrSessionClosed) {
			continue
		}
		if err != nil {
			h.logger.Errorw("failed to swap session catalog", "session", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *session) do(ctx context.Context, fn func(*layers.Manager) error) (layers.Snapshot, error) {
	var (
		snap  layers.Snapshot
		fnErr error
	)
	err := s.loop.Do(ctx, func(m *layers.Manager) {
		fnErr = fn(m)
		snap = m.Snapshot()
		if s.publisher != nil {
			_ = s.publisher.PublishState(snap)
		}
	})
	if err != nil {
		return layers.Snapshot{}, err
	}
	return snap, fnErr
}
