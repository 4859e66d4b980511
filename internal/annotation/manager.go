package annotation

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/DeGirum/face-recognition/internal/logger"
)

// CookieName carries the session id in the browser.
const CookieName = "facetrack_session"

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 2 * time.Hour

// Manager holds sessions keyed by id and discards them after ttl of inactivity.
type Manager struct {
	deps     *Deps
	sessions *cache.Cache
	log      logger.Logger
}

// NewManager creates a session manager.
func NewManager(deps *Deps, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	m := &Manager{
		deps:     deps,
		sessions: cache.New(ttl, ttl/4),
		log:      log.Module(componentName),
	}
	m.sessions.OnEvicted(func(id string, v any) {
		v.(*Session).abandon()
		m.deps.Metrics.SetActiveSessions(m.sessions.ItemCount())
		m.log.Debug("session expired", logger.String("session", id))
	})
	return m
}

// Get returns the session with id and extends its lifetime.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	m.sessions.SetDefault(id, s)
	return s, true
}

// GetOrCreate returns the session with id, or a new one when id is unknown.
// created reports whether a new session was made; its id must be handed back
// to the client.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if s, ok := m.Get(id); ok {
		return s, false
	}
	return m.Create(), true
}

// Create starts a new idle session.
func (m *Manager) Create() *Session {
	s := NewSession(uuid.NewString(), m.deps)
	m.sessions.SetDefault(s.ID(), s)
	m.deps.Metrics.SetActiveSessions(m.sessions.ItemCount())
	return s
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.ItemCount()
}

// Known returns the known object list shared by all sessions.
func (m *Manager) Known() *KnownObjects {
	return m.deps.Known
}
