package sessions

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrSessionNotFound indicates no live session matches the given ID, or
// the session belongs to a different user.
var ErrSessionNotFound = errors.New("sessions: session not found")

// Manager owns the set of live sessions. All map access is serialized; the
// sessions themselves carry their own synchronization.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	log *slog.Logger
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager builds an empty session manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a new session for the given user.
func (m *Manager) Create(userID, protocolVersion string, client ClientInfo, caps CapabilitySet) *Session {
	sess := New(userID, protocolVersion, client, caps)

	m.mu.Lock()
	m.sessions[sess.ID()] = sess
	m.mu.Unlock()

	m.log.Info("sessions.create",
		slog.String("session_id", sess.ID()),
		slog.String("user_id", userID),
		slog.String("protocol_version", protocolVersion),
	)
	return sess
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// GetForUser returns the session only if it belongs to userID. A session
// ID is not a bearer credential; the caller's authenticated identity must
// match.
func (m *Manager) GetForUser(id, userID string) (*Session, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.UserID() != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes the session. Removing an unknown ID is a no-op.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.log.Info("sessions.delete", slog.String("session_id", id))
	}
}

// IdleIDs returns the sessions whose last activity predates now-maxIdle.
// The caller owns teardown; the manager only reports.
func (m *Manager) IdleIDs(maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, sess := range m.sessions {
		if sess.LastAccess().Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
