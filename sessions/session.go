// Package sessions tracks per-connection MCP session state: identity,
// negotiated protocol version, the client's advertised capabilities, and
// the session's minimum logging level.
package sessions

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcwell/mcpengine/mcp"
)

// ClientInfo identifies the client that opened the session.
type ClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// CapabilitySet captures the capability surface the client advertised at
// initialize. Booleans keep it cheap to compare and serialize.
type CapabilitySet struct {
	Roots            bool `json:"roots,omitempty"`
	RootsListChanged bool `json:"roots_list_changed,omitempty"`
	Sampling         bool `json:"sampling,omitempty"`
	Elicitation      bool `json:"elicitation,omitempty"`
}

// CapabilitySetFromClient flattens the wire-form client capabilities.
func CapabilitySetFromClient(caps mcp.ClientCapabilities) CapabilitySet {
	set := CapabilitySet{
		Sampling:    caps.Sampling != nil,
		Elicitation: caps.Elicitation != nil,
	}
	if caps.Roots != nil {
		set.Roots = true
		set.RootsListChanged = caps.Roots.ListChanged
	}
	return set
}

// Session is the state of one negotiated connection. Identity fields are
// immutable after creation; only the minimum log level and access time
// mutate, guarded for the tool handlers that read them concurrently.
type Session struct {
	id              string
	userID          string
	protocolVersion string
	client          ClientInfo
	caps            CapabilitySet
	createdAt       time.Time

	mu         sync.RWMutex
	logLevel   mcp.LoggingLevel
	lastAccess time.Time
}

// New creates a session with a fresh random ID. The minimum log level
// starts at info until the client raises or lowers it via logging/setLevel.
func New(userID, protocolVersion string, client ClientInfo, caps CapabilitySet) *Session {
	now := time.Now()
	return &Session{
		id:              uuid.NewString(),
		userID:          userID,
		protocolVersion: protocolVersion,
		client:          client,
		caps:            caps,
		createdAt:       now,
		logLevel:        mcp.LoggingLevelInfo,
		lastAccess:      now,
	}
}

func (s *Session) ID() string               { return s.id }
func (s *Session) UserID() string           { return s.userID }
func (s *Session) ProtocolVersion() string  { return s.protocolVersion }
func (s *Session) Client() ClientInfo       { return s.client }
func (s *Session) Capabilities() CapabilitySet { return s.caps }
func (s *Session) CreatedAt() time.Time     { return s.createdAt }

// SetLogLevel updates the session's minimum level. Unknown levels are
// rejected so a typo cannot silently mute or unmute the stream.
func (s *Session) SetLogLevel(level mcp.LoggingLevel) error {
	if !mcp.IsValidLoggingLevel(level) {
		return fmt.Errorf("unknown logging level %q", level)
	}
	s.mu.Lock()
	s.logLevel = level
	s.mu.Unlock()
	return nil
}

// LogLevel returns the session's current minimum level.
func (s *Session) LogLevel() mcp.LoggingLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logLevel
}

// ShouldLog reports whether a message at the given level clears the
// session's minimum.
func (s *Session) ShouldLog(level mcp.LoggingLevel) bool {
	return level.Severity() >= s.LogLevel().Severity()
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// LastAccess returns the time of the most recent activity.
func (s *Session) LastAccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess
}
