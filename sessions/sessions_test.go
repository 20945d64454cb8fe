package sessions

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/arcwell/mcpengine/mcp"
)

func clientCaps(t *testing.T, raw string) mcp.ClientCapabilities {
	t.Helper()
	var caps mcp.ClientCapabilities
	if err := json.Unmarshal([]byte(raw), &caps); err != nil {
		t.Fatalf("unmarshal capabilities: %v", err)
	}
	return caps
}

func TestCapabilitySetFromClient(t *testing.T) {
	set := CapabilitySetFromClient(clientCaps(t, `{"roots":{"listChanged":true},"sampling":{}}`))
	if !set.Roots || !set.RootsListChanged || !set.Sampling || set.Elicitation {
		t.Fatalf("set = %+v", set)
	}

	empty := CapabilitySetFromClient(clientCaps(t, `{}`))
	if empty != (CapabilitySet{}) {
		t.Fatalf("empty set = %+v", empty)
	}
}

func TestSessionLogLevel(t *testing.T) {
	sess := New("user-1", mcp.LatestProtocolVersion, ClientInfo{Name: "test"}, CapabilitySet{})

	if got := sess.LogLevel(); got != mcp.LoggingLevelInfo {
		t.Fatalf("default level = %s, want info", got)
	}
	if sess.ShouldLog(mcp.LoggingLevelDebug) {
		t.Fatal("debug should be below the default info minimum")
	}
	if !sess.ShouldLog(mcp.LoggingLevelError) {
		t.Fatal("error should clear the default info minimum")
	}

	if err := sess.SetLogLevel(mcp.LoggingLevelWarning); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if sess.ShouldLog(mcp.LoggingLevelInfo) {
		t.Fatal("info should be below a warning minimum")
	}

	if err := sess.SetLogLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if got := sess.LogLevel(); got != mcp.LoggingLevelWarning {
		t.Fatalf("level after rejected set = %s, want warning", got)
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()

	sess := m.Create("user-1", mcp.LatestProtocolVersion, ClientInfo{Name: "client"}, CapabilitySet{Roots: true})
	if sess.ID() == "" {
		t.Fatal("expected non-empty session ID")
	}
	if m.Len() != 1 {
		t.Fatalf("len = %d, want 1", m.Len())
	}

	got, err := m.Get(sess.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != sess {
		t.Fatal("get returned a different session")
	}

	if _, err := m.GetForUser(sess.ID(), "user-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("cross-user get: got %v, want ErrSessionNotFound", err)
	}
	if _, err := m.GetForUser(sess.ID(), "user-1"); err != nil {
		t.Fatalf("same-user get: %v", err)
	}

	m.Delete(sess.ID())
	if _, err := m.Get(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("get after delete: got %v, want ErrSessionNotFound", err)
	}

	// Deleting again is a no-op.
	m.Delete(sess.ID())
}
