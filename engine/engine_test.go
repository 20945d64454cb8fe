package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arcwell/mcpengine/internal/jsonrpc"
	"github.com/arcwell/mcpengine/mcp"
	"github.com/arcwell/mcpengine/registry"
	"github.com/arcwell/mcpengine/sessions"
)

func testInfo() mcp.ImplementationInfo {
	return mcp.ImplementationInfo{Name: "test-server", Version: "0.0.1"}
}

func newRequest(t *testing.T, id any, method mcp.Method, params any) *jsonrpc.Request {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = b
	}
	return &jsonrpc.Request{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         string(method),
		Params:         raw,
		ID:             jsonrpc.NewRequestID(id),
	}
}

func decodeResult(t *testing.T, res *jsonrpc.Response, out any) {
	t.Helper()
	if res == nil {
		t.Fatal("nil response")
	}
	if res.Error != nil {
		t.Fatalf("unexpected error response: %+v", res.Error)
	}
	if err := json.Unmarshal(res.Result, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func initSession(t *testing.T, e *Engine) *sessions.Session {
	t.Helper()
	sess, _, err := e.Initialize(context.Background(), "user-1", &mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ClientInfo:      mcp.ImplementationInfo{Name: "test-client", Version: "1.0"},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return sess
}

type fakeChannel struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeChannel) Send(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func TestInitializeCapabilityAdvertisement(t *testing.T) {
	t.Run("empty registries advertise only logging", func(t *testing.T) {
		e := New(testInfo())
		_, res, err := e.Initialize(context.Background(), "u", &mcp.InitializeRequest{
			ProtocolVersion: mcp.LatestProtocolVersion,
		})
		if err != nil {
			t.Fatalf("Initialize: %v", err)
		}
		if res.Capabilities.Logging == nil {
			t.Fatal("logging capability should always be advertised")
		}
		if res.Capabilities.Tools != nil || res.Capabilities.Resources != nil ||
			res.Capabilities.Prompts != nil || res.Capabilities.Completions != nil {
			t.Fatalf("empty registries must not advertise capabilities: %+v", res.Capabilities)
		}
		if res.ServerInfo.Name != "test-server" {
			t.Fatalf("server info = %+v", res.ServerInfo)
		}
	})

	t.Run("populated registries advertise", func(t *testing.T) {
		tools := registry.NewToolRegistry(registry.NewTool("t", func(ctx context.Context, _ *sessions.Session, w registry.ToolResponseWriter, r *registry.ToolRequest[struct{}]) error {
			return nil
		}))
		resources := registry.NewResourceRegistry(registry.TextResource("mem://a", "a", "text/plain", ""))
		prompts := registry.NewPromptRegistry(registry.NewPrompt(mcp.Prompt{Name: "p"}))
		completions := registry.NewCompletionRegistry()
		completions.RegisterPromptValues("p", "a", "x")

		e := New(testInfo(),
			WithTools(tools),
			WithResources(resources),
			WithPrompts(prompts),
			WithCompletions(completions),
		)
		_, res, err := e.Initialize(context.Background(), "u", &mcp.InitializeRequest{
			ProtocolVersion: mcp.LatestProtocolVersion,
		})
		if err != nil {
			t.Fatalf("Initialize: %v", err)
		}
		if res.Capabilities.Tools == nil || res.Capabilities.Resources == nil ||
			res.Capabilities.Prompts == nil || res.Capabilities.Completions == nil {
			t.Fatalf("capabilities = %+v", res.Capabilities)
		}
	})
}

func TestInitializeVersionNegotiation(t *testing.T) {
	e := New(testInfo())

	testCases := []struct {
		requested string
		want      string
	}{
		{requested: mcp.LatestProtocolVersion, want: mcp.LatestProtocolVersion},
		{requested: "2024-11-05", want: "2024-11-05"},
		{requested: "1999-01-01", want: mcp.LatestProtocolVersion},
		{requested: "", want: mcp.LatestProtocolVersion},
	}

	for _, tc := range testCases {
		t.Run(tc.requested, func(t *testing.T) {
			sess, res, err := e.Initialize(context.Background(), "u", &mcp.InitializeRequest{
				ProtocolVersion: tc.requested,
			})
			if err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			if res.ProtocolVersion != tc.want {
				t.Fatalf("negotiated %q, want %q", res.ProtocolVersion, tc.want)
			}
			if sess.ProtocolVersion() != tc.want {
				t.Fatalf("session version %q, want %q", sess.ProtocolVersion(), tc.want)
			}
		})
	}
}

func TestPing(t *testing.T) {
	e := New(testInfo())
	sess := initSession(t, e)

	res, err := e.HandleMessage(context.Background(), sess, newRequest(t, int64(1), mcp.PingMethod, nil))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	var out mcp.EmptyResult
	decodeResult(t, res, &out)
	if res.ID.Value() != int64(1) {
		t.Fatalf("response id = %v", res.ID.Value())
	}
}

func TestUnknownMethod(t *testing.T) {
	e := New(testInfo())
	sess := initSession(t, e)

	res, err := e.HandleMessage(context.Background(), sess, newRequest(t, int64(2), "no/such/method", nil))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("response = %+v, want method-not-found", res)
	}
}

func TestNotificationsProduceNoResponse(t *testing.T) {
	e := New(testInfo())
	sess := initSession(t, e)

	for _, method := range []mcp.Method{
		mcp.InitializedNotificationMethod,
		mcp.CancelledNotificationMethod,
		"notifications/unknown",
	} {
		note := &jsonrpc.Request{
			JSONRPCVersion: jsonrpc.ProtocolVersion,
			Method:         string(method),
			Params:         json.RawMessage(`{"requestId":1,"reason":"test"}`),
		}
		res, err := e.HandleMessage(context.Background(), sess, note)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		if res != nil {
			t.Fatalf("%s: notification must not produce a response, got %+v", method, res)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	e := New(testInfo())
	sess := initSession(t, e)

	ch := &fakeChannel{}
	if !e.Channels().Register(sess.ID(), ch) {
		t.Fatal("Register = false")
	}

	e.DeleteSession(context.Background(), sess.ID())

	if !ch.Closed() {
		t.Fatal("channel should be closed")
	}
	if _, err := e.Sessions().Get(sess.ID()); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("session lookup after delete: %v", err)
	}
	// Idempotent.
	e.DeleteSession(context.Background(), sess.ID())
}

func TestEvictIdleSessions(t *testing.T) {
	e := New(testInfo())
	sess := initSession(t, e)
	ch := &fakeChannel{}
	e.Channels().Register(sess.ID(), ch)

	if n := e.EvictIdleSessions(context.Background(), time.Hour); n != 0 {
		t.Fatalf("evicted %d fresh sessions, want 0", n)
	}

	if n := e.EvictIdleSessions(context.Background(), -time.Second); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if !ch.Closed() {
		t.Fatal("evicted session's channel not closed")
	}
	if _, err := e.Sessions().GetForUser(sess.ID(), sess.UserID()); err == nil {
		t.Fatal("session still resolvable after eviction")
	}
}
