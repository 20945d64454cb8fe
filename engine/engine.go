// Package engine is the protocol core: it owns the initialize handshake,
// routes JSON-RPC requests to the tool/resource/prompt/completion
// registries, and pushes progress and log notifications through the
// channel registry without blocking the eventual response.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arcwell/mcpengine/channels"
	"github.com/arcwell/mcpengine/mcp"
	"github.com/arcwell/mcpengine/registry"
	"github.com/arcwell/mcpengine/sessions"
)

// supportedProtocolVersions are the revisions the engine can speak, newest
// first. An unknown requested version negotiates down to the newest.
var supportedProtocolVersions = []string{
	mcp.LatestProtocolVersion,
	"2025-03-26",
	"2024-11-05",
}

// Engine dispatches protocol requests for all sessions of one server.
type Engine struct {
	log          *slog.Logger
	info         mcp.ImplementationInfo
	instructions string

	sessions *sessions.Manager
	channels *channels.Registry

	tools       *registry.ToolRegistry
	resources   *registry.ResourceRegistry
	prompts     *registry.PromptRegistry
	completions *registry.CompletionRegistry
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithInstructions sets the instructions string returned from initialize.
func WithInstructions(instructions string) Option {
	return func(e *Engine) { e.instructions = instructions }
}

// WithSessionManager replaces the default session manager.
func WithSessionManager(m *sessions.Manager) Option {
	return func(e *Engine) {
		if m != nil {
			e.sessions = m
		}
	}
}

// WithChannelRegistry replaces the default channel registry.
func WithChannelRegistry(r *channels.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.channels = r
		}
	}
}

// WithTools attaches the tool registry.
func WithTools(r *registry.ToolRegistry) Option {
	return func(e *Engine) {
		if r != nil {
			e.tools = r
		}
	}
}

// WithResources attaches the resource registry.
func WithResources(r *registry.ResourceRegistry) Option {
	return func(e *Engine) {
		if r != nil {
			e.resources = r
		}
	}
}

// WithPrompts attaches the prompt registry.
func WithPrompts(r *registry.PromptRegistry) Option {
	return func(e *Engine) {
		if r != nil {
			e.prompts = r
		}
	}
}

// WithCompletions attaches the completion registry.
func WithCompletions(r *registry.CompletionRegistry) Option {
	return func(e *Engine) {
		if r != nil {
			e.completions = r
		}
	}
}

// New builds an Engine identifying itself as info. Registries default to
// empty, which keeps the corresponding capability out of the initialize
// result until something is registered.
func New(info mcp.ImplementationInfo, opts ...Option) *Engine {
	e := &Engine{
		log:         slog.Default(),
		info:        info,
		sessions:    sessions.NewManager(),
		channels:    channels.NewRegistry(),
		tools:       registry.NewToolRegistry(),
		resources:   registry.NewResourceRegistry(),
		prompts:     registry.NewPromptRegistry(),
		completions: registry.NewCompletionRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sessions exposes the engine's session manager to transports.
func (e *Engine) Sessions() *sessions.Manager { return e.sessions }

// Channels exposes the engine's channel registry to transports.
func (e *Engine) Channels() *channels.Registry { return e.channels }

// Initialize performs the MCP handshake: it negotiates a protocol
// version, creates a session bound to userID, and builds the capability
// advertisement. A capability field is present only when its registry has
// at least one entry; advertisement is informational and never gates
// later dispatch.
func (e *Engine) Initialize(ctx context.Context, userID string, req *mcp.InitializeRequest) (*sessions.Session, *mcp.InitializeResult, error) {
	if req == nil {
		return nil, nil, fmt.Errorf("initialize request required")
	}

	version := negotiateVersion(req.ProtocolVersion)
	caps := sessions.CapabilitySetFromClient(req.Capabilities)
	client := sessions.ClientInfo{Name: req.ClientInfo.Name, Version: req.ClientInfo.Version}

	sess := e.sessions.Create(userID, version, client, caps)

	res := &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    e.serverCapabilities(),
		ServerInfo:      e.info,
		Instructions:    e.instructions,
	}

	e.log.InfoContext(ctx, "engine.initialize",
		slog.String("session_id", sess.ID()),
		slog.String("protocol_version", version),
		slog.String("client_name", client.Name),
	)
	return sess, res, nil
}

func negotiateVersion(requested string) string {
	for _, v := range supportedProtocolVersions {
		if requested == v {
			return requested
		}
	}
	return mcp.LatestProtocolVersion
}

func (e *Engine) serverCapabilities() mcp.ServerCapabilities {
	caps := mcp.ServerCapabilities{
		// Sessions always accept logging/setLevel.
		Logging: &struct{}{},
	}
	if e.tools.Len() > 0 {
		caps.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}
	if e.resources.Len() > 0 || e.resources.HasTemplates() {
		caps.Resources = &struct {
			ListChanged bool `json:"listChanged"`
			Subscribe   bool `json:"subscribe"`
		}{}
	}
	if e.prompts.Len() > 0 {
		caps.Prompts = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}
	if e.completions.Len() > 0 {
		caps.Completions = &struct{}{}
	}
	return caps
}

// DeleteSession tears down one session: the channel registry entry is
// closed and removed, then the session record is dropped. Idempotent.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) {
	if ch, ok := e.channels.Get(sessionID); ok {
		if err := ch.Close(); err != nil {
			e.log.DebugContext(ctx, "engine.delete_session.close_failed",
				slog.String("session_id", sessionID),
				slog.String("err", err.Error()),
			)
		}
	}
	e.channels.Remove(sessionID)
	e.sessions.Delete(sessionID)
}

// EvictIdleSessions tears down every session idle for longer than
// maxIdle and reports how many were removed. Streamable HTTP has no
// connection to tie the session lifetime to, so idle eviction stands in
// for destruction on close.
func (e *Engine) EvictIdleSessions(ctx context.Context, maxIdle time.Duration) int {
	ids := e.sessions.IdleIDs(maxIdle)
	for _, id := range ids {
		e.log.InfoContext(ctx, "engine.evict_idle",
			slog.String("session_id", id),
			slog.Duration("max_idle", maxIdle),
		)
		e.DeleteSession(ctx, id)
	}
	return len(ids)
}

// RunSessionSweeper evicts idle sessions every interval until ctx ends.
// Meant to run on its own goroutine.
func (e *Engine) RunSessionSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.EvictIdleSessions(ctx, maxIdle)
		}
	}
}

// Shutdown closes every live channel. Session records are left for the
// process to drop.
func (e *Engine) Shutdown(ctx context.Context) {
	e.channels.CloseAll()
}
