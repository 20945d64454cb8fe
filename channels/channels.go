// Package channels routes server-initiated frames to connected client
// streams. A Channel is one client's outbound stream; the Registry maps
// live session IDs to their channels so tool handlers can push progress
// and log notifications without touching the transport.
package channels

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrChannelClosed indicates a send against a channel whose stream has
// ended.
var ErrChannelClosed = errors.New("channels: channel closed")

// ErrNoChannel indicates no channel is registered for the session.
var ErrNoChannel = errors.New("channels: no channel for session")

// Channel delivers encoded JSON-RPC frames to one client stream. Send is
// fire-and-forget from the caller's perspective: delivery is never
// confirmed, and implementations must tolerate concurrent senders.
type Channel interface {
	Send(ctx context.Context, frame []byte) error
	Close() error
	Closed() bool
}

// Fallback produces a delivery channel for a session with no local
// channel, letting a cross-node fanout carry the frame to whichever node
// holds the client connection.
type Fallback func(sessionID string) Channel

// Registry is the mutex-serialized map of session ID to live channel. It
// is the only piece of state shared across connections besides the key
// cache, so every access goes through one lock.
type Registry struct {
	mu       sync.Mutex
	channels map[string]Channel
	fallback Fallback

	log *slog.Logger
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger for delivery failures.
func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = log }
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		channels: make(map[string]Channel),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds a channel to a session ID. Registration is idempotent:
// if the session already has a channel the existing one wins and false is
// returned, so a reconnecting client cannot hijack a live stream.
func (r *Registry) Register(sessionID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.channels[sessionID]; ok && !existing.Closed() {
		return false
	}
	r.channels[sessionID] = ch
	return true
}

// Remove drops the session's channel without closing it and reports
// whether a channel was registered.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[sessionID]
	delete(r.channels, sessionID)
	return ok
}

// Get returns the session's channel.
func (r *Registry) Get(sessionID string) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[sessionID]
	return ch, ok
}

// SetFallback installs the channel source consulted when Send finds no
// local channel for a session.
func (r *Registry) SetFallback(fb Fallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fb
}

// Send delivers a frame to one session's channel, best effort. Sessions
// without a local channel route through the fallback when one is
// installed; otherwise a missing or closed channel returns an error for
// the caller's logs, never fatal to the caller's own connection.
func (r *Registry) Send(ctx context.Context, sessionID string, frame []byte) error {
	ch, ok := r.Get(sessionID)
	if !ok {
		r.mu.Lock()
		fb := r.fallback
		r.mu.Unlock()
		if fb != nil {
			if fch := fb(sessionID); fch != nil {
				return fch.Send(ctx, frame)
			}
		}
		return ErrNoChannel
	}
	if ch.Closed() {
		return ErrChannelClosed
	}
	return ch.Send(ctx, frame)
}

// Broadcast delivers a frame to every live channel, skipping closed ones,
// and reports how many deliveries succeeded. The channel snapshot is taken
// under the lock; sends happen outside it so one slow stream cannot stall
// the registry.
func (r *Registry) Broadcast(ctx context.Context, frame []byte) int {
	r.mu.Lock()
	snapshot := make(map[string]Channel, len(r.channels))
	for id, ch := range r.channels {
		snapshot[id] = ch
	}
	r.mu.Unlock()

	delivered := 0
	for id, ch := range snapshot {
		if ch.Closed() {
			continue
		}
		if err := ch.Send(ctx, frame); err != nil {
			r.log.Warn("channels.broadcast.send_failed",
				slog.String("session_id", id),
				slog.String("err", err.Error()),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// Count reports the number of registered channels.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// CloseAll closes and drops every channel. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]Channel)
	r.mu.Unlock()

	for id, ch := range channels {
		if err := ch.Close(); err != nil {
			r.log.Warn("channels.close_all.close_failed",
				slog.String("session_id", id),
				slog.String("err", err.Error()),
			)
		}
	}
}
