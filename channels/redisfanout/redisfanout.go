// Package redisfanout fans session frames out across nodes using Redis
// Streams. A node that handles a POST publishes the resulting
// notifications to the session's stream; whichever node holds the
// session's SSE connection subscribes and relays frames into its local
// channel registry.
package redisfanout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/arcwell/mcpengine/channels"
)

// Config configures the fanout. Fields decode from the environment via
// ConfigFromEnv.
type Config struct {
	Addr      string `env:"REDIS_ADDR,default=localhost:6379"`
	Password  string `env:"REDIS_PASSWORD,default="`
	DB        int    `env:"REDIS_DB,default=0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX,default=mcpengine:fanout:"`

	// Client overrides Addr/Password/DB when set.
	Client redis.UniversalClient `env:"-"`
}

// ConfigFromEnv decodes a Config from REDIS_* environment variables.
func ConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode redis fanout config: %w", err)
	}
	return &cfg, nil
}

// Fanout publishes and consumes per-session frame streams.
type Fanout struct {
	client    redis.UniversalClient
	keyPrefix string
	log       *slog.Logger
}

// Option customizes a Fanout.
type Option func(*Fanout)

// WithLogger sets the logger for subscription errors.
func WithLogger(log *slog.Logger) Option {
	return func(f *Fanout) { f.log = log }
}

// New builds a Fanout from the config.
func New(cfg *Config, opts ...Option) *Fanout {
	client := cfg.Client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "mcpengine:fanout:"
	}

	f := &Fanout{
		client:    client,
		keyPrefix: keyPrefix,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Close closes the Redis connection.
func (f *Fanout) Close() error {
	return f.client.Close()
}

// Publish appends a frame to the session's stream and returns the
// generated event ID.
func (f *Fanout) Publish(ctx context.Context, sessionID string, frame []byte) (string, error) {
	streamKey := f.streamKey(sessionID)

	eventID, err := f.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"data": frame},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish frame to stream %s: %w", streamKey, err)
	}
	return eventID, nil
}

// FrameHandler receives one fanned-out frame with its stream event ID.
type FrameHandler func(ctx context.Context, eventID string, frame []byte) error

// Subscribe relays the session's stream to handler until ctx is cancelled
// or handler returns an error. An empty lastEventID starts at the next
// published frame; otherwise delivery resumes after the given ID.
func (f *Fanout) Subscribe(ctx context.Context, sessionID string, lastEventID string, handler FrameHandler) error {
	streamKey := f.streamKey(sessionID)

	startID := "$"
	if lastEventID != "" {
		startID = lastEventID
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := f.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, startID},
			Count:   16,
			Block:   time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return fmt.Errorf("failed to read from stream %s: %w", streamKey, err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				startID = msg.ID

				data, ok := msg.Values["data"].(string)
				if !ok {
					f.log.Warn("redisfanout.subscribe.malformed_entry",
						slog.String("session_id", sessionID),
						slog.String("event_id", msg.ID),
					)
					continue
				}
				if err := handler(ctx, msg.ID, []byte(data)); err != nil {
					return err
				}
			}
		}
	}
}

// Cleanup deletes the session's stream once the session is gone.
func (f *Fanout) Cleanup(ctx context.Context, sessionID string) error {
	streamKey := f.streamKey(sessionID)
	if err := f.client.Del(ctx, streamKey).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to cleanup stream %s: %w", streamKey, err)
	}
	return nil
}

// Channel returns a channels.Channel whose sends publish to the session's
// stream, letting a remote node feed a session it does not host.
func (f *Fanout) Channel(sessionID string) channels.Channel {
	return &fanoutChannel{fanout: f, sessionID: sessionID}
}

func (f *Fanout) streamKey(sessionID string) string {
	return f.keyPrefix + "stream:" + sessionID
}

type fanoutChannel struct {
	fanout    *Fanout
	sessionID string
	closed    bool
}

func (c *fanoutChannel) Send(ctx context.Context, frame []byte) error {
	if c.closed {
		return channels.ErrChannelClosed
	}
	_, err := c.fanout.Publish(ctx, c.sessionID, frame)
	return err
}

func (c *fanoutChannel) Close() error {
	c.closed = true
	return nil
}

func (c *fanoutChannel) Closed() bool { return c.closed }
