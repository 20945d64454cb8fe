package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/arcwell/mcpengine/channels"
	"github.com/arcwell/mcpengine/internal/jsonrpc"
	"github.com/arcwell/mcpengine/mcp"
	"github.com/arcwell/mcpengine/registry"
	"github.com/arcwell/mcpengine/sessions"
)

// pushNotification sends a fire-and-forget notification down the
// session's channel. A session without a live channel drops the frame.
func (e *Engine) pushNotification(ctx context.Context, sess *sessions.Session, method mcp.Method, params any) error {
	note, err := jsonrpc.NewNotification(string(method), params)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(note)
	if err != nil {
		return err
	}

	if err := e.channels.Send(ctx, sess.ID(), frame); err != nil {
		if errors.Is(err, channels.ErrNoChannel) || errors.Is(err, channels.ErrChannelClosed) {
			return nil
		}
		e.log.DebugContext(ctx, "engine.push.send_failed",
			slog.String("session_id", sess.ID()),
			slog.String("notification", string(method)),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

type progressReporter struct {
	e     *Engine
	sess  *sessions.Session
	token mcp.ProgressToken

	mu        sync.Mutex
	highWater float64
	reported  bool
}

func (e *Engine) progressReporter(sess *sessions.Session, token mcp.ProgressToken) registry.ProgressReporter {
	return &progressReporter{e: e, sess: sess, token: token}
}

// Report pushes a progress notification. Progress is monotonically
// non-decreasing within one call; a regressing value is dropped.
func (p *progressReporter) Report(ctx context.Context, progress, total float64, message string) error {
	p.mu.Lock()
	if p.reported && progress < p.highWater {
		p.mu.Unlock()
		return nil
	}
	p.highWater = progress
	p.reported = true
	p.mu.Unlock()

	return p.e.pushNotification(ctx, p.sess, mcp.ProgressNotificationMethod, &mcp.ProgressNotificationParams{
		ProgressToken: p.token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

type logSink struct {
	e    *Engine
	sess *sessions.Session
}

func (e *Engine) logSink(sess *sessions.Session) registry.LogSink {
	return &logSink{e: e, sess: sess}
}

// Log pushes a log message when it clears the session's minimum level.
func (s *logSink) Log(ctx context.Context, level mcp.LoggingLevel, message, logger string) error {
	if !s.sess.ShouldLog(level) {
		return nil
	}
	return s.e.pushNotification(ctx, s.sess, mcp.LogNotificationMethod, &mcp.LogNotificationParams{
		Level:   level,
		Message: message,
		Logger:  logger,
	})
}
