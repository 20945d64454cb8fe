package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/arcwell/mcpengine/engine"
	"github.com/arcwell/mcpengine/internal/jsonrpc"
	"github.com/arcwell/mcpengine/internal/logctx"
	"github.com/arcwell/mcpengine/mcp"
	"github.com/arcwell/mcpengine/sessions"
)

// maxFrameBytes bounds a single newline-delimited JSON-RPC frame.
const maxFrameBytes = 4 * 1024 * 1024

// Handler is a single-connection transport that reads newline-delimited
// JSON-RPC frames from a reader and writes frames to a writer, defaulting
// to os.Stdin and os.Stdout. The peer is identified by a UserProvider,
// which defaults to the current OS user; there is no bearer token on
// stdio.
//
// One Handler serves exactly one session for the life of the process.
// Server-initiated frames (progress and log notifications) interleave
// with responses on the writer.
type Handler struct {
	eng          *engine.Engine
	r            io.Reader
	w            io.Writer
	log          *slog.Logger
	userProvider UserProvider

	// wmu serializes frame writes so pushed notifications never tear a
	// response mid-line.
	wmu  sync.Mutex
	sess *sessions.Session
}

// NewHandler constructs a Handler around eng with defaults and applies
// options.
func NewHandler(eng *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		eng:          eng,
		r:            os.Stdin,
		w:            os.Stdout,
		log:          slog.Default(),
		userProvider: OSUserProvider{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})
	return h
}

// Serve runs the read loop until EOF on the reader or a write failure.
// Context cancellation is observed between frames. The first frame must
// be an initialize request; the session it creates is deleted when Serve
// returns. Serve may be called at most once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	if h.eng == nil {
		return errors.New("stdio: engine is required")
	}

	userID, err := h.userProvider.CurrentUserID()
	if err != nil {
		return fmt.Errorf("stdio: resolve user: %w", err)
	}
	h.log.DebugContext(ctx, "stdio.serve.start", slog.String("user_id", userID))

	defer func() {
		if h.sess != nil {
			h.eng.DeleteSession(context.WithoutCancel(ctx), h.sess.ID())
		}
	}()

	sc := bufio.NewScanner(h.r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := h.handleFrame(ctx, userID, line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("stdio: read: %w", err)
	}
	h.log.DebugContext(ctx, "stdio.serve.eof")
	return nil
}

// handleFrame processes one inbound frame. The returned error is a
// transport failure (write error); protocol-level problems become
// JSON-RPC error responses instead.
func (h *Handler) handleFrame(ctx context.Context, userID string, line []byte) error {
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return h.writeResponse(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "invalid JSON", nil))
	}

	req := msg.AsRequest()
	if req == nil {
		// Client responses have no pending server request to match.
		h.log.DebugContext(ctx, "stdio.frame.response_dropped")
		return nil
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: string(msg.Type())})

	if req.Method == string(mcp.InitializeMethod) {
		return h.handleInitialize(ctx, userID, req)
	}

	if h.sess == nil {
		if req.IsNotification() {
			h.log.DebugContext(ctx, "stdio.frame.dropped_before_initialize", slog.String("method", req.Method))
			return nil
		}
		return h.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "initialize required", nil))
	}

	res, err := h.eng.HandleMessage(ctx, h.sess, req)
	if err != nil {
		h.log.ErrorContext(ctx, "stdio.frame.handle_failed", slog.String("err", err.Error()))
		if req.IsNotification() {
			return nil
		}
		return h.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
	}
	if res == nil {
		return nil
	}
	return h.writeResponse(res)
}

func (h *Handler) handleInitialize(ctx context.Context, userID string, req *jsonrpc.Request) error {
	if req.IsNotification() {
		return h.writeResponse(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "initialize must be a request", nil))
	}
	if h.sess != nil {
		return h.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized", nil))
	}

	var params mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return h.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params", nil))
		}
	}

	sess, result, err := h.eng.Initialize(ctx, userID, &params)
	if err != nil {
		h.log.ErrorContext(ctx, "stdio.initialize.failed", slog.String("err", err.Error()))
		return h.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "initialize failed", nil))
	}
	h.sess = sess
	h.eng.Channels().Register(sess.ID(), &stdioChannel{h: h})

	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		return fmt.Errorf("stdio: encode initialize result: %w", err)
	}
	h.log.InfoContext(ctx, "stdio.initialize.ok",
		slog.String("session_id", sess.ID()),
		slog.String("protocol_version", result.ProtocolVersion))
	return h.writeResponse(res)
}

func (h *Handler) writeResponse(res *jsonrpc.Response) error {
	buf, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("stdio: encode response: %w", err)
	}
	return h.writeFrame(buf)
}

func (h *Handler) writeFrame(frame []byte) error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	if _, err := h.w.Write(frame); err != nil {
		return fmt.Errorf("stdio: write: %w", err)
	}
	if _, err := h.w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("stdio: write: %w", err)
	}
	return nil
}

// stdioChannel adapts the handler's writer into a channels.Channel so
// the engine can push progress and log notifications onto stdout.
type stdioChannel struct {
	h      *Handler
	mu     sync.Mutex
	closed bool
}

func (c *stdioChannel) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("stdio: channel closed")
	}
	return c.h.writeFrame(frame)
}

func (c *stdioChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stdioChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
