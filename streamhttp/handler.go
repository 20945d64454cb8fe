package streamhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/arcwell/mcpengine/auth"
	"github.com/arcwell/mcpengine/channels"
	"github.com/arcwell/mcpengine/channels/redisfanout"
	"github.com/arcwell/mcpengine/engine"
	"github.com/arcwell/mcpengine/internal/jsonrpc"
	"github.com/arcwell/mcpengine/internal/logctx"
	"github.com/arcwell/mcpengine/internal/sse"
	"github.com/arcwell/mcpengine/internal/wellknown"
	"github.com/arcwell/mcpengine/mcp"
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	responseMediaTypes    = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "MCP-Protocol-Version"
	lastEventIDHeader        = "Last-Event-Id"
	authorizationHeader      = "Authorization"
	wwwAuthenticateHeader    = "WWW-Authenticate"

	keepaliveInterval = 25 * time.Second
)

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type config struct {
	logger     *slog.Logger
	realm      string
	serverName string
	security   *auth.SecurityConfig
	fanout     *redisfanout.Fanout
}

// Option customizes a Handler.
type Option func(*config)

// WithLogger sets the base logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithRealm sets the HTTP authentication realm used in WWW-Authenticate
// challenges. Defaults to "mcp".
func WithRealm(realm string) Option {
	return func(c *config) { c.realm = realm }
}

// WithServerName sets the resource name advertised in the protected
// resource metadata document.
func WithServerName(name string) Option {
	return func(c *config) { c.serverName = name }
}

// WithSecurityConfig overrides the security configuration used for
// well-known advertisement. Takes precedence over a SecurityDescriptor
// authenticator.
func WithSecurityConfig(sc auth.SecurityConfig) Option {
	return func(c *config) {
		cc := sc.Copy()
		c.security = &cc
	}
}

// WithFanout attaches a cross-node fanout: SSE streams additionally
// consume the session's fanout stream so frames published on other nodes
// reach this connection.
func WithFanout(f *redisfanout.Fanout) Option {
	return func(c *config) { c.fanout = f }
}

// Handler is the streaming HTTP transport: POST carries client-to-server
// JSON-RPC messages, GET opens the server-to-client SSE stream, DELETE
// terminates the session. It also serves the OAuth well-known metadata
// documents.
type Handler struct {
	mux *http.ServeMux
	log *slog.Logger
	eng *engine.Engine

	auth     auth.Authenticator
	security *auth.SecurityConfig
	realm    string
	fanout   *redisfanout.Fanout

	serverURL             *url.URL
	prmDocument           wellknown.ProtectedResourceMetadata
	prmDocumentURL        *url.URL
	authServerMetadata    wellknown.AuthServerMetadata
	authServerMetadataURL *url.URL
}

// New builds a Handler serving the MCP endpoint at publicEndpoint's path.
// Security advertisement resolves from WithSecurityConfig first, then from
// the authenticator when it implements auth.SecurityDescriptor.
func New(publicEndpoint string, eng *engine.Engine, authenticator auth.Authenticator, opts ...Option) (*Handler, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	mcpURL, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", publicEndpoint, err)
	}
	if mcpURL.Scheme != "https" && mcpURL.Scheme != "http" {
		return nil, fmt.Errorf("server URL must use HTTP or HTTPS scheme, got %q", mcpURL.Scheme)
	}

	cfg := &config{logger: slog.Default(), realm: "mcp"}
	for _, opt := range opts {
		opt(cfg)
	}

	resolved := cfg.security
	if resolved == nil {
		if sd, ok := authenticator.(auth.SecurityDescriptor); ok {
			cc := sd.SecurityConfig().Copy()
			resolved = &cc
		}
	}

	h := &Handler{
		log:      slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		eng:      eng,
		auth:     authenticator,
		security: resolved,
		realm:    cfg.realm,
		fanout:   cfg.fanout,
		serverURL: mcpURL,
	}

	h.prmDocumentURL = &url.URL{Scheme: mcpURL.Scheme, Host: mcpURL.Host, Path: "/.well-known/oauth-protected-resource" + mcpURL.Path}
	h.authServerMetadataURL = &url.URL{Scheme: mcpURL.Scheme, Host: mcpURL.Host, Path: "/.well-known/oauth-authorization-server"}

	if resolved != nil && resolved.Advertise {
		h.prmDocument = wellknown.ProtectedResourceMetadata{
			Resource:               mcpURL.String(),
			AuthorizationServers:   []string{resolved.Issuer},
			JwksURI:                resolved.JWKSURL,
			ScopesSupported:        resolved.RequiredScopes,
			BearerMethodsSupported: []string{"authorization_header"},
			ResourceName:           cfg.serverName,
		}
		h.authServerMetadata = wellknown.AuthServerMetadata{
			Issuer:  resolved.Issuer,
			JwksURI: resolved.JWKSURL,
		}
		if oidc := resolved.OIDC; oidc != nil {
			h.prmDocument.ScopesSupported = oidc.ScopesSupported
			h.authServerMetadata.AuthorizationEndpoint = oidc.AuthorizationEndpoint
			h.authServerMetadata.TokenEndpoint = oidc.TokenEndpoint
			h.authServerMetadata.RegistrationEndpoint = oidc.RegistrationEndpoint
			h.authServerMetadata.ScopesSupported = oidc.ScopesSupported
			h.authServerMetadata.ResponseTypesSupported = oidc.ResponseTypesSupported
			h.authServerMetadata.GrantTypesSupported = oidc.GrantTypesSupported
			h.authServerMetadata.CodeChallengeMethodsSupported = oidc.CodeChallengeMethodsSupported
			h.authServerMetadata.TokenEndpointAuthMethodsSupported = oidc.TokenEndpointAuthMethodsSupported
		}
	}

	if h.fanout != nil {
		// Pushes for sessions without a local SSE stream publish to the
		// session's fanout stream; the node holding the stream relays
		// them through its Subscribe loop.
		eng.Channels().SetFallback(func(sessionID string) channels.Channel {
			return h.fanout.Channel(sessionID)
		})
	}

	mux := http.NewServeMux()
	mcpPath := pathOnly(mcpURL)
	mux.HandleFunc(fmt.Sprintf("POST %s", mcpPath), h.handlePostMCP)
	mux.HandleFunc(fmt.Sprintf("GET %s", mcpPath), h.handleGetMCP)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", mcpPath), h.handleDeleteMCP)
	registerMetadataRoutes(mux, pathOnly(h.prmDocumentURL), h.handleGetProtectedResourceMetadata, h.handleOptionsMetadata)
	registerMetadataRoutes(mux, pathOnly(h.authServerMetadataURL), h.handleGetAuthorizationServerMetadata, h.handleOptionsMetadata)
	h.mux = mux
	return h, nil
}

// registerMetadataRoutes serves a well-known document with and without a
// trailing slash to avoid ServeMux's 301 redirect.
func registerMetadataRoutes(mux *http.ServeMux, path string, get, options http.HandlerFunc) {
	base := strings.TrimSuffix(path, "/")
	if base == "" {
		base = "/"
	}
	mux.HandleFunc(fmt.Sprintf("GET %s", base), get)
	mux.HandleFunc(fmt.Sprintf("OPTIONS %s", base), options)
	if base != "/" {
		mux.HandleFunc(fmt.Sprintf("GET %s/", base), get)
		mux.HandleFunc(fmt.Sprintf("OPTIONS %s/", base), options)
	}
}

func pathOnly(u *url.URL) string {
	if u == nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// lockedWriteFlusher serializes concurrent writes/flushes on one response
// and refuses writes once the request context is done.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeChallenge emits the HTTP challenge for a failed authentication.
func writeChallenge(w http.ResponseWriter, result auth.AuthenticationResult) {
	challenge := result.GetAuthenticationChallenge()
	if challenge == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if challenge.WWWAuthenticate != "" {
		w.Header().Add(wwwAuthenticateHeader, challenge.WWWAuthenticate)
	}
	w.WriteHeader(challenge.Status)
}

// checkAuthentication validates the request's bearer token. On failure it
// writes the RFC 6750 challenge and returns nil.
func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) auth.UserInfo {
	header := r.Header.Get(authorizationHeader)
	if header == "" {
		h.log.InfoContext(ctx, "auth.check.missing")
		writeChallenge(w, auth.NewAuthenticationRequired(h.prmDocumentURL.String()))
		return nil
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) || len(header) <= len(bearerPrefix) {
		h.log.InfoContext(ctx, "auth.check.invalid_header")
		writeChallenge(w, auth.NewInvalidAuthorizationHeader(h.realm))
		return nil
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	if tok == "" {
		h.log.InfoContext(ctx, "auth.check.invalid_header")
		writeChallenge(w, auth.NewInvalidAuthorizationHeader(h.realm))
		return nil
	}

	userInfo, err := h.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, auth.ErrInsufficientScope) {
			h.log.InfoContext(ctx, "auth.check.insufficient_scope")
			var scope string
			if h.security != nil {
				scope = strings.Join(h.security.RequiredScopes, " ")
			}
			writeChallenge(w, auth.NewInsufficientScopeResult(h.realm, scope))
			return nil
		}
		// Everything else is an opaque invalid-token outcome.
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		writeChallenge(w, auth.NewInvalidTokenResult(h.realm, "invalid or expired token"))
		return nil
	}
	return userInfo
}

// handlePostMCP accepts one JSON-RPC message. A session-less initialize
// creates the session; anything else requires the Mcp-Session-Id header.
// Request responses use JSON or SSE framing depending on Accept.
func (h *Handler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "http.post.content_type.unsupported")
		return
	}

	userInfo := h.checkAuthentication(ctx, r, w)
	if userInfo == nil {
		h.log.InfoContext(ctx, "auth.fail")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		h.log.WarnContext(ctx, "http.post.decode.fail", slog.String("err", err.Error()))
		return
	}
	if len(raw) > 0 && raw[0] == '[' {
		writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are not supported")
		h.log.WarnContext(ctx, "http.post.batch.forbidden")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON-RPC message: "+err.Error())
		h.log.WarnContext(ctx, "http.post.message.invalid", slog.String("err", err.Error()))
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   string(msg.Type()),
	})

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		h.handleInitialize(ctx, w, userInfo, &msg, start)
		return
	}

	sess, err := h.eng.Sessions().GetForUser(sessID, userInfo.UserID())
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.load.miss")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.ID(),
		UserID:          sess.UserID(),
		ProtocolVersion: sess.ProtocolVersion(),
	})

	req := msg.AsRequest()
	if req == nil {
		// Client responses have no server-initiated counterpart here;
		// accept and drop.
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "http.post.response.dropped")
		return
	}
	if req.Method == string(mcp.InitializeMethod) {
		writeJSONError(w, http.StatusConflict, "session already initialized")
		h.log.WarnContext(ctx, "session.initialize.redundant")
		return
	}
	if pv := r.Header.Get(mcpProtocolVersionHeader); pv != "" && pv != sess.ProtocolVersion() {
		writeJSONError(w, http.StatusBadRequest, "protocol version mismatch")
		h.log.WarnContext(ctx, "protocol.version.mismatch", slog.String("client_version", pv))
		return
	}

	res, err := h.eng.HandleMessage(ctx, sess, req)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		h.log.ErrorContext(ctx, "rpc.inbound.fail", slog.String("err", err.Error()))
		return
	}
	if res == nil {
		w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	accepted := jsonMediaType
	if r.Header.Get("Accept") != "" {
		mt, _, err := contenttype.GetAcceptableMediaType(r, responseMediaTypes)
		if err != nil {
			w.WriteHeader(http.StatusNotAcceptable)
			h.log.WarnContext(ctx, "http.post.accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
			return
		}
		accepted = mt
	}

	w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())

	if accepted.Matches(eventStreamMediaType) {
		f, ok := w.(http.Flusher)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			h.log.ErrorContext(ctx, "sse.flusher.missing")
			return
		}
		wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
		w.Header().Set("Content-Type", eventStreamMediaType.String())
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		frame, mErr := json.Marshal(res)
		if mErr != nil {
			h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", mErr.Error()))
			return
		}
		if err := sse.Write(wf, sse.Event{Data: frame}); err != nil {
			h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
			return
		}
		wf.Flush()
	} else {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(res); err != nil {
			h.log.ErrorContext(ctx, "rpc.response.write.fail", slog.String("err", err.Error()))
			return
		}
	}
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) handleInitialize(ctx context.Context, w http.ResponseWriter, userInfo auth.UserInfo, msg *jsonrpc.AnyMessage, start time.Time) {
	req := msg.AsRequest()
	if req == nil || req.Method != string(mcp.InitializeMethod) {
		writeJSONError(w, http.StatusNotFound, "expected initialize request")
		h.log.InfoContext(ctx, "session.initialize.invalid")
		return
	}
	var initReq mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &initReq); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid initialize params")
		h.log.InfoContext(ctx, "session.initialize.params.fail", slog.String("err", err.Error()))
		return
	}

	sess, initRes, err := h.eng.Initialize(ctx, userInfo.UserID(), &initReq)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to initialize session")
		h.log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), UserID: userInfo.UserID()})

	resp, err := jsonrpc.NewResultResponse(req.ID, initRes)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode initialize response")
		h.log.ErrorContext(ctx, "session.initialize.encode.fail", slog.String("err", err.Error()))
		return
	}
	w.Header().Set(mcpSessionIDHeader, sess.ID())
	w.Header().Set(mcpProtocolVersionHeader, initRes.ProtocolVersion)
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.ErrorContext(ctx, "session.initialize.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "session.initialize.ok", slog.Duration("dur", time.Since(start)))
}

// sseChannel adapts one SSE response into a channels.Channel. Frames get
// monotonically increasing event ids so a client can resume with
// Last-Event-Id against the fanout stream.
type sseChannel struct {
	wf     *lockedWriteFlusher
	cancel context.CancelFunc

	mu     sync.Mutex
	nextID uint64
	closed bool
}

func (c *sseChannel) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return channels.ErrChannelClosed
	}
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	if err := sse.Write(c.wf, sse.Event{ID: strconv.FormatUint(id, 10), Data: frame}); err != nil {
		return err
	}
	c.wf.Flush()
	return nil
}

// sendWithID writes a frame carrying an externally assigned event id
// (fanout delivery).
func (c *sseChannel) sendWithID(eventID string, frame []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return channels.ErrChannelClosed
	}
	c.mu.Unlock()

	if err := sse.Write(c.wf, sse.Event{ID: eventID, Data: frame}); err != nil {
		return err
	}
	c.wf.Flush()
	return nil
}

func (c *sseChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *sseChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// handleGetMCP opens the session's SSE stream and keeps it registered as
// the session's push channel until the client disconnects.
func (h *Handler) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		h.log.WarnContext(ctx, "http.get.unsupported_media_type")
		return
	}
	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	userInfo := h.checkAuthentication(ctx, r, w)
	if userInfo == nil {
		h.log.InfoContext(ctx, "auth.fail")
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		w.WriteHeader(http.StatusBadRequest)
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	sess, err := h.eng.Sessions().GetForUser(sessID, userInfo.UserID())
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		h.log.InfoContext(ctx, "session.load.miss")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.ID(),
		UserID:          sess.UserID(),
		ProtocolVersion: sess.ProtocolVersion(),
	})

	if pv := r.Header.Get(mcpProtocolVersionHeader); pv != "" && pv != sess.ProtocolVersion() {
		w.WriteHeader(http.StatusPreconditionFailed)
		h.log.WarnContext(ctx, "protocol.version.mismatch", slog.String("client_version", pv))
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: streamCtx}
	ch := &sseChannel{wf: wf, cancel: cancel}

	if !h.eng.Channels().Register(sess.ID(), ch) {
		w.WriteHeader(http.StatusConflict)
		h.log.WarnContext(ctx, "sse.stream.conflict")
		return
	}
	defer func() {
		_ = ch.Close()
		h.eng.Channels().Remove(sess.ID())
	}()

	w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	h.log.InfoContext(ctx, "sse.stream.start")

	if h.fanout != nil {
		lastEventID := r.Header.Get(lastEventIDHeader)
		go func() {
			err := h.fanout.Subscribe(streamCtx, sess.ID(), lastEventID, func(cbCtx context.Context, eventID string, frame []byte) error {
				return ch.sendWithID(eventID, frame)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				h.log.ErrorContext(ctx, "sse.fanout.fail", slog.String("err", err.Error()))
			}
		}()
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-streamCtx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
			return
		case <-keepalive.C:
			if _, err := wf.Write([]byte(": keepalive\n\n")); err != nil {
				h.log.InfoContext(ctx, "sse.keepalive.fail", slog.String("err", err.Error()))
				return
			}
			wf.Flush()
		}
	}
}

// handleDeleteMCP terminates the session identified by Mcp-Session-Id.
func (h *Handler) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.delete.start")

	userInfo := h.checkAuthentication(ctx, r, w)
	if userInfo == nil {
		h.log.InfoContext(ctx, "auth.fail")
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		w.WriteHeader(http.StatusBadRequest)
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	sess, err := h.eng.Sessions().GetForUser(sessID, userInfo.UserID())
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		h.log.InfoContext(ctx, "session.delete.miss")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.ID(),
		UserID:          sess.UserID(),
		ProtocolVersion: sess.ProtocolVersion(),
	})

	if pv := r.Header.Get(mcpProtocolVersionHeader); pv != "" && pv != sess.ProtocolVersion() {
		w.WriteHeader(http.StatusPreconditionFailed)
		h.log.WarnContext(ctx, "protocol.version.mismatch", slog.String("client_version", pv))
		return
	}

	h.eng.DeleteSession(ctx, sess.ID())
	if h.fanout != nil {
		if err := h.fanout.Cleanup(ctx, sess.ID()); err != nil {
			h.log.WarnContext(ctx, "session.delete.fanout_cleanup_failed", slog.String("err", err.Error()))
		}
	}

	w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())
	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "http.delete.ok", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) handleOptionsMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.prmDocument); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode protected resource metadata: %v", err), http.StatusInternalServerError)
	}
}

func (h *Handler) handleGetAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.authServerMetadata); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode authorization server metadata: %v", err), http.StatusInternalServerError)
	}
}
