package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/arcwell/mcpengine/internal/jsonrpc"
	"github.com/arcwell/mcpengine/internal/logctx"
	"github.com/arcwell/mcpengine/mcp"
	"github.com/arcwell/mcpengine/registry"
	"github.com/arcwell/mcpengine/sessions"
)

// HandleMessage routes one decoded inbound message for an established
// session. Notifications return a nil response; requests always return a
// response, never an error that would tear down the transport loop.
func (e *Engine) HandleMessage(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	sess.Touch()
	if req.IsNotification() {
		e.HandleNotification(ctx, sess, req)
		return nil, nil
	}
	return e.HandleRequest(ctx, sess, req), nil
}

// HandleRequest dispatches a request to its method handler. Unknown
// methods yield a method-not-found error response.
func (e *Engine) HandleRequest(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case string(mcp.PingMethod):
		return e.result(req, &mcp.EmptyResult{})
	case string(mcp.ToolsListMethod):
		return e.handleToolsList(ctx, sess, req)
	case string(mcp.ToolsCallMethod):
		return e.handleToolsCall(ctx, sess, req)
	case string(mcp.ResourcesListMethod):
		return e.handleResourcesList(ctx, sess, req)
	case string(mcp.ResourcesTemplatesListMethod):
		return e.handleResourcesTemplatesList(ctx, sess, req)
	case string(mcp.ResourcesReadMethod):
		return e.handleResourcesRead(ctx, sess, req)
	case string(mcp.PromptsListMethod):
		return e.handlePromptsList(ctx, sess, req)
	case string(mcp.PromptsGetMethod):
		return e.handlePromptsGet(ctx, sess, req)
	case string(mcp.CompletionCompleteMethod):
		return e.handleCompletionComplete(ctx, sess, req)
	case string(mcp.LoggingSetLevelMethod):
		return e.handleSetLoggingLevel(ctx, sess, req)
	}

	e.log.InfoContext(ctx, "engine.handle_request.unknown_method",
		slog.String("method", req.Method),
	)
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found", nil)
}

// HandleNotification processes a notification. Notifications never
// produce a reply; unknown ones are logged and dropped.
func (e *Engine) HandleNotification(ctx context.Context, sess *sessions.Session, note *jsonrpc.Request) {
	switch note.Method {
	case string(mcp.InitializedNotificationMethod):
		e.log.InfoContext(ctx, "engine.handshake.initialized",
			slog.String("session_id", sess.ID()),
		)
	case string(mcp.CancelledNotificationMethod):
		// Accepted but inert: in-flight handlers run to completion and
		// their response is still delivered.
		var params mcp.CancelledNotification
		if err := json.Unmarshal(note.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.cancelled.invalid_params",
				slog.String("err", err.Error()),
			)
			return
		}
		e.log.InfoContext(ctx, "engine.cancelled",
			slog.String("session_id", sess.ID()),
			slog.String("request_id", string(params.RequestID)),
			slog.String("reason", params.Reason),
		)
	case string(mcp.ProgressNotificationMethod):
		// Client-side progress is not consumed.
	default:
		e.log.InfoContext(ctx, "engine.handle_notification.unknown_method",
			slog.String("method", note.Method),
		)
	}
}

func (e *Engine) handleToolsList(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	tools := e.tools.List()
	if tools == nil {
		tools = []mcp.Tool{}
	}
	return e.result(req, &mcp.ListToolsResult{Tools: tools})
}

func (e *Engine) handleToolsCall(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method), slog.String("session_id", sess.ID()))

	var params mcp.CallToolRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		log.InfoContext(ctx, "engine.tools_call.invalid",
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	// Progress and log pushes ride the session's channel; the eventual
	// response is unaffected by push failures.
	callCtx := registry.WithLogSink(ctx, e.logSink(sess))
	if params.Meta != nil && params.Meta.ProgressToken != nil {
		callCtx = registry.WithProgressReporter(callCtx, e.progressReporter(sess, params.Meta.ProgressToken))
	}

	res, err := e.tools.Call(callCtx, sess, &params)
	if err != nil {
		if errors.Is(err, registry.ErrToolNotFound) {
			log.InfoContext(ctx, "engine.tools_call.unknown_tool",
				slog.String("tool", params.Name),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()),
			)
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "unknown tool", nil)
		}
		// Handler failures are data, not protocol errors: the client
		// gets a success response carrying isError content.
		log.InfoContext(ctx, "engine.tools_call.handler_error",
			slog.String("tool", params.Name),
			slog.String("err", err.Error()),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		)
		return e.result(req, registry.Errorf("%v", err))
	}

	log.InfoContext(ctx, "engine.tools_call.ok",
		slog.String("tool", params.Name),
		slog.Bool("is_error", res.IsError),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return e.result(req, res)
}

func (e *Engine) handleResourcesList(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	resources := e.resources.List()
	if resources == nil {
		resources = []mcp.Resource{}
	}
	return e.result(req, &mcp.ListResourcesResult{Resources: resources})
}

func (e *Engine) handleResourcesTemplatesList(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	templates := e.resources.ListTemplates()
	if templates == nil {
		templates = []mcp.ResourceTemplate{}
	}
	return e.result(req, &mcp.ListResourceTemplatesResult{ResourceTemplates: templates})
}

func (e *Engine) handleResourcesRead(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method), slog.String("session_id", sess.ID()))

	var params mcp.ReadResourceRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	contents, err := e.resources.Read(params.URI)
	if err != nil {
		if errors.Is(err, registry.ErrResourceNotFound) {
			log.InfoContext(ctx, "engine.resources_read.not_found",
				slog.String("uri", params.URI),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()),
			)
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeResourceNotFound, "resource not found",
				map[string]string{"uri": params.URI})
		}
		log.ErrorContext(ctx, "engine.resources_read.fail",
			slog.String("uri", params.URI),
			slog.String("err", err.Error()),
		)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	if len(contents) == 0 {
		// A registered reader yielding nothing is indistinguishable to
		// the client from a missing resource.
		log.InfoContext(ctx, "engine.resources_read.empty",
			slog.String("uri", params.URI),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeResourceNotFound, "resource not found",
			map[string]string{"uri": params.URI})
	}
	return e.result(req, &mcp.ReadResourceResult{Contents: contents})
}

func (e *Engine) handlePromptsList(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	prompts := e.prompts.List()
	if prompts == nil {
		prompts = []mcp.Prompt{}
	}
	return e.result(req, &mcp.ListPromptsResult{Prompts: prompts})
}

func (e *Engine) handlePromptsGet(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method), slog.String("session_id", sess.ID()))

	var params mcp.GetPromptRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	res, err := e.prompts.Get(ctx, &params)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrPromptNotFound):
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "unknown prompt", nil)
		case errors.Is(err, registry.ErrMissingPromptArgument):
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil)
		}
		log.ErrorContext(ctx, "engine.prompts_get.fail",
			slog.String("prompt", params.Name),
			slog.String("err", err.Error()),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return e.result(req, res)
}

func (e *Engine) handleCompletionComplete(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.CompleteRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Ref.Type == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}
	return e.result(req, &mcp.CompleteResult{Completion: e.completions.Complete(&params)})
}

func (e *Engine) handleSetLoggingLevel(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.SetLevelRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}
	if err := sess.SetLogLevel(params.Level); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}
	e.log.InfoContext(ctx, "engine.logging_set_level",
		slog.String("session_id", sess.ID()),
		slog.String("level", string(params.Level)),
	)
	return e.result(req, &mcp.EmptyResult{})
}

// result marshals a success response; a marshal failure degrades to an
// internal error response so the transport loop never sees an error.
func (e *Engine) result(req *jsonrpc.Request, payload any) *jsonrpc.Response {
	res, err := jsonrpc.NewResultResponse(req.ID, payload)
	if err != nil {
		e.log.Error("engine.result.marshal_failed",
			slog.String("method", req.Method),
			slog.String("err", err.Error()),
		)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return res
}
