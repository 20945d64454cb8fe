package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/arcwell/mcpengine/mcp"
)

// ToolResponseWriter lets a tool handler incrementally compose a
// CallToolResult while optionally emitting progress and log notifications.
//
// It is concurrency-safe within a single request. Writes after Result()
// return ErrFinalized; mutating methods honor ctx cancellation.
type ToolResponseWriter interface {
	AppendText(text string) error
	AppendBlocks(blocks ...mcp.ContentBlock) error
	AppendResources(values ...ResourceContenter) error
	SetError(isError bool)
	SendProgress(progress, total float64) error
	SendProgressMessage(progress, total float64, message string) error
	Log(level mcp.LoggingLevel, message string) error
	// Result finalizes and returns the accumulated result. It is idempotent.
	Result() *mcp.CallToolResult
}

// ErrFinalized is returned when attempting to write after Result() was called.
var ErrFinalized = errors.New("result already finalized")

// ResourceContenter is implemented by values that render as embedded
// resource content blocks in a tool result.
type ResourceContenter interface {
	ResourceContents() mcp.ResourceContents
}

type toolResponseWriter struct {
	ctx      context.Context
	toolName string

	mu        sync.Mutex
	finalized bool
	blocks    []mcp.ContentBlock
	isError   bool
}

var _ ToolResponseWriter = (*toolResponseWriter)(nil)

func newToolResponseWriter(ctx context.Context, toolName string) *toolResponseWriter {
	return &toolResponseWriter{ctx: ctx, toolName: toolName}
}

func (w *toolResponseWriter) AppendText(text string) error {
	if text == "" {
		return nil
	}
	return w.AppendBlocks(mcp.ContentBlock{Type: "text", Text: text})
}

func (w *toolResponseWriter) AppendBlocks(blocks ...mcp.ContentBlock) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}
	w.blocks = append(w.blocks, blocks...)
	return nil
}

func (w *toolResponseWriter) AppendResources(values ...ResourceContenter) error {
	blocks := make([]mcp.ContentBlock, 0, len(values))
	for _, v := range values {
		rc := v.ResourceContents()
		blocks = append(blocks, mcp.ContentBlock{Type: "resource", Resource: &rc})
	}
	return w.AppendBlocks(blocks...)
}

func (w *toolResponseWriter) SetError(isError bool) {
	w.mu.Lock()
	w.isError = isError
	w.mu.Unlock()
}

func (w *toolResponseWriter) SendProgress(progress, total float64) error {
	return w.SendProgressMessage(progress, total, "")
}

func (w *toolResponseWriter) SendProgressMessage(progress, total float64, message string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if pr, ok := ProgressFrom(w.ctx); ok {
		return pr.Report(w.ctx, progress, total, message)
	}
	return nil
}

func (w *toolResponseWriter) Log(level mcp.LoggingLevel, message string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if sink, ok := LogSinkFrom(w.ctx); ok {
		return sink.Log(w.ctx, level, message, w.toolName)
	}
	return nil
}

func (w *toolResponseWriter) Result() *mcp.CallToolResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized = true
	return &mcp.CallToolResult{
		Content: append([]mcp.ContentBlock(nil), w.blocks...),
		IsError: w.isError,
	}
}
