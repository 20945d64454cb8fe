// Package registry holds the server's tool, resource, prompt, and
// completion registries. Registries are declaration-ordered and first
// registration wins on a name collision; the dispatcher resolves methods
// against them.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/arcwell/mcpengine/mcp"
	"github.com/arcwell/mcpengine/sessions"
)

// ErrToolNotFound indicates a call against an unregistered tool name.
var ErrToolNotFound = errors.New("registry: tool not found")

// ToolHandler handles one tool invocation.
type ToolHandler func(ctx context.Context, session *sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest is the typed container for tool call input.
type ToolRequest[A any] struct {
	name string
	raw  json.RawMessage
	args A
}

func (r *ToolRequest[A]) Name() string                  { return r.name }
func (r *ToolRequest[A]) RawArguments() json.RawMessage { return r.raw }
func (r *ToolRequest[A]) Args() A                       { return r.args }

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether unknown argument
// fields are allowed. When false (default) the generated schema sets
// additionalProperties=false and decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a StaticTool from a typed args struct A: the input
// schema is reflected from A via invopop/jsonschema, and the handler wraps
// fn with JSON decoding. Decode failures become isError results, never
// protocol errors, so malformed input cannot kill a session.
func NewTool[A any](name string, fn func(ctx context.Context, session *sessions.Session, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: reflectInputSchema[A](cfg.allowAdditionalProperties),
	}

	handler := func(ctx context.Context, session *sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			if cfg.allowAdditionalProperties {
				if err := json.Unmarshal(req.Arguments, &a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			} else {
				dec := json.NewDecoder(bytes.NewReader(req.Arguments))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			}
		}
		w := newToolResponseWriter(ctx, name)
		r := &ToolRequest[A]{name: req.Name, raw: req.Arguments, args: a}
		if err := fn(ctx, session, w, r); err != nil {
			return nil, err
		}
		return w.Result(), nil
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// reflectInputSchema reflects a Go type A into the simplified MCP tool
// input schema.
func reflectInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           map[string]mcp.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// ToolRegistry owns the set of registered tools. Listing preserves
// declaration order.
type ToolRegistry struct {
	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]ToolHandler
}

// NewToolRegistry builds a registry from the given definitions.
func NewToolRegistry(defs ...StaticTool) *ToolRegistry {
	r := &ToolRegistry{handlers: make(map[string]ToolHandler, len(defs))}
	for _, def := range defs {
		r.Register(def)
	}
	return r
}

// Register adds a tool. First registration wins: a second tool with the
// same name is refused and false is returned.
func (r *ToolRegistry) Register(def StaticTool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := def.Descriptor.Name
	if name == "" {
		return false
	}
	if _, exists := r.handlers[name]; exists {
		return false
	}
	r.tools = append(r.tools, def.Descriptor)
	r.handlers[name] = def.Handler
	return true
}

// Remove drops a tool by name. Returns true if removed.
func (r *ToolRegistry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; !exists {
		return false
	}
	delete(r.handlers, name)
	n := 0
	for _, t := range r.tools {
		if t.Name == name {
			continue
		}
		r.tools[n] = t
		n++
	}
	r.tools = r.tools[:n]
	return true
}

// List returns the tool descriptors in declaration order.
func (r *ToolRegistry) List() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Len reports the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Call dispatches to the named tool's handler.
func (r *ToolRegistry) Call(ctx context.Context, session *sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r.mu.RLock()
	h := r.handlers[req.Name]
	r.mu.RUnlock()

	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	return h(ctx, session, req)
}

// TextResult builds a single-text-block CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// Errorf returns a business-error CallToolResult with IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}
