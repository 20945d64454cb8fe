package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arcwell/mcpengine/mcp"
)

// ErrPromptNotFound indicates a get against an unregistered prompt name.
var ErrPromptNotFound = errors.New("registry: prompt not found")

// ErrMissingPromptArgument indicates a required argument was not supplied.
var ErrMissingPromptArgument = errors.New("registry: missing required prompt argument")

// PromptHandler renders a prompt for the given request. Arguments have
// already been validated against the prompt's required-argument list.
type PromptHandler func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error)

// StaticPrompt pairs a prompt descriptor with its handler.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// NewPrompt builds a StaticPrompt serving a fixed message list.
func NewPrompt(desc mcp.Prompt, messages ...mcp.PromptMessage) StaticPrompt {
	return StaticPrompt{
		Descriptor: desc,
		Handler: func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return &mcp.GetPromptResult{
				Description: desc.Description,
				Messages:    messages,
			}, nil
		},
	}
}

// PromptRegistry owns the registered prompts. Listing preserves
// declaration order; first registration wins per name.
type PromptRegistry struct {
	mu       sync.RWMutex
	prompts  []mcp.Prompt
	handlers map[string]PromptHandler
	required map[string][]string
}

// NewPromptRegistry builds a registry from the given definitions.
func NewPromptRegistry(defs ...StaticPrompt) *PromptRegistry {
	r := &PromptRegistry{
		handlers: make(map[string]PromptHandler, len(defs)),
		required: make(map[string][]string, len(defs)),
	}
	for _, def := range defs {
		r.Register(def)
	}
	return r
}

// Register adds a prompt. Returns false if the name is empty or taken.
func (r *PromptRegistry) Register(def StaticPrompt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := def.Descriptor.Name
	if name == "" {
		return false
	}
	if _, exists := r.handlers[name]; exists {
		return false
	}
	r.prompts = append(r.prompts, def.Descriptor)
	r.handlers[name] = def.Handler

	var req []string
	for _, arg := range def.Descriptor.Arguments {
		if arg.Required {
			req = append(req, arg.Name)
		}
	}
	r.required[name] = req
	return true
}

// Remove drops a prompt by name. Returns true if removed.
func (r *PromptRegistry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; !exists {
		return false
	}
	delete(r.handlers, name)
	delete(r.required, name)
	n := 0
	for _, p := range r.prompts {
		if p.Name == name {
			continue
		}
		r.prompts[n] = p
		n++
	}
	r.prompts = r.prompts[:n]
	return true
}

// List returns the prompt descriptors in declaration order.
func (r *PromptRegistry) List() []mcp.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Prompt, len(r.prompts))
	copy(out, r.prompts)
	return out
}

// Len reports the number of registered prompts.
func (r *PromptRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prompts)
}

// Get renders the named prompt after validating required arguments.
func (r *PromptRegistry) Get(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	r.mu.RLock()
	handler := r.handlers[req.Name]
	required := r.required[req.Name]
	r.mu.RUnlock()

	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, req.Name)
	}
	for _, name := range required {
		if _, ok := req.Arguments[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingPromptArgument, name)
		}
	}
	return handler(ctx, req)
}
