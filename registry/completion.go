package registry

import (
	"strings"
	"sync"

	"github.com/arcwell/mcpengine/mcp"
)

// maxCompletionValues caps a single completion response; the remainder is
// signalled through Total and HasMore.
const maxCompletionValues = 100

// CompletionRegistry holds candidate value sets keyed by completion
// target. A target is a prompt name or resource-template URI plus the
// argument being typed.
type CompletionRegistry struct {
	mu     sync.RWMutex
	values map[completionKey][]string
}

type completionKey struct {
	refType  string
	ref      string
	argument string
}

// NewCompletionRegistry builds an empty registry.
func NewCompletionRegistry() *CompletionRegistry {
	return &CompletionRegistry{values: make(map[completionKey][]string)}
}

// RegisterPromptValues declares the candidate values for one argument of a
// prompt. Later registrations for the same target replace earlier ones.
func (r *CompletionRegistry) RegisterPromptValues(promptName, argument string, values ...string) {
	r.set(completionKey{refType: mcp.CompleteRefPrompt, ref: promptName, argument: argument}, values)
}

// RegisterResourceValues declares the candidate values for one variable of
// a resource template URI.
func (r *CompletionRegistry) RegisterResourceValues(templateURI, argument string, values ...string) {
	r.set(completionKey{refType: mcp.CompleteRefResource, ref: templateURI, argument: argument}, values)
}

func (r *CompletionRegistry) set(key completionKey, values []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = append([]string(nil), values...)
}

// Len reports the number of registered completion targets.
func (r *CompletionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

// Complete ranks the candidates for the request's target: values whose
// prefix matches the typed text come first in declaration order, the rest
// follow in declaration order. An unknown target completes to nothing.
func (r *CompletionRegistry) Complete(req *mcp.CompleteRequest) mcp.Completion {
	key := completionKey{refType: req.Ref.Type, argument: req.Argument.Name}
	switch req.Ref.Type {
	case mcp.CompleteRefPrompt:
		key.ref = req.Ref.Name
	case mcp.CompleteRefResource:
		key.ref = req.Ref.URI
	}

	r.mu.RLock()
	candidates := r.values[key]
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return mcp.Completion{Values: []string{}}
	}

	ranked := make([]string, 0, len(candidates))
	var rest []string
	for _, v := range candidates {
		if strings.HasPrefix(v, req.Argument.Value) {
			ranked = append(ranked, v)
		} else {
			rest = append(rest, v)
		}
	}
	ranked = append(ranked, rest...)

	total := len(ranked)
	if total > maxCompletionValues {
		return mcp.Completion{
			Values:  ranked[:maxCompletionValues],
			Total:   total,
			HasMore: true,
		}
	}
	return mcp.Completion{Values: ranked, Total: total}
}
