package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/arcwell/mcpengine/mcp"
)

// ErrResourceNotFound indicates a read against an unregistered URI. The
// dispatcher maps it to the resource-not-found protocol error.
var ErrResourceNotFound = errors.New("registry: resource not found")

// ResourceReader produces the contents of one resource at read time.
type ResourceReader func() ([]mcp.ResourceContents, error)

// StaticResource pairs a resource descriptor with its reader.
type StaticResource struct {
	Descriptor mcp.Resource
	Reader     ResourceReader
}

// TextResource builds a StaticResource serving fixed text.
func TextResource(uri, name, mimeType, text string) StaticResource {
	return StaticResource{
		Descriptor: mcp.Resource{URI: uri, Name: name, MimeType: mimeType},
		Reader: func() ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{{URI: uri, MimeType: mimeType, Text: text}}, nil
		},
	}
}

// BlobResource builds a StaticResource serving fixed base64-encoded bytes.
func BlobResource(uri, name, mimeType, blob string) StaticResource {
	return StaticResource{
		Descriptor: mcp.Resource{URI: uri, Name: name, MimeType: mimeType},
		Reader: func() ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{{URI: uri, MimeType: mimeType, Blob: blob}}, nil
		},
	}
}

// ResourceRegistry owns the registered resources and resource templates.
// Listing preserves declaration order; first registration wins per URI.
type ResourceRegistry struct {
	mu        sync.RWMutex
	resources []mcp.Resource
	readers   map[string]ResourceReader
	templates []mcp.ResourceTemplate
}

// NewResourceRegistry builds a registry from the given definitions.
func NewResourceRegistry(defs ...StaticResource) *ResourceRegistry {
	r := &ResourceRegistry{readers: make(map[string]ResourceReader, len(defs))}
	for _, def := range defs {
		r.Register(def)
	}
	return r
}

// Register adds a resource. Returns false if the URI is empty or taken.
func (r *ResourceRegistry) Register(def StaticResource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	uri := def.Descriptor.URI
	if uri == "" {
		return false
	}
	if _, exists := r.readers[uri]; exists {
		return false
	}
	r.resources = append(r.resources, def.Descriptor)
	r.readers[uri] = def.Reader
	return true
}

// RegisterTemplate adds a resource template for listing. Templates have no
// reader; they describe URI shapes clients may construct.
func (r *ResourceRegistry) RegisterTemplate(tmpl mcp.ResourceTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = append(r.templates, tmpl)
}

// Remove drops a resource by URI. Returns true if removed.
func (r *ResourceRegistry) Remove(uri string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.readers[uri]; !exists {
		return false
	}
	delete(r.readers, uri)
	n := 0
	for _, res := range r.resources {
		if res.URI == uri {
			continue
		}
		r.resources[n] = res
		n++
	}
	r.resources = r.resources[:n]
	return true
}

// List returns the resource descriptors in declaration order.
func (r *ResourceRegistry) List() []mcp.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Resource, len(r.resources))
	copy(out, r.resources)
	return out
}

// ListTemplates returns the resource templates in declaration order.
func (r *ResourceRegistry) ListTemplates() []mcp.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.ResourceTemplate, len(r.templates))
	copy(out, r.templates)
	return out
}

// Len reports the number of registered resources.
func (r *ResourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

// HasTemplates reports whether any templates are registered.
func (r *ResourceRegistry) HasTemplates() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates) > 0
}

// Read returns the contents of the resource at uri.
func (r *ResourceRegistry) Read(uri string) ([]mcp.ResourceContents, error) {
	r.mu.RLock()
	reader := r.readers[uri]
	r.mu.RUnlock()

	if reader == nil {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	return reader()
}
