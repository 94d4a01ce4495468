package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/petal-labs/petalmcp/mcp"
)

var (
	// ErrDuplicateTool is returned when two entries share a name.
	ErrDuplicateTool = errors.New("tool: duplicate tool name")
	// ErrInvalidDescriptor is returned for malformed descriptors or schemas.
	ErrInvalidDescriptor = errors.New("tool: invalid descriptor")
)

// Arguments is the loosely-typed argument mapping of a tools/call request.
type Arguments map[string]any

// String returns the named argument when it is a string.
func (a Arguments) String(name string) (string, bool) {
	v, ok := a[name].(string)
	return v, ok
}

// Descriptor is the discovery record of one tool.
type Descriptor struct {
	Name        string
	Description string
	InputSchema Schema
}

// Wire renders the descriptor as it appears in tools/list.
func (d Descriptor) Wire() mcp.Tool {
	return mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema.Map(),
	}
}

// Handler is the collaborator contract: given validated arguments it returns
// a non-empty ordered sequence of content blocks. Failures are reported as
// error-shaped Text blocks, never as Go errors.
type Handler interface {
	Invoke(ctx context.Context, args Arguments) []mcp.ContentBlock
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args Arguments) []mcp.ContentBlock

// Invoke calls f.
func (f HandlerFunc) Invoke(ctx context.Context, args Arguments) []mcp.ContentBlock {
	return f(ctx, args)
}

// Entry pairs a descriptor with its handler.
type Entry struct {
	Descriptor Descriptor
	Handler    Handler
}

// Registry is the immutable tool catalog. It is built once and is safe for
// concurrent reads without locking.
type Registry struct {
	entries []Entry
	index   map[string]int
}

// NewRegistry builds a registry preserving the given entry order.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, entry := range entries {
		name := strings.TrimSpace(entry.Descriptor.Name)
		if name == "" || name != entry.Descriptor.Name {
			return nil, fmt.Errorf("%w: tool name %q", ErrInvalidDescriptor, entry.Descriptor.Name)
		}
		if entry.Handler == nil {
			return nil, fmt.Errorf("%w: tool %q has no handler", ErrInvalidDescriptor, name)
		}
		if err := entry.Descriptor.InputSchema.check(); err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
		if _, exists := r.index[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		r.index[name] = len(r.entries)
		r.entries = append(r.entries, entry)
	}
	return r, nil
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	if r == nil {
		return nil
	}
	out := make([]Descriptor, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Descriptor)
	}
	return out
}

// Lookup resolves a tool by exact name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	i, ok := r.index[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}
