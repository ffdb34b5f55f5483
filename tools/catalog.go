package tools

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/jurni-app/planner/core/protocol"
)

var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrDuplicateTool = errors.New("tool already in catalog")
	ErrInvalidTool   = errors.New("invalid tool definition")
)

// Handler runs one tool invocation. args is the JSON object the backend
// produced; an empty argument list arrives as {}.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Result is a tool's output. Listings are JSON of the form
// {"type": ..., "data": [...]} so the adapter can surface them as
// structured chunks. IsError marks an invocation the tool itself refused.
type Result struct {
	Content string
	IsError bool
}

// Executor is what a sub-agent needs from a tool set: the definitions it
// advertises to the backend and a way to run the calls that come back.
type Executor interface {
	Lookup(names ...string) []protocol.Tool
	Execute(ctx context.Context, name string, args json.RawMessage) (Result, error)
}

type tool struct {
	def     protocol.Tool
	handler Handler
}

// Catalog is a named set of tools. It is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]tool
}

var _ Executor = (*Catalog)(nil)

func NewCatalog() *Catalog {
	return &Catalog{tools: make(map[string]tool)}
}

// Add puts a tool in the catalog. Names are unique.
func (c *Catalog) Add(def protocol.Tool, handler Handler) error {
	if def.Name == "" || handler == nil {
		return fmt.Errorf("%w: name %q, handler set %t", ErrInvalidTool, def.Name, handler != nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tools[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}
	c.tools[def.Name] = tool{def: def, handler: handler}
	return nil
}

// Names returns the tool names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.tools))
}

// Lookup returns the definitions of the named tools sorted by name.
// Unknown and repeated names are skipped.
func (c *Catalog) Lookup(names ...string) []protocol.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]protocol.Tool, 0, len(names))
	for _, name := range names {
		if t, ok := c.tools[name]; ok {
			defs = append(defs, t.def)
		}
	}
	slices.SortFunc(defs, func(a, b protocol.Tool) int { return cmp.Compare(a.Name, b.Name) })
	return slices.CompactFunc(defs, func(a, b protocol.Tool) bool { return a.Name == b.Name })
}

// Execute runs the named tool. Handler failures are wrapped with the tool
// name; refusals come back as a Result with IsError set.
func (c *Catalog) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	c.mu.RLock()
	t, ok := c.tools[name]
	c.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("tool %s: %w", name, err)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	result, err := t.handler(ctx, args)
	if err != nil {
		return Result{}, fmt.Errorf("tool %s: %w", name, err)
	}
	return result, nil
}
