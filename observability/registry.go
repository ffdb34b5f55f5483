package observability

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownObserver is returned by Resolve for unregistered names.
var ErrUnknownObserver = errors.New("unknown observer")

// Factory builds the observer behind a registered name.
type Factory func() Observer

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		"noop": func() Observer { return Discard },
		"slog": func() Observer { return NewSlogObserver(nil, WithMinLevel(LevelInfo)) },
		"debug": func() Observer {
			return NewSlogObserver(nil, WithMinLevel(LevelVerbose))
		},
	}
)

// Resolve returns the observer registered under name, which is the value of
// the "observer" field in orchestrator and graph configuration. Built in are
// "noop", "slog" (info and above to slog.Default) and "debug" (everything
// to slog.Default).
func Resolve(name string) (Observer, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownObserver, name, strings.Join(Names(), ", "))
	}
	return f(), nil
}

// Register adds or replaces a named observer factory.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Names returns the registered names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}
