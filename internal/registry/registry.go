// Package registry holds the global map of task names to their Go
// implementations, mirroring the teacher's plugin registry.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	novapipeerrors "github.com/muqtarM/novapipe/pkg/errors"
)

// TaskFunc is a registered task's implementation. It receives a
// context.Context (cancelled when the attempt times out) and its rendered
// params; it does not see the run context map. It returns either a scalar (bound
// under the task's own name) or a map[string]any (each key merged into the
// context directly).
type TaskFunc func(ctx context.Context, params map[string]any) (any, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]TaskFunc)
)

// Register adds a task implementation under name. It panics on duplicate
// registration, matching the teacher's init()-time registration pattern
// where collisions indicate a programming error, not a runtime condition.
func Register(name string, fn TaskFunc) {
	if fn == nil {
		panic(fmt.Sprintf("registry: nil TaskFunc for %q", name))
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("registry: task %q already registered", name))
	}
	registry[name] = fn
}

// Lookup retrieves a task implementation by name.
func Lookup(name string) (TaskFunc, error) {
	mu.RLock()
	defer mu.RUnlock()

	fn, ok := registry[name]
	if !ok {
		return nil, novapipeerrors.NewValidationError("task", fmt.Sprintf("no task registered under name %q", name), nil)
	}
	return fn, nil
}

// Names returns the sorted list of registered task names, used by the
// `novapipe tasks` CLI subcommand.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all registrations. Exposed for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]TaskFunc)
}
