package converter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// HookFunc is a pre-registered callable a rule can reference by name.
type HookFunc func(ctx context.Context, value string) (string, error)

// Hooks maps module references to their callables. A callable is either a free
// function name ("slugify") or a static method reference ("Text::lower").
type Hooks struct {
	mu      sync.RWMutex
	modules map[string]map[string]HookFunc
}

// NewHooks creates an empty hook table
func NewHooks() *Hooks {
	return &Hooks{modules: make(map[string]map[string]HookFunc)}
}

// Register binds module/callable to fn.
func (h *Hooks) Register(module, callable string, fn HookFunc) {
	module = normalizeModule(module)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.modules[module] == nil {
		h.modules[module] = make(map[string]HookFunc)
	}
	h.modules[module][callable] = fn
}

// Lookup finds a callable. The module must be known before its callables are searched.
func (h *Hooks) Lookup(module, callable string) (HookFunc, error) {
	module = normalizeModule(module)
	h.mu.RLock()
	defer h.mu.RUnlock()

	fns, ok := h.modules[module]
	if !ok {
		return nil, fmt.Errorf("hook module %q not found: %w", module, ErrNoResult)
	}
	if typ, method, isMethod := strings.Cut(callable, "::"); isMethod && (typ == "" || method == "") {
		return nil, fmt.Errorf("hook %q: malformed method reference: %w", callable, ErrNoResult)
	}
	fn, ok := fns[callable]
	if !ok {
		return nil, fmt.Errorf("hook %s %q not found: %w", module, callable, ErrNoResult)
	}
	return fn, nil
}

func normalizeModule(module string) string {
	return strings.Trim(strings.TrimSpace(module), "/")
}

// HookStrategy calls a registered hook: args are [moduleReference, callableName].
type HookStrategy struct {
	hooks *Hooks
}

// NewHookStrategy creates the "hook" strategy
func NewHookStrategy(hooks *Hooks) *HookStrategy {
	return &HookStrategy{hooks: hooks}
}

// Convert invokes the hook and query-escapes its result.
func (s *HookStrategy) Convert(ctx context.Context, value string, args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("hook: want 2 args, got %d: %w", len(args), ErrNoResult)
	}
	fn, err := s.hooks.Lookup(args[0], args[1])
	if err != nil {
		return "", err
	}
	out, err := fn(ctx, value)
	if err != nil {
		return "", err
	}
	return url.QueryEscape(out), nil
}
