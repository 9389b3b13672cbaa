package converter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"gorm.io/gorm"
)

// Built-in strategy names
const (
	StrategyDB   = "db"
	StrategyHook = "hook"
)

// CoreModule is the module reference of the built-in hooks.
const CoreModule = "core"

// RegisterCoreHooks installs the built-in text hooks under CoreModule.
func RegisterCoreHooks(h *Hooks) {
	h.Register(CoreModule, "slugify", func(_ context.Context, v string) (string, error) {
		return Slugify(v), nil
	})
	h.Register(CoreModule, "Text::lower", func(_ context.Context, v string) (string, error) {
		return strings.ToLower(v), nil
	})
	h.Register(CoreModule, "Text::upper", func(_ context.Context, v string) (string, error) {
		return strings.ToUpper(v), nil
	})
	h.Register(CoreModule, "Text::trim", func(_ context.Context, v string) (string, error) {
		return strings.TrimSpace(v), nil
	})
}

// Table read by the course_module_name hook; a view can provide it.
const (
	ModuleTable      = "course_modules"
	ModuleIDColumn   = "id"
	ModuleNameColumn = "name"
)

// RegisterDBHooks installs the core hooks that read the database:
// course_module_name maps an activity id to its name.
func RegisterDBHooks(h *Hooks, db *gorm.DB) {
	lookup := NewDBStrategy(db)
	h.Register(CoreModule, "course_module_name", func(ctx context.Context, v string) (string, error) {
		if _, err := strconv.Atoi(v); err != nil {
			return "", fmt.Errorf("course_module_name: id %q is not numeric: %w", v, ErrNoResult)
		}
		return lookup.Convert(ctx, v, []string{ModuleTable, ModuleIDColumn, ModuleNameColumn})
	})
}

// NewDefaultRegistry registers the db and hook strategies. db may be nil, in
// which case only hooks are available.
func NewDefaultRegistry(cfg Config, db *gorm.DB, hooks *Hooks) *Registry {
	r := NewRegistry(cfg)
	if db != nil {
		r.Register(StrategyDB, NewDBStrategy(db))
	}
	if hooks != nil {
		r.Register(StrategyHook, NewHookStrategy(hooks))
	}
	return r
}

// Slugify lower-cases s and collapses every run of non-alphanumerics into "-".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
