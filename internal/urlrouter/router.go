package urlrouter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"go_niceurl/internal/cache"
	"go_niceurl/internal/converter"
	"go_niceurl/internal/metrics"
	"go_niceurl/internal/model"
	"go_niceurl/internal/rule"
)

// RuleSource yields the enabled rules, highest priority first.
type RuleSource interface {
	ListEnabled(ctx context.Context) ([]model.URLRule, error)
}

// Options configures a Router
type Options struct {
	Rules      RuleSource
	Strategies *converter.Registry
	Cache      cache.Cache
	BaseURL    string

	CacheEnabled bool
	// StrictPlaceholders turns a placeholder without parameter spec into a
	// resolution failure instead of leaving it as literal text.
	StrictPlaceholders bool

	Logger  *logrus.Entry
	Metrics *metrics.Metrics
}

// Router converts nice paths to internal urls and back.
type Router struct {
	rules      RuleSource
	strategies *converter.Registry
	cache      cache.Cache
	baseURL    string

	cacheEnabled bool
	strict       bool

	logger  *logrus.Entry
	metrics *metrics.Metrics

	compiled *compiledRules
	gens     *generations
	flight   singleflight.Group
}

// New creates a Router
func New(opts Options) *Router {
	c := opts.Cache
	if c == nil || !opts.CacheEnabled {
		c = cache.NopCache{}
	}
	strategies := opts.Strategies
	if strategies == nil {
		strategies = converter.NewRegistry(converter.Config{Logger: opts.Logger})
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "url-router")

	return &Router{
		rules:        opts.Rules,
		strategies:   strategies,
		cache:        c,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		cacheEnabled: opts.CacheEnabled,
		strict:       opts.StrictPlaceholders,
		logger:       logger,
		metrics:      opts.Metrics,
		compiled:     newCompiledRules(),
		gens:         newGenerations(),
	}
}

// BaseURL returns the site root every result is prefixed with.
func (r *Router) BaseURL() string {
	return r.baseURL
}

// NormalizePath is the forward cache key and match input: trimmed, without
// leading slash, lower-cased.
func NormalizePath(path string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(path), "/"))
}

// NormalizeURL is the inverse cache key and match input.
func NormalizeURL(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// Convert resolves a nice path to an internal url. The first enabled rule
// whose pattern matches decides the outcome; if its parameters cannot be
// resolved the call fails without trying further rules.
func (r *Router) Convert(ctx context.Context, path string) (string, error) {
	key := NormalizePath(path)

	if r.cacheEnabled {
		e, hit := r.cache.Get(ctx, cache.Forward, key)
		r.metrics.ObserveCache(string(cache.Forward), hit)
		if hit {
			r.metrics.ObserveConversion(string(cache.Forward), "cached")
			return e.URL, nil
		}
	}

	out, err := r.shared(ctx, "f|"+key, func(ctx context.Context) (string, error) {
		return r.convert(ctx, key)
	})
	r.observe(cache.Forward, key, err)
	return out, err
}

// Invert resolves an internal url back to its nice path.
func (r *Router) Invert(ctx context.Context, rawURL string) (string, error) {
	key := NormalizeURL(rawURL)

	if r.cacheEnabled {
		e, hit := r.cache.Get(ctx, cache.Inverse, key)
		r.metrics.ObserveCache(string(cache.Inverse), hit)
		if hit {
			r.metrics.ObserveConversion(string(cache.Inverse), "cached")
			return e.URL, nil
		}
	}

	out, err := r.shared(ctx, "i|"+key, func(ctx context.Context) (string, error) {
		return r.invert(ctx, key)
	})
	r.observe(cache.Inverse, key, err)
	return out, err
}

// shared coalesces identical in-flight lookups. The lookup runs detached from
// any one caller's cancellation, bounded by the strategy timeout, and each
// caller waits on its own context.
func (r *Router) shared(ctx context.Context, key string, fn func(context.Context) (string, error)) (string, error) {
	ch := r.flight.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// InvertAll inverts a batch of links. Links that do not invert are left out
// of the result, which is keyed by the link as given.
func (r *Router) InvertAll(ctx context.Context, urls []string) map[string]string {
	out := make(map[string]string, len(urls))
	for _, u := range urls {
		if _, done := out[u]; done {
			continue
		}
		nice, err := r.Invert(ctx, u)
		if err != nil {
			continue
		}
		out[u] = nice
	}
	return out
}

// InvalidateRule removes every cached conversion produced by ruleID, together
// with its compiled form. It must follow deletion of the rule.
func (r *Router) InvalidateRule(ctx context.Context, ruleID int) (int, error) {
	r.gens.bump(ruleID)
	r.compiled.forget(ruleID)

	removed, err := r.cache.InvalidateRule(ctx, ruleID)
	if err != nil {
		return removed, fmt.Errorf("invalidate rule %d: %w", ruleID, err)
	}
	r.metrics.ObserveInvalidation(removed)
	r.logger.WithFields(logrus.Fields{"rule_id": ruleID, "removed": removed}).Info("rule cache invalidated")
	return removed, nil
}

func (r *Router) convert(ctx context.Context, key string) (string, error) {
	since := r.gens.current()
	rules, err := r.enabledRules(ctx)
	if err != nil {
		return "", err
	}

	for _, rl := range rules {
		groups, ok := rl.Match(key)
		if !ok {
			continue
		}

		out, err := r.resolveForward(ctx, rl, groups)
		if err != nil {
			return "", err
		}
		resolved := rule.JoinBase(r.baseURL, out)
		r.gens.store(since, rl.ID, func() {
			r.cache.Set(ctx, cache.Forward, key, cache.Entry{URL: resolved, RuleID: rl.ID})
		})
		return resolved, nil
	}

	return "", ErrNoMatch
}

func (r *Router) resolveForward(ctx context.Context, rl *rule.Rule, groups map[int]string) (string, error) {
	out := rl.Template
	for n := 1; n <= len(groups); n++ {
		p, ok := rl.ForwardParam(n)
		if !ok {
			continue
		}
		value, err := r.resolveValue(ctx, groups[n], p)
		if err != nil {
			return "", &ResolutionError{RuleID: rl.ID, Group: n, Err: err}
		}
		out = rule.Substitute(out, n, value)
	}

	if r.strict {
		if left := rule.Placeholders(out); len(left) > 0 {
			return "", &ResolutionError{RuleID: rl.ID, Group: left[0], Err: errUnboundGroup}
		}
	}
	return out, nil
}

func (r *Router) invert(ctx context.Context, key string) (string, error) {
	since := r.gens.current()
	rules, err := r.enabledRules(ctx)
	if err != nil {
		return "", err
	}

	for _, rl := range rules {
		groups, ok := rl.MatchInverse(key)
		if !ok {
			continue
		}

		out, err := r.resolveInverse(ctx, rl, groups)
		if err != nil {
			return "", err
		}
		nice := rule.JoinBase(r.baseURL, out)
		r.gens.store(since, rl.ID, func() {
			r.cache.Set(ctx, cache.Inverse, key, cache.Entry{URL: nice, RuleID: rl.ID})
		})
		return nice, nil
	}

	return "", ErrNoMatch
}

// resolveInverse fills the readable form. Placeholders are processed in
// ascending order up to the highest one in the readable form, and every value
// derived along the way becomes available to later source_group lookups.
func (r *Router) resolveInverse(ctx context.Context, rl *rule.Rule, groups map[int]string) (string, error) {
	out := rl.Readable
	readable := rl.ReadableGroups()
	if len(readable) == 0 {
		return out, nil
	}

	working := make(map[int]string, len(groups))
	for n, v := range groups {
		working[n] = v
	}

	last := readable[len(readable)-1]
	for _, n := range rl.InverseGroups(last) {
		p, _ := rl.InverseParam(n)

		input, ok := working[p.InputGroup()]
		if !ok {
			return "", &ResolutionError{RuleID: rl.ID, Group: n, Err: errMissingGroup}
		}
		value, err := r.resolveValue(ctx, input, p)
		if err != nil {
			return "", &ResolutionError{RuleID: rl.ID, Group: n, Err: err}
		}
		if _, exists := working[n]; !exists {
			working[n] = value
		}
		out = rule.Substitute(out, n, value)
	}

	if r.strict {
		if left := rule.Placeholders(out); len(left) > 0 {
			return "", &ResolutionError{RuleID: rl.ID, Group: left[0], Err: errLeftPlaceholder}
		}
	}
	return out, nil
}

func (r *Router) resolveValue(ctx context.Context, value string, p rule.ParamSpec) (string, error) {
	switch p.Kind {
	case rule.KindConvert:
		return r.strategies.Convert(ctx, p.Conversion, value, p.Args)
	default:
		if value == "" && p.Default != nil {
			value = *p.Default
		}
		return url.QueryEscape(value), nil
	}
}

// enabledRules loads and compiles the enabled rules in evaluation order:
// priority descending, then id ascending. Rules that fail to compile are
// skipped.
func (r *Router) enabledRules(ctx context.Context) ([]*rule.Rule, error) {
	if r.rules == nil {
		return nil, nil
	}
	records, err := r.rules.ListEnabled(ctx)
	if err != nil {
		r.logger.WithError(err).Error("failed to load url rules")
		return nil, fmt.Errorf("load rules: %w", err)
	}

	rules := make([]*rule.Rule, 0, len(records))
	for i := range records {
		if !records[i].Enabled {
			continue
		}
		rl, fresh, err := r.compiled.get(&records[i], r.baseURL)
		if err != nil {
			if fresh {
				r.logger.WithError(err).WithField("rule_id", records[i].ID).Warn("url rule disabled by configuration error")
			}
			continue
		}
		rules = append(rules, rl)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

func (r *Router) observe(dir cache.Direction, key string, err error) {
	outcome := "ok"
	var resErr *ResolutionError
	switch {
	case err == nil:
	case errors.Is(err, ErrNoMatch):
		outcome = "no_match"
		r.logger.WithFields(logrus.Fields{"direction": dir, "input": key}).Debug("no rule matched")
	case errors.As(err, &resErr):
		outcome = "unresolved"
		r.logger.WithFields(logrus.Fields{
			"direction": dir,
			"input":     key,
			"rule_id":   resErr.RuleID,
			"group":     resErr.Group,
		}).WithError(resErr.Err).Info("matched rule could not be resolved")
	default:
		outcome = "error"
	}
	r.metrics.ObserveConversion(string(dir), outcome)
}
