package cache

import "context"

// Direction selects one of the two independent conversion maps.
type Direction string

const (
	Forward Direction = "forward" // nice path -> internal url
	Inverse Direction = "inverse" // internal url -> nice path
)

// Entry is a resolved URL tagged with the rule that produced it.
type Entry struct {
	URL    string `json:"url"`
	RuleID int    `json:"rule_id"`
}

// Cache memoizes conversions. It is a derived index: every entry can be
// rebuilt from the rules, and InvalidateRule is the only way entries leave
// apart from the implementation's own eviction.
type Cache interface {
	Get(ctx context.Context, dir Direction, key string) (Entry, bool)
	Set(ctx context.Context, dir Direction, key string, e Entry)
	// InvalidateRule drops every entry tagged with ruleID and reports how many went.
	InvalidateRule(ctx context.Context, ruleID int) (int, error)
}

// NopCache is used when caching is disabled.
type NopCache struct{}

func (NopCache) Get(context.Context, Direction, string) (Entry, bool) { return Entry{}, false }
func (NopCache) Set(context.Context, Direction, string, Entry)        {}
func (NopCache) InvalidateRule(context.Context, int) (int, error)     { return 0, nil }

func entryKey(dir Direction, key string) string {
	return string(dir) + "|" + key
}
