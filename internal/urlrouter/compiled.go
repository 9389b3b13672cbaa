package urlrouter

import (
	"strconv"
	"strings"
	"sync"

	"go_niceurl/internal/model"
	"go_niceurl/internal/rule"
)

type compiledEntry struct {
	fingerprint string
	rule        *rule.Rule
	err         error
}

// compiledRules memoizes rule compilation by id. An entry is reused while the
// record's fingerprint is unchanged.
type compiledRules struct {
	mu      sync.RWMutex
	entries map[int]compiledEntry
}

func newCompiledRules() *compiledRules {
	return &compiledRules{entries: make(map[int]compiledEntry)}
}

// get returns the compiled rule; fresh is true when it was compiled by this call.
func (c *compiledRules) get(m *model.URLRule, baseURL string) (*rule.Rule, bool, error) {
	fp := fingerprint(m, baseURL)

	c.mu.RLock()
	e, ok := c.entries[m.ID]
	c.mu.RUnlock()
	if ok && e.fingerprint == fp {
		return e.rule, false, e.err
	}

	rl, err := rule.Compile(m, baseURL)
	c.mu.Lock()
	c.entries[m.ID] = compiledEntry{fingerprint: fp, rule: rl, err: err}
	c.mu.Unlock()
	return rl, true, err
}

func (c *compiledRules) forget(id int) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

func fingerprint(m *model.URLRule, baseURL string) string {
	return strings.Join([]string{
		baseURL,
		m.Pattern,
		m.Template,
		m.Readable,
		string(m.ForwardParams),
		string(m.InverseParams),
		strconv.FormatFloat(m.Priority, 'g', -1, 64),
		m.UpdatedAt.String(),
	}, "\x00")
}
