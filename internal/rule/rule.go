package rule

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go_niceurl/internal/model"
)

// Kind 参数解析方式
type Kind string

const (
	KindPlain   Kind = model.ParamKindPlain
	KindConvert Kind = model.ParamKindConvert
)

// ParamSpec describes how one capture group becomes a substitution value.
type ParamSpec struct {
	Group       int      `json:"group"`
	Kind        Kind     `json:"kind"`
	Default     *string  `json:"default,omitempty"`
	SourceGroup int      `json:"source_group,omitempty"`
	Conversion  string   `json:"conversion,omitempty"`
	Args        []string `json:"args,omitempty"`
}

// InputGroup returns the group the value is read from during inversion.
func (p ParamSpec) InputGroup() int {
	if p.SourceGroup > 0 {
		return p.SourceGroup
	}
	return p.Group
}

// ConfigError marks malformed rule data. Rules that fail to compile never match.
type ConfigError struct {
	RuleID int
	Field  string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rule %d: invalid %s: %v", e.RuleID, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Rule is the compiled, validated form of a model.URLRule.
type Rule struct {
	ID        int
	Type      string
	Priority  float64
	Enabled   bool
	Template  string
	Readable  string
	UpdatedAt time.Time

	pattern  *regexp.Regexp
	inverse  *regexp.Regexp
	forward  map[int]ParamSpec
	inverted map[int]ParamSpec

	readableGroups []int
	paramGroups    []int
}

// Compile validates m and builds the forward and inverse matchers. Both are
// case-insensitive; callers lower-case their input as well.
func Compile(m *model.URLRule, baseURL string) (*Rule, error) {
	cfgErr := func(field string, err error) error {
		return &ConfigError{RuleID: m.ID, Field: field, Err: err}
	}

	if strings.TrimSpace(m.Pattern) == "" {
		return nil, cfgErr("pattern", fmt.Errorf("empty"))
	}
	if strings.TrimSpace(m.Template) == "" {
		return nil, cfgErr("template", fmt.Errorf("empty"))
	}
	if strings.TrimSpace(m.Readable) == "" {
		return nil, cfgErr("readable", fmt.Errorf("empty"))
	}

	pattern, err := regexp.Compile("(?i)" + m.Pattern)
	if err != nil {
		return nil, cfgErr("pattern", err)
	}

	inverse, err := InversePattern(baseURL, m.Template)
	if err != nil {
		return nil, cfgErr("template", err)
	}

	forward, err := ParseParams(m.ForwardParams)
	if err != nil {
		return nil, cfgErr("forward_params", err)
	}
	inverted, err := ParseParams(m.InverseParams)
	if err != nil {
		return nil, cfgErr("inverse_params", err)
	}

	readableGroups := Placeholders(m.Readable)
	if len(readableGroups) > 0 {
		limit := max(pattern.NumSubexp(), inverse.NumSubexp(), maxGroup(forward), maxGroup(inverted))
		if n := readableGroups[len(readableGroups)-1]; n > limit {
			return nil, cfgErr("readable", fmt.Errorf("placeholder ${%d} exceeds the %d known groups", n, limit))
		}
	}

	return &Rule{
		ID:             m.ID,
		Type:           m.Type,
		Priority:       m.Priority,
		Enabled:        m.Enabled,
		Template:       m.Template,
		Readable:       m.Readable,
		UpdatedAt:      m.UpdatedAt,
		pattern:        pattern,
		inverse:        inverse,
		forward:        forward,
		inverted:       inverted,
		readableGroups: readableGroups,
		paramGroups:    paramGroups(forward, inverted),
	}, nil
}

// ParseParams decodes a JSON array of parameter specs into a map keyed by group.
func ParseParams(raw []byte) (map[int]ParamSpec, error) {
	params := make(map[int]ParamSpec)
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return params, nil
	}

	var specs []ParamSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}

	for _, p := range specs {
		if p.Group < 1 {
			return nil, fmt.Errorf("param group must be >= 1, got %d", p.Group)
		}
		if _, dup := params[p.Group]; dup {
			return nil, fmt.Errorf("duplicate param group %d", p.Group)
		}
		if p.Kind == "" {
			p.Kind = KindPlain
		}
		p.Kind = Kind(strings.ToLower(string(p.Kind)))
		switch p.Kind {
		case KindPlain:
		case KindConvert:
			if p.Conversion == "" {
				return nil, fmt.Errorf("param %d: convert requires a conversion name", p.Group)
			}
		default:
			return nil, fmt.Errorf("param %d: unknown kind %q", p.Group, p.Kind)
		}
		if p.SourceGroup < 0 {
			return nil, fmt.Errorf("param %d: negative source group", p.Group)
		}
		params[p.Group] = p
	}

	return params, nil
}

// Match runs the forward pattern and returns capture groups keyed by number.
// Unmatched optional groups map to "".
func (r *Rule) Match(path string) (map[int]string, bool) {
	return submatches(r.pattern, path)
}

// MatchInverse runs the pattern derived from the template against an internal URL.
// Groups are numbered by the position of their placeholder in the template, not
// by the placeholder number.
func (r *Rule) MatchInverse(url string) (map[int]string, bool) {
	return submatches(r.inverse, url)
}

// NumGroups is the number of capture groups in the forward pattern.
func (r *Rule) NumGroups() int {
	return r.pattern.NumSubexp()
}

// ForwardParam returns the spec used for nice -> internal conversion.
func (r *Rule) ForwardParam(n int) (ParamSpec, bool) {
	p, ok := r.forward[n]
	return p, ok
}

// InverseParam returns the inversion spec, falling back to the forward one.
func (r *Rule) InverseParam(n int) (ParamSpec, bool) {
	if p, ok := r.inverted[n]; ok {
		return p, true
	}
	return r.ForwardParam(n)
}

// ReadableGroups lists the placeholder numbers of the readable form, ascending.
func (r *Rule) ReadableGroups() []int {
	return r.readableGroups
}

// InverseGroups lists, ascending, the groups up to upTo that have a parameter
// spec for inversion.
func (r *Rule) InverseGroups(upTo int) []int {
	n := sort.SearchInts(r.paramGroups, upTo+1)
	return r.paramGroups[:n]
}

// Conversions lists every conversion name referenced by the rule.
func (r *Rule) Conversions() []ParamSpec {
	var out []ParamSpec
	for _, params := range []map[int]ParamSpec{r.forward, r.inverted} {
		for _, p := range params {
			if p.Kind == KindConvert {
				out = append(out, p)
			}
		}
	}
	return out
}

func maxGroup(params map[int]ParamSpec) int {
	n := 0
	for g := range params {
		n = max(n, g)
	}
	return n
}

func paramGroups(params ...map[int]ParamSpec) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, m := range params {
		for g := range m {
			if _, ok := seen[g]; !ok {
				seen[g] = struct{}{}
				out = append(out, g)
			}
		}
	}
	sort.Ints(out)
	return out
}

func submatches(re *regexp.Regexp, s string) (map[int]string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	groups := make(map[int]string, len(m)-1)
	for i := 1; i < len(m); i++ {
		groups[i] = m[i]
	}
	return groups, true
}
