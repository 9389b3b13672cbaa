package urlrouter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"go_niceurl/internal/cache"
	"go_niceurl/internal/converter"
	"go_niceurl/internal/metrics"
	"go_niceurl/internal/model"
)

const base = "https://lms.example.org"

type fakeSource struct {
	mu    sync.Mutex
	rules []model.URLRule
	err   error
}

func (s *fakeSource) ListEnabled(context.Context) ([]model.URLRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.URLRule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

func (s *fakeSource) set(rules ...model.URLRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
}

// fakeTables answers "db" conversions from table.input=value keys.
type fakeTables struct {
	rows  map[string]string
	calls atomic.Int32
}

func (f *fakeTables) Convert(_ context.Context, value string, args []string) (string, error) {
	f.calls.Add(1)
	if len(args) != 3 {
		return "", converter.ErrNoResult
	}
	out, ok := f.rows[args[0]+"."+args[1]+"="+value]
	if !ok {
		return "", converter.ErrNoResult
	}
	return out, nil
}

func newRule(id int, priority float64, pattern, template, readable, forward, inverse string) model.URLRule {
	m := model.URLRule{
		Pattern:       pattern,
		Template:      template,
		Readable:      readable,
		ForwardParams: datatypes.JSON(forward),
		InverseParams: datatypes.JSON(inverse),
		Enabled:       true,
		Priority:      priority,
	}
	m.ID = id
	return m
}

// courseRule resolves course/<shortname>/<path> through the course table.
func courseRule(id int) model.URLRule {
	return newRule(id, 10,
		`^course/([a-z0-9-]+)/?(.*)$`,
		"mod/index.php?id=${1}&path=${2}",
		"course/${1}/${2}",
		`[{"group":1,"kind":"convert","conversion":"db","args":["course","shortname","id"]},{"group":2,"kind":"plain"}]`,
		`[{"group":1,"kind":"convert","conversion":"db","args":["course","id","shortname"]}]`)
}

type fixture struct {
	router *Router
	source *fakeSource
	tables *fakeTables
	cache  *cache.MemoryCache
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, opts Options, rules ...model.URLRule) *fixture {
	t.Helper()
	tables := &fakeTables{rows: map[string]string{
		"course.shortname=intro-to-cs": "42",
		"course.id=42":                 "intro-to-cs",
		"activity.id=7":                "intro-to-cs",
	}}
	hooks := converter.NewHooks()
	converter.RegisterCoreHooks(hooks)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	strategies := converter.NewRegistry(converter.Config{Observer: m})
	strategies.Register(converter.StrategyDB, tables)
	strategies.Register(converter.StrategyHook, converter.NewHookStrategy(hooks))

	c, err := cache.NewMemoryCache(100)
	require.NoError(t, err)

	source := &fakeSource{rules: rules}
	opts.Rules = source
	opts.Strategies = strategies
	opts.Cache = c
	opts.BaseURL = base + "/"
	opts.Metrics = m

	return &fixture{router: New(opts), source: source, tables: tables, cache: c, reg: reg}
}

func TestConvertExampleScenario(t *testing.T) {
	f := newFixture(t, Options{CacheEnabled: true}, courseRule(1))

	out, err := f.router.Convert(context.Background(), "course/intro-to-cs/syllabus")
	require.NoError(t, err)
	assert.Equal(t, base+"/mod/index.php?id=42&path=syllabus", out)
}

func TestConvertIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, Options{}, courseRule(1))

	out, err := f.router.Convert(context.Background(), " /Course/Intro-To-CS/Syllabus")
	require.NoError(t, err)
	assert.Equal(t, base+"/mod/index.php?id=42&path=syllabus", out)
}

func TestConvertHighestPriorityWins(t *testing.T) {
	low := newRule(1, 5, `^page/(\w+)$`, "low.php?p=${1}", "page/${1}", `[{"group":1}]`, "")
	high := newRule(2, 10, `^page/(\w+)$`, "high.php?p=${1}", "page/${1}", `[{"group":1}]`, "")
	f := newFixture(t, Options{}, low, high)

	out, err := f.router.Convert(context.Background(), "page/home")
	require.NoError(t, err)
	assert.Equal(t, base+"/high.php?p=home", out)
}

func TestConvertEqualPriorityLowerIDWins(t *testing.T) {
	second := newRule(9, 1, `^page/(\w+)$`, "nine.php?p=${1}", "page/${1}", `[{"group":1}]`, "")
	first := newRule(3, 1, `^page/(\w+)$`, "three.php?p=${1}", "page/${1}", `[{"group":1}]`, "")
	f := newFixture(t, Options{}, second, first)

	out, err := f.router.Convert(context.Background(), "page/home")
	require.NoError(t, err)
	assert.Equal(t, base+"/three.php?p=home", out)
}

func TestConvertSkipsDisabledAndBrokenRules(t *testing.T) {
	disabled := newRule(1, 100, `^page/(\w+)$`, "disabled.php", "page/${1}", "", "")
	disabled.Enabled = false
	broken := newRule(2, 50, `^page/(`, "broken.php", "page", "", "")
	ok := newRule(3, 1, `^page/(\w+)$`, "ok.php?p=${1}", "page/${1}", `[{"group":1}]`, "")
	f := newFixture(t, Options{}, disabled, broken, ok)

	out, err := f.router.Convert(context.Background(), "page/home")
	require.NoError(t, err)
	assert.Equal(t, base+"/ok.php?p=home", out)
}

func TestConvertUnresolvedParamDoesNotFallThrough(t *testing.T) {
	fallback := newRule(2, 1, `^course/(.*)$`, "search.php?q=${1}", "course/${1}", `[{"group":1}]`, "")
	f := newFixture(t, Options{}, courseRule(1), fallback)

	_, err := f.router.Convert(context.Background(), "course/unknown/syllabus")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, ErrNoMatch))

	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, 1, resErr.RuleID)
	assert.Equal(t, 1, resErr.Group)
}

func TestConvertNoMatch(t *testing.T) {
	f := newFixture(t, Options{}, courseRule(1))

	_, err := f.router.Convert(context.Background(), "category/5")
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConvertPlainDefaultAndEscaping(t *testing.T) {
	paged := newRule(1, 2, `^news/?(\d*)$`, "blog/index.php?page=${1}", "news/${1}", `[{"group":1,"kind":"plain","default":"1"}]`, "")
	search := newRule(2, 1, `^search/(.+)$`, "search/index.php?q=${1}", "search/${1}", `[{"group":1}]`, "")
	f := newFixture(t, Options{}, paged, search)
	ctx := context.Background()

	out, err := f.router.Convert(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, base+"/blog/index.php?page=1", out)

	out, err = f.router.Convert(ctx, "news/3")
	require.NoError(t, err)
	assert.Equal(t, base+"/blog/index.php?page=3", out)

	out, err = f.router.Convert(ctx, "search/a b&c")
	require.NoError(t, err)
	assert.Equal(t, base+"/search/index.php?q=a+b%26c", out)
}

func TestConvertHookParam(t *testing.T) {
	tag := newRule(1, 1, `^tag/(.+)$`, "tag/index.php?tag=${1}", "tag/${1}",
		`[{"group":1,"kind":"convert","conversion":"hook","args":["core","slugify"]}]`, "")
	f := newFixture(t, Options{}, tag)

	out, err := f.router.Convert(context.Background(), "tag/Machine Learning")
	require.NoError(t, err)
	assert.Equal(t, base+"/tag/index.php?tag=machine-learning", out)
}

func TestConvertUnspecifiedPlaceholder(t *testing.T) {
	r := newRule(1, 1, `^a/(\w+)/(\w+)$`, "a.php?x=${1}&y=${2}", "a/${1}/${2}", `[{"group":1}]`, "")
	ctx := context.Background()

	loose := newFixture(t, Options{}, r)
	out, err := loose.router.Convert(ctx, "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, base+"/a.php?x=b&y=${2}", out)

	strict := newFixture(t, Options{StrictPlaceholders: true}, r)
	_, err = strict.router.Convert(ctx, "a/b/c")
	assert.ErrorIs(t, err, ErrNotFound)
	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, 2, resErr.Group)
}

func TestConvertSourceError(t *testing.T) {
	f := newFixture(t, Options{}, courseRule(1))
	f.source.err = errors.New("mysql down")

	_, err := f.router.Convert(context.Background(), "course/intro-to-cs")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestInvert(t *testing.T) {
	f := newFixture(t, Options{}, courseRule(1))

	out, err := f.router.Invert(context.Background(), base+"/mod/index.php?id=42&path=syllabus")
	require.NoError(t, err)
	assert.Equal(t, base+"/course/intro-to-cs/syllabus", out)
}

func TestInvertRejectsOtherSites(t *testing.T) {
	f := newFixture(t, Options{}, courseRule(1))

	_, err := f.router.Invert(context.Background(), "https://elsewhere.test/mod/index.php?id=42&path=syllabus")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestInvertWithSourceGroup(t *testing.T) {
	activity := newRule(1, 1,
		`^course/[a-z0-9-]+/activity/(\d+)$`,
		"mod/view.php?id=${1}",
		"course/${2}/activity/${1}",
		`[{"group":1}]`,
		`[{"group":1},{"group":2,"kind":"convert","conversion":"db","args":["activity","id","shortname"],"source_group":1}]`)
	f := newFixture(t, Options{}, activity)
	ctx := context.Background()

	nice, err := f.router.Invert(ctx, base+"/mod/view.php?id=7")
	require.NoError(t, err)
	assert.Equal(t, base+"/course/intro-to-cs/activity/7", nice)

	internal, err := f.router.Convert(ctx, "course/intro-to-cs/activity/7")
	require.NoError(t, err)
	assert.Equal(t, base+"/mod/view.php?id=7", internal)
}

func TestInvertUnresolvable(t *testing.T) {
	f := newFixture(t, Options{}, courseRule(1))

	_, err := f.router.Invert(context.Background(), base+"/mod/index.php?id=99&path=x")
	assert.ErrorIs(t, err, ErrNotFound)
	var resErr *ResolutionError
	assert.True(t, errors.As(err, &resErr))
}

func TestInvertReadableWithoutPlaceholders(t *testing.T) {
	help := newRule(1, 1, `^help$`, "help/index.php", "help", "", "")
	f := newFixture(t, Options{}, help)

	out, err := f.router.Invert(context.Background(), base+"/help/index.php")
	require.NoError(t, err)
	assert.Equal(t, base+"/help", out)
}

func TestInvertAll(t *testing.T) {
	f := newFixture(t, Options{}, courseRule(1))
	links := []string{
		base + "/mod/index.php?id=42&path=syllabus",
		"https://elsewhere.test/x",
		base + "/mod/index.php?id=99&path=x",
		base + "/mod/index.php?id=42&path=syllabus",
	}

	out := f.router.InvertAll(context.Background(), links)
	assert.Equal(t, map[string]string{
		links[0]: base + "/course/intro-to-cs/syllabus",
	}, out)
}

func TestCacheServesRepeatsUntilInvalidated(t *testing.T) {
	f := newFixture(t, Options{CacheEnabled: true}, courseRule(1))
	ctx := context.Background()

	out, err := f.router.Convert(ctx, "course/intro-to-cs/syllabus")
	require.NoError(t, err)
	_, err = f.router.Convert(ctx, "COURSE/intro-to-cs/syllabus")
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.tables.calls.Load())

	changed := courseRule(1)
	changed.Template = "course/view.php?id=${1}&section=${2}"
	f.source.set(changed)

	cached, err := f.router.Convert(ctx, "course/intro-to-cs/syllabus")
	require.NoError(t, err)
	assert.Equal(t, out, cached)

	removed, err := f.router.InvalidateRule(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	fresh, err := f.router.Convert(ctx, "course/intro-to-cs/syllabus")
	require.NoError(t, err)
	assert.Equal(t, base+"/course/view.php?id=42&section=syllabus", fresh)

	expected := `
# HELP niceurl_rule_invalidations_total Rule cache invalidations.
# TYPE niceurl_rule_invalidations_total counter
niceurl_rule_invalidations_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "niceurl_rule_invalidations_total"))
}

func TestInvalidateRuleLeavesOtherRules(t *testing.T) {
	page := newRule(2, 1, `^page/(\w+)$`, "page.php?p=${1}", "page/${1}", `[{"group":1}]`, "")
	f := newFixture(t, Options{CacheEnabled: true}, courseRule(1), page)
	ctx := context.Background()

	_, err := f.router.Convert(ctx, "course/intro-to-cs/syllabus")
	require.NoError(t, err)
	_, err = f.router.Convert(ctx, "page/home")
	require.NoError(t, err)
	_, err = f.router.Invert(ctx, base+"/page.php?p=home")
	require.NoError(t, err)

	removed, err := f.router.InvalidateRule(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, f.cache.Len())
}

func TestCacheDisabled(t *testing.T) {
	f := newFixture(t, Options{CacheEnabled: false}, courseRule(1))
	ctx := context.Background()

	_, err := f.router.Convert(ctx, "course/intro-to-cs/syllabus")
	require.NoError(t, err)
	_, err = f.router.Convert(ctx, "course/intro-to-cs/syllabus")
	require.NoError(t, err)

	assert.EqualValues(t, 2, f.tables.calls.Load())
	assert.Zero(t, f.cache.Len())
}

func TestFailuresAreNotCached(t *testing.T) {
	f := newFixture(t, Options{CacheEnabled: true}, courseRule(1))
	ctx := context.Background()

	_, err := f.router.Convert(ctx, "course/unknown")
	require.Error(t, err)
	_, err = f.router.Convert(ctx, "category/1")
	require.Error(t, err)
	assert.Zero(t, f.cache.Len())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "course/a", NormalizePath("  //Course/A "))
	assert.Equal(t, "https://x/y?id=1", NormalizeURL(" HTTPS://X/Y?ID=1 "))
}

// blockingTables holds every db lookup until release is closed.
type blockingTables struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingTables() *blockingTables {
	return &blockingTables{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingTables) Convert(ctx context.Context, value string, _ []string) (string, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return "42", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestConcurrentCallerSurvivesCancelledPeer(t *testing.T) {
	f := newFixture(t, Options{}, courseRule(1))
	blocking := newBlockingTables()
	f.router.strategies.Register(converter.StrategyDB, blocking)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.router.Convert(ctx, "course/intro-to-cs/syllabus")
		firstErr <- err
	}()
	<-blocking.started

	type result struct {
		url string
		err error
	}
	second := make(chan result, 1)
	go func() {
		u, err := f.router.Convert(context.Background(), "course/intro-to-cs/syllabus")
		second <- result{u, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(blocking.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, base+"/mod/index.php?id=42&path=syllabus", res.url)
}

func TestInvalidationDuringLookupIsNotCached(t *testing.T) {
	f := newFixture(t, Options{CacheEnabled: true}, courseRule(1))
	blocking := newBlockingTables()
	f.router.strategies.Register(converter.StrategyDB, blocking)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.router.Convert(ctx, "course/intro-to-cs/x")
		done <- err
	}()
	<-blocking.started

	// rule deleted while the lookup is still resolving
	f.source.set()
	_, err := f.router.InvalidateRule(ctx, 1)
	require.NoError(t, err)

	close(blocking.release)
	require.NoError(t, <-done)

	assert.Zero(t, f.cache.Len())
	_, err = f.router.Convert(ctx, "course/intro-to-cs/x")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestInvertToleratesTrailingQueryAndFragment(t *testing.T) {
	forum := newRule(1, 1, `^forum/(\w+)$`, "mod/${1}/index.php", "forum/${1}", `[{"group":1}]`, "")
	f := newFixture(t, Options{}, forum)
	ctx := context.Background()

	for _, u := range []string{
		base + "/mod/forum/index.php",
		base + "/mod/forum/index.php?id=3",
		base + "/mod/forum/index.php#top",
	} {
		nice, err := f.router.Invert(ctx, u)
		require.NoError(t, err, u)
		assert.Equal(t, base+"/forum/forum", nice, u)
	}
}

func TestReadablePlaceholderBeyondGroupsDisablesRule(t *testing.T) {
	huge := newRule(1, 1, `^c/(\d+)$`, "c.php?id=${1}", "c/${1}/${2000000000}", `[{"group":1}]`, "")
	f := newFixture(t, Options{}, huge)

	_, err := f.router.Invert(context.Background(), base+"/c.php?id=5")
	assert.ErrorIs(t, err, ErrNoMatch)
}
