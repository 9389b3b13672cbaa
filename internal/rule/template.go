package rule

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\$\{(\d+)\}`)

// Placeholders returns the unique ${n} numbers found in s in ascending order.
func Placeholders(s string) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Substitute replaces every ${n} in s with value.
func Substitute(s string, n int, value string) string {
	return strings.ReplaceAll(s, "${"+strconv.Itoa(n)+"}", value)
}

// JoinBase joins the site base URL with a site-relative path.
func JoinBase(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// InversePattern derives the matcher for internal URLs built from template.
// Placeholders become lazy groups and literals (base URL included) are quoted.
// The pattern is anchored at the start only, so links to other sites never
// match while trailing query strings and fragments are tolerated. A
// placeholder that ends the template is greedy and takes the rest of the url.
//
//	/course/${2}.php?id=${1}  ->  (?i)^https://site/course/(.*?)\.php\?id=(.*)
func InversePattern(baseURL, template string) (*regexp.Regexp, error) {
	full := JoinBase(baseURL, template)

	var b strings.Builder
	b.WriteString("(?i)^")
	last := 0
	for _, loc := range placeholderRe.FindAllStringIndex(full, -1) {
		b.WriteString(regexp.QuoteMeta(full[last:loc[0]]))
		if loc[1] == len(full) {
			b.WriteString("(.*)")
		} else {
			b.WriteString("(.*?)")
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(full[last:]))

	return regexp.Compile(b.String())
}
