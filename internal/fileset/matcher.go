package fileset

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// PatternError reports a pattern that does not compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e PatternError) Error() string {
	return fmt.Sprintf("invalid glob pattern %q: %v", e.Pattern, e.Err)
}

func (e PatternError) Unwrap() error { return e.Err }

// Matcher tests slash-separated relative paths against glob patterns. `*`
// stops at a separator, `**` crosses any number of directories including
// none, and `{a,b}` matches either alternative.
type Matcher struct {
	// rules[i] holds the compiled forms of the i-th pattern.
	rules [][]glob.Glob
}

// CompileMatcher compiles patterns. An empty list matches nothing.
func CompileMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{rules: make([][]glob.Glob, 0, len(patterns))}
	for _, raw := range patterns {
		p := filepath.ToSlash(strings.TrimSpace(raw))
		forms := zeroDirForms(p)
		rule := make([]glob.Glob, len(forms))
		for i, form := range forms {
			g, err := glob.Compile(form, '/')
			if err != nil {
				return nil, PatternError{Pattern: p, Err: err}
			}
			rule[i] = g
		}
		m.rules = append(m.rules, rule)
	}
	return m, nil
}

// zeroDirForms returns p plus every variant with one or more `**/`
// segments removed, since gobwas/glob requires `**` to match at least one
// character.
func zeroDirForms(p string) []string {
	forms := []string{p}
	for i := 0; i < len(forms); i++ {
		at := strings.Index(forms[i], "**/")
		if at < 0 {
			continue
		}
		shorter := forms[i][:at] + forms[i][at+3:]
		if !slices.Contains(forms, shorter) {
			forms = append(forms, shorter)
		}
	}
	return forms
}

// Match reports whether name matches any pattern. A nil Matcher matches
// nothing.
func (m *Matcher) Match(name string) bool {
	return len(m.matching(name)) > 0
}

// matching returns the indexes of the patterns name matches.
func (m *Matcher) matching(name string) []int {
	if m == nil {
		return nil
	}
	name = filepath.ToSlash(name)
	var hits []int
	for i, rule := range m.rules {
		if slices.ContainsFunc(rule, func(g glob.Glob) bool { return g.Match(name) }) {
			hits = append(hits, i)
		}
	}
	return hits
}
