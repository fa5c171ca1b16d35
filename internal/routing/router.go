// Package routing implements the pattern router described in spec.md
// §4.2, grounded on original_source/vase/routing.py's RequestSpec /
// PatternRequestMatcher.
package routing

import (
	"fmt"
	"regexp"
	"strings"
)

// paramRe matches a `{name}` or `{name:regex}` placeholder. The regex
// half may itself contain any character except braces, mirroring
// original_source/vase/routing.py's `{((\w+:)?[^{}]+)}`.
var paramRe = regexp.MustCompile(`\{(\w+)(?::([^{}]+))?\}`)

// compile turns a route pattern into an anchored regexp, substituting
// `{name}` with `(?P<name>[^/]+)` and `{name:re}` with `(?P<name>re)`.
func compile(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteByte('^')
	last := 0
	for _, loc := range paramRe.FindAllStringSubmatchIndex(pattern, -1) {
		sb.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		name := pattern[loc[2]:loc[3]]
		re := "[^/]+"
		if loc[4] != -1 {
			re = pattern[loc[4]:loc[5]]
		}
		fmt.Fprintf(&sb, "(?P<%s>%s)", name, re)
		last = loc[1]
	}
	sb.WriteString(regexp.QuoteMeta(pattern[last:]))
	sb.WriteByte('$')
	return regexp.Compile(sb.String())
}

// Route is one registered pattern, its allowed methods ("*" for any),
// and an opaque handler value the caller type-asserts back.
type Route struct {
	Pattern string
	Methods []string
	Handler interface{}

	re *regexp.Regexp
}

func (rt *Route) allowsMethod(method string) bool {
	for _, m := range rt.Methods {
		if m == "*" || strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// Router dispatches by scanning routes in registration order and
// selecting the first pattern+method match (spec.md §4.2: "no
// longest-prefix logic").
type Router struct {
	routes []*Route
}

// New returns an empty router.
func New() *Router { return &Router{} }

// Handle registers pattern for methods ("*" matches any method),
// associating it with an opaque handler value. Panics if the pattern
// fails to compile — a programming error caught at startup.
func (r *Router) Handle(pattern string, methods []string, handler interface{}) *Route {
	re, err := compile(pattern)
	if err != nil {
		panic(fmt.Sprintf("routing: invalid pattern %q: %v", pattern, err))
	}
	rt := &Route{Pattern: pattern, Methods: methods, Handler: handler, re: re}
	r.routes = append(r.routes, rt)
	return rt
}

// NotFoundError means no registered route matched both the path and
// the method; spec.md §4.2 defines a single first-match pass over
// (pattern, methods) pairs together, with no separate 405 case.
type NotFoundError struct{ Path string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("no route for %s", e.Path) }

// Match scans routes in registration order and returns the first one
// whose pattern matches path and whose method set allows method.
func (r *Router) Match(method, path string) (*Route, map[string]string, error) {
	for _, rt := range r.routes {
		if !rt.allowsMethod(method) {
			continue
		}
		m := rt.re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		names := rt.re.SubexpNames()
		params := make(map[string]string, len(names))
		for i, name := range names {
			if i == 0 || name == "" {
				continue
			}
			params[name] = m[i]
		}
		return rt, params, nil
	}
	return nil, nil, &NotFoundError{Path: path}
}
