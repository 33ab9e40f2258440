package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Route maps one gateway endpoint onto one backend endpoint.
type Route struct {
	// Name identifies the route in config overrides, logs and metrics.
	Name string
	// Method is the HTTP method matched and forwarded.
	Method string
	// Pattern is the gateway path in net/http pattern syntax,
	// e.g. /api/mission-orders/{id}.
	Pattern string
	// Upstream is the backend path using the same wildcards,
	// e.g. /mission-orders/{id}.
	Upstream string
	// Paginate applies listing parameters when the backend answers with a
	// bare JSON array.
	Paginate bool
}

// MuxPattern returns the pattern registered with http.ServeMux.
func (r Route) MuxPattern() string {
	return r.Method + " " + r.Pattern
}

// Validate checks that every upstream wildcard is bound by the pattern.
func (r Route) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("route %s: name is required", r.MuxPattern())
	}
	if r.Method == "" || r.Pattern == "" || r.Upstream == "" {
		return fmt.Errorf("route %s: method, pattern and upstream are required", r.Name)
	}
	bound := map[string]bool{}
	for _, name := range wildcards(r.Pattern) {
		bound[name] = true
	}
	for _, name := range wildcards(r.Upstream) {
		if !bound[name] {
			return fmt.Errorf("route %s: upstream wildcard {%s} is not in pattern %s", r.Name, name, r.Pattern)
		}
	}
	return nil
}

// UpstreamPath expands the upstream template with the request's path values.
// Each value is escaped; a trailing {name...} wildcard keeps its slashes.
func (r Route) UpstreamPath(req *http.Request) string {
	segments := strings.Split(r.Upstream, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
		if rest, ok := strings.CutSuffix(name, "..."); ok {
			parts := strings.Split(req.PathValue(rest), "/")
			for j, p := range parts {
				parts[j] = url.PathEscape(p)
			}
			segments[i] = strings.Join(parts, "/")
			continue
		}
		segments[i] = url.PathEscape(req.PathValue(name))
	}
	return strings.Join(segments, "/")
}

func wildcards(pattern string) []string {
	var names []string
	for _, seg := range strings.Split(pattern, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
			name = strings.TrimSuffix(name, "...")
			if name != "$" {
				names = append(names, name)
			}
		}
	}
	return names
}
