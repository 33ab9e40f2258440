// Package listing pages, filters and sorts list responses that the backend
// returns as bare JSON arrays.
package listing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Query is the parsed form of ?q=&filter[field]=&sort=&page=&pageSize=.
type Query struct {
	Search   string
	Filters  map[string]string
	SortBy   string
	Desc     bool
	Page     int
	PageSize int
}

// Page is the envelope returned in place of the bare array.
type Page struct {
	Items      []any `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int   `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ParseQuery reads listing parameters. Out of range page numbers and sizes
// are clamped; non-numeric ones are rejected.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{
		Search:   strings.TrimSpace(values.Get("q")),
		Filters:  map[string]string{},
		Page:     1,
		PageSize: DefaultPageSize,
	}

	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Query{}, fmt.Errorf("page must be an integer, got %q", raw)
		}
		if n > 1 {
			q.Page = n
		}
	}
	if raw := values.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Query{}, fmt.Errorf("pageSize must be an integer, got %q", raw)
		}
		switch {
		case n < 1:
			q.PageSize = DefaultPageSize
		case n > MaxPageSize:
			q.PageSize = MaxPageSize
		default:
			q.PageSize = n
		}
	}

	if sortBy := values.Get("sort"); sortBy != "" {
		q.Desc = strings.HasPrefix(sortBy, "-")
		q.SortBy = strings.TrimPrefix(sortBy, "-")
	}

	for key, vals := range values {
		if field, ok := filterField(key); ok && len(vals) > 0 {
			q.Filters[field] = vals[0]
		}
	}
	return q, nil
}

// IsParam reports whether key is consumed by the gateway rather than the
// backend.
func IsParam(key string) bool {
	switch key {
	case "q", "page", "pageSize", "sort":
		return true
	}
	_, ok := filterField(key)
	return ok
}

// StripParams returns values without the listing parameters.
func StripParams(values url.Values) url.Values {
	out := url.Values{}
	for k, v := range values {
		if !IsParam(k) {
			out[k] = v
		}
	}
	return out
}

func filterField(key string) (string, bool) {
	if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	field := key[len("filter[") : len(key)-1]
	return field, field != ""
}

// Apply filters, sorts and pages items. items is not modified.
func Apply(items []any, q Query) Page {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}

	fold := cases.Fold()
	needle := fold.String(q.Search)

	matched := make([]any, 0, len(items))
	for _, item := range items {
		if matches(item, needle, q.Filters, fold) {
			matched = append(matched, item)
		}
	}

	if q.SortBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := field(matched[i], q.SortBy), field(matched[j], q.SortBy)
			// missing values always sort last
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			if q.Desc {
				return less(b, a, fold)
			}
			return less(a, b, fold)
		})
	}

	total := len(matched)
	totalPages := total / q.PageSize
	if total%q.PageSize != 0 {
		totalPages++
	}

	// compare before multiplying so a huge page cannot overflow
	start := total
	if q.Page-1 <= total/q.PageSize {
		start = (q.Page - 1) * q.PageSize
	}
	end := start + min(q.PageSize, total-start)

	return Page{
		Items:      matched[start:end],
		Page:       q.Page,
		PageSize:   q.PageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// ApplyJSON applies q to a JSON array body. ok is false when body is not an
// array, in which case it should be relayed unchanged.
func ApplyJSON(body []byte, q Query) (out []byte, ok bool, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false, nil
	}

	var items []any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, false, fmt.Errorf("decode list body: %w", err)
	}

	out, err = json.Marshal(Apply(items, q))
	if err != nil {
		return nil, false, fmt.Errorf("encode page: %w", err)
	}
	return out, true, nil
}

func matches(item any, needle string, filters map[string]string, fold cases.Caser) bool {
	obj, isObj := item.(map[string]any)
	for name, want := range filters {
		if !isObj {
			return false
		}
		v, exists := obj[name]
		if !exists || scalarString(v) != want {
			return false
		}
	}

	if needle == "" {
		return true
	}
	if !isObj {
		s, ok := item.(string)
		return ok && strings.Contains(fold.String(s), needle)
	}
	for _, v := range obj {
		if s, ok := v.(string); ok && strings.Contains(fold.String(s), needle) {
			return true
		}
	}
	return false
}

// field resolves a dotted property path such as "customer.name".
func field(item any, path string) any {
	current := item
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[part]
	}
	return current
}

func less(a, b any, fold cases.Caser) bool {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return x < y
		}
	}
	return fold.String(scalarString(a)) < fold.String(scalarString(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
