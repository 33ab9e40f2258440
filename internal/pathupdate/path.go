package pathupdate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Key is a single path segment: a property name or an array index.
type Key struct {
	Name    string
	Index   int
	IsIndex bool
}

// Field returns a property-name key.
func Field(name string) Key { return Key{Name: name} }

// Index returns an array-index key.
func Index(i int) Key { return Key{Index: i, IsIndex: true} }

func (k Key) String() string {
	if k.IsIndex {
		return strconv.Itoa(k.Index)
	}
	return k.Name
}

// Path is an ordered sequence of keys from the document root to a target.
type Path []Key

// String renders the path in dotted form, indices in brackets:
// inspectionTypes[0].label
func (p Path) String() string {
	var b strings.Builder
	for i, k := range p {
		if k.IsIndex {
			b.WriteString("[")
			b.WriteString(strconv.Itoa(k.Index))
			b.WriteString("]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(k.Name)
	}
	return b.String()
}

// MarshalJSON encodes the path as a JSON array of strings and numbers.
func (p Path) MarshalJSON() ([]byte, error) {
	out := make([]any, len(p))
	for i, k := range p {
		if k.IsIndex {
			out[i] = k.Index
		} else {
			out[i] = k.Name
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either a JSON array (["fields", "name"]) or a dotted
// string ("inspectionTypes[0].name").
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	var (
		parsed Path
		err    error
	)
	switch v := raw.(type) {
	case string:
		parsed, err = ParsePath(v)
	case []any:
		parsed, err = PathFromJSON(v)
	default:
		return fmt.Errorf("%w: path must be a string or an array, got %s", ErrInvalidPath, string(data))
	}
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePath parses a dotted path. Bracketed segments and purely numeric
// dotted segments are array indices:
//
//	fields.name
//	inspectionTypes[0].label
//	inspectionTypes.0.label
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, ErrEmptyPath
	}

	var path Path
	for _, segment := range strings.Split(s, ".") {
		if segment == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, s)
		}

		name := segment
		var indices []int
		if open := strings.IndexByte(segment, '['); open >= 0 {
			name = segment[:open]
			rest := segment[open:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("%w: unexpected %q in %q", ErrInvalidPath, rest, s)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("%w: unterminated index in %q", ErrInvalidPath, s)
				}
				idx, err := parseIndex(rest[1:end])
				if err != nil {
					return nil, fmt.Errorf("%w: %v in %q", ErrInvalidPath, err, s)
				}
				indices = append(indices, idx)
				rest = rest[end+1:]
			}
		}

		switch {
		case name == "" && len(indices) == 0:
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, s)
		case name == "":
			// leading bracket addresses a root array: [0].name
		case isDigits(name):
			idx, err := parseIndex(name)
			if err != nil {
				return nil, fmt.Errorf("%w: %v in %q", ErrInvalidPath, err, s)
			}
			path = append(path, Index(idx))
		default:
			path = append(path, Field(name))
		}
		for _, idx := range indices {
			path = append(path, Index(idx))
		}
	}
	return path, nil
}

// PathFromJSON converts a decoded JSON array into a Path. Strings become
// field keys; numbers must be non-negative integers and become indices.
func PathFromJSON(segments []any) (Path, error) {
	if len(segments) == 0 {
		return nil, ErrEmptyPath
	}

	path := make(Path, 0, len(segments))
	for i, seg := range segments {
		switch v := seg.(type) {
		case string:
			path = append(path, Field(v))
		case float64:
			if v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
				return nil, fmt.Errorf("%w: segment %d: %v is not an array index", ErrInvalidPath, i, v)
			}
			path = append(path, Index(int(v)))
		case int:
			if v < 0 {
				return nil, fmt.Errorf("%w: segment %d: negative index %d", ErrInvalidPath, i, v)
			}
			path = append(path, Index(v))
		case json.Number:
			idx, err := parseIndex(v.String())
			if err != nil {
				return nil, fmt.Errorf("%w: segment %d: %v", ErrInvalidPath, i, err)
			}
			path = append(path, Index(idx))
		default:
			return nil, fmt.Errorf("%w: segment %d has unsupported type %T", ErrInvalidPath, i, seg)
		}
	}
	return path, nil
}

func parseIndex(s string) (int, error) {
	if !isDigits(s) {
		return 0, fmt.Errorf("%q is not an array index", s)
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not an array index", s)
	}
	return idx, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
