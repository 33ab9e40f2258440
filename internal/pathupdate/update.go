// Package pathupdate applies copy-on-write updates to decoded JSON documents.
//
// Documents are trees of map[string]any, []any and scalar values as produced
// by encoding/json. Update never mutates its input: the document is deep
// copied, the path is walked on the copy and the final key is assigned there.
package pathupdate

import (
	"errors"
	"fmt"
	"strconv"
)

// Document is a decoded JSON object.
type Document = map[string]any

var (
	ErrEmptyPath    = errors.New("pathupdate: empty path")
	ErrPathNotFound = errors.New("pathupdate: path not found")
	ErrInvalidPath  = errors.New("pathupdate: invalid path")
	ErrShapeChange  = errors.New("pathupdate: update would change document shape")
)

// PathError records the failing operation and the segment where it failed.
type PathError struct {
	Op      string
	Path    Path
	Segment int
	Err     error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s at %q: %v", e.Op, e.Path, e.Path[:e.Segment+1], e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// DeepCopy clones decoded JSON containers (map[string]any and []any)
// recursively. Any other value, including typed maps and slices such as
// []string, is returned as-is and stays shared with v.
func DeepCopy(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for k, val := range typed {
			clone[k] = DeepCopy(val)
		}
		return clone
	case []any:
		if typed == nil {
			return []any(nil)
		}
		clone := make([]any, len(typed))
		for i, val := range typed {
			clone[i] = DeepCopy(val)
		}
		return clone
	default:
		return typed
	}
}

// Get resolves path against doc.
func Get(doc any, path Path) (any, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}
	current := doc
	for i, key := range path {
		next, err := child(current, key)
		if err != nil {
			return nil, &PathError{Op: "get", Path: path, Segment: i, Err: err}
		}
		current = next
	}
	return current, nil
}

// Update returns a deep copy of doc with value assigned at path. doc itself is
// left untouched and the result shares no maps or slices with doc or value.
//
// Every segment except the last must resolve to an existing container. The
// last segment may name a new property of an object; an array index must be
// within range.
func Update(doc any, path Path, value any) (any, error) {
	return update("update", doc, path, value, nil)
}

// UpdateLeaf is Update restricted to replacing existing scalar values. The
// final key must already exist, and neither the old nor the new value may be
// an object or array.
func UpdateLeaf(doc any, path Path, value any) (any, error) {
	return update("update-leaf", doc, path, value, func(old any, exists bool) error {
		if !exists {
			return ErrPathNotFound
		}
		if isContainer(old) || isContainer(value) {
			return ErrShapeChange
		}
		return nil
	})
}

// UpdateDocument is Update for a root object.
func UpdateDocument(doc Document, path Path, value any) (Document, error) {
	out, err := Update(doc, path, value)
	if err != nil {
		return nil, err
	}
	return out.(Document), nil
}

func update(op string, doc any, path Path, value any, check func(old any, exists bool) error) (any, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}

	root := DeepCopy(doc)
	parent := root
	last := len(path) - 1
	for i, key := range path[:last] {
		next, err := child(parent, key)
		if err != nil {
			return nil, &PathError{Op: op, Path: path, Segment: i, Err: err}
		}
		parent = next
	}

	key := path[last]
	if check != nil {
		old, err := child(parent, key)
		exists := err == nil
		if err != nil && !errors.Is(err, ErrPathNotFound) {
			return nil, &PathError{Op: op, Path: path, Segment: last, Err: err}
		}
		if err := check(old, exists); err != nil {
			return nil, &PathError{Op: op, Path: path, Segment: last, Err: err}
		}
	}

	if err := assign(parent, key, DeepCopy(value)); err != nil {
		return nil, &PathError{Op: op, Path: path, Segment: last, Err: err}
	}
	return root, nil
}

// child resolves one segment. An index key applied to an object looks up the
// decimal property name, matching how JSON objects are addressed by number.
func child(container any, key Key) (any, error) {
	switch node := container.(type) {
	case map[string]any:
		name := key.Name
		if key.IsIndex {
			name = strconv.Itoa(key.Index)
		}
		v, ok := node[name]
		if !ok {
			return nil, ErrPathNotFound
		}
		return v, nil
	case []any:
		if !key.IsIndex {
			return nil, fmt.Errorf("%w: property %q on an array", ErrInvalidPath, key.Name)
		}
		if key.Index < 0 || key.Index >= len(node) {
			return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrPathNotFound, key.Index, len(node))
		}
		return node[key.Index], nil
	case nil:
		return nil, ErrPathNotFound
	default:
		return nil, fmt.Errorf("%w: cannot descend into %T", ErrInvalidPath, container)
	}
}

func assign(container any, key Key, value any) error {
	switch node := container.(type) {
	case map[string]any:
		name := key.Name
		if key.IsIndex {
			name = strconv.Itoa(key.Index)
		}
		node[name] = value
		return nil
	case []any:
		if !key.IsIndex {
			return fmt.Errorf("%w: property %q on an array", ErrInvalidPath, key.Name)
		}
		if key.Index < 0 || key.Index >= len(node) {
			return fmt.Errorf("%w: index %d out of range [0,%d)", ErrPathNotFound, key.Index, len(node))
		}
		node[key.Index] = value
		return nil
	case nil:
		return ErrPathNotFound
	default:
		return fmt.Errorf("%w: cannot assign into %T", ErrInvalidPath, container)
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}
