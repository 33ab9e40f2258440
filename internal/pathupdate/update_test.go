package pathupdate

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

const inspectionDoc = `{
	"fields": {"name": "Boiler B-12", "site": "Tabriz", "pressure": 12.5},
	"inspectionTypes": [
		{"label": "visual", "done": false},
		{"label": "ultrasonic", "done": true}
	],
	"notes": null
}`

// ==========================
// Update
// ==========================

func TestUpdate_Example(t *testing.T) {
	doc := map[string]any{"fields": map[string]any{"name": "a"}}

	out, err := Update(doc, Path{Field("fields"), Field("name")}, "b")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"fields": map[string]any{"name": "b"}}, out)
	assert.Equal(t, map[string]any{"fields": map[string]any{"name": "a"}}, doc)
}

func TestUpdate_Properties(t *testing.T) {
	tests := []struct {
		name  string
		path  Path
		value any
	}{
		{name: "nested field", path: Path{Field("fields"), Field("name")}, value: "Boiler B-13"},
		{name: "array element field", path: Path{Field("inspectionTypes"), Index(1), Field("done")}, value: false},
		{name: "replace array element", path: Path{Field("inspectionTypes"), Index(0)}, value: map[string]any{"label": "thermal"}},
		{name: "top level null", path: Path{Field("notes")}, value: "checked"},
		{name: "new property on object", path: Path{Field("fields"), Field("inspector")}, value: "R. Karimi"},
		{name: "container value", path: Path{Field("fields")}, value: map[string]any{"name": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := decode(t, inspectionDoc)
			snapshot := DeepCopy(doc)

			out, err := Update(doc, tt.path, tt.value)
			require.NoError(t, err)

			// input untouched
			if diff := cmp.Diff(snapshot, doc); diff != "" {
				t.Fatalf("input mutated (-want +got):\n%s", diff)
			}

			// the value is readable at the path
			got, err := Get(out, tt.path)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.value, got); diff != "" {
				t.Errorf("Get after Update (-want +got):\n%s", diff)
			}

			// idempotence
			again, err := Update(out, tt.path, tt.value)
			require.NoError(t, err)
			if diff := cmp.Diff(out, again); diff != "" {
				t.Errorf("second Update differs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestUpdate_SiblingsUnchanged(t *testing.T) {
	doc := decode(t, inspectionDoc)

	out, err := Update(doc, Path{Field("inspectionTypes"), Index(0), Field("done")}, true)
	require.NoError(t, err)

	want := decode(t, inspectionDoc)
	want.(map[string]any)["inspectionTypes"].([]any)[0].(map[string]any)["done"] = true
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("unexpected document (-want +got):\n%s", diff)
	}
}

func TestUpdate_ResultSharesNothing(t *testing.T) {
	doc := decode(t, inspectionDoc)
	value := map[string]any{"label": "radiography", "tags": []any{"x"}}

	out, err := Update(doc, Path{Field("inspectionTypes"), Index(1)}, value)
	require.NoError(t, err)

	// mutating the result must not leak into the input or the value
	outTypes := out.(map[string]any)["inspectionTypes"].([]any)
	outTypes[0].(map[string]any)["label"] = "changed"
	outTypes[1].(map[string]any)["tags"].([]any)[0] = "y"
	out.(map[string]any)["fields"].(map[string]any)["site"] = "changed"

	assert.Equal(t, "visual", doc.(map[string]any)["inspectionTypes"].([]any)[0].(map[string]any)["label"])
	assert.Equal(t, "Tabriz", doc.(map[string]any)["fields"].(map[string]any)["site"])
	assert.Equal(t, "x", value["tags"].([]any)[0])
}

func TestUpdate_RootArray(t *testing.T) {
	doc := decode(t, `[{"id": 1}, {"id": 2}]`)

	out, err := Update(doc, Path{Index(1), Field("id")}, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, out.([]any)[1].(map[string]any)["id"])
	assert.Equal(t, float64(2), doc.([]any)[1].(map[string]any)["id"])
}

func TestUpdate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    Path
		wantErr error
		segment int
	}{
		{name: "empty path", path: Path{}, wantErr: ErrEmptyPath, segment: -1},
		{name: "missing intermediate", path: Path{Field("meta"), Field("x")}, wantErr: ErrPathNotFound, segment: 0},
		{name: "index out of range", path: Path{Field("inspectionTypes"), Index(5), Field("label")}, wantErr: ErrPathNotFound, segment: 1},
		{name: "final index out of range", path: Path{Field("inspectionTypes"), Index(2)}, wantErr: ErrPathNotFound, segment: 1},
		{name: "field on array", path: Path{Field("inspectionTypes"), Field("label")}, wantErr: ErrInvalidPath, segment: 1},
		{name: "descend into scalar", path: Path{Field("fields"), Field("name"), Field("first")}, wantErr: ErrInvalidPath, segment: 2},
		{name: "descend into null", path: Path{Field("notes"), Field("text")}, wantErr: ErrPathNotFound, segment: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := decode(t, inspectionDoc)
			snapshot := DeepCopy(doc)

			out, err := Update(doc, tt.path, "v")
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, snapshot, doc)

			var pathErr *PathError
			if tt.segment < 0 {
				assert.False(t, errors.As(err, &pathErr))
				return
			}
			require.ErrorAs(t, err, &pathErr)
			assert.Equal(t, tt.segment, pathErr.Segment)
			assert.Equal(t, "update", pathErr.Op)
		})
	}
}

func TestUpdate_IndexKeyOnObject(t *testing.T) {
	doc := map[string]any{"rows": map[string]any{"0": "a"}}

	out, err := Update(doc, Path{Field("rows"), Index(0)}, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", out.(map[string]any)["rows"].(map[string]any)["0"])
}

func TestUpdateDocument(t *testing.T) {
	doc := Document{"fields": map[string]any{"name": "a"}}

	out, err := UpdateDocument(doc, Path{Field("fields"), Field("name")}, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", out["fields"].(map[string]any)["name"])
	assert.Equal(t, "a", doc["fields"].(map[string]any)["name"])

	_, err = UpdateDocument(doc, Path{Field("missing"), Field("name")}, "b")
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestUpdate_ConcurrentOnSharedInput(t *testing.T) {
	doc := decode(t, inspectionDoc)
	snapshot := DeepCopy(doc)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := Update(doc, Path{Field("fields"), Field("pressure")}, float64(i))
			assert.NoError(t, err)
			got, _ := Get(out, Path{Field("fields"), Field("pressure")})
			assert.Equal(t, float64(i), got)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, snapshot, doc)
}

// ==========================
// UpdateLeaf
// ==========================

func TestUpdateLeaf(t *testing.T) {
	tests := []struct {
		name    string
		path    Path
		value   any
		wantErr error
	}{
		{name: "replace string", path: Path{Field("fields"), Field("name")}, value: "B-14"},
		{name: "replace bool in array", path: Path{Field("inspectionTypes"), Index(0), Field("done")}, value: true},
		{name: "fill null", path: Path{Field("notes")}, value: "ok"},
		{name: "scalar type change", path: Path{Field("fields"), Field("pressure")}, value: "12.5 bar"},
		{name: "new key rejected", path: Path{Field("fields"), Field("inspector")}, value: "x", wantErr: ErrPathNotFound},
		{name: "replace object rejected", path: Path{Field("fields")}, value: "flat", wantErr: ErrShapeChange},
		{name: "replace array element object rejected", path: Path{Field("inspectionTypes"), Index(0)}, value: "visual", wantErr: ErrShapeChange},
		{name: "container value rejected", path: Path{Field("fields"), Field("name")}, value: map[string]any{"first": "B"}, wantErr: ErrShapeChange},
		{name: "field on array rejected", path: Path{Field("inspectionTypes"), Field("x")}, value: 1, wantErr: ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := decode(t, inspectionDoc)
			snapshot := DeepCopy(doc)

			out, err := UpdateLeaf(doc, tt.path, tt.value)
			assert.Equal(t, snapshot, doc)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			got, err := Get(out, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

// ==========================
// Get / DeepCopy
// ==========================

func TestGet(t *testing.T) {
	doc := decode(t, inspectionDoc)

	v, err := Get(doc, Path{Field("inspectionTypes"), Index(1), Field("label")})
	require.NoError(t, err)
	assert.Equal(t, "ultrasonic", v)

	v, err = Get(doc, Path{Field("notes")})
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Get(doc, nil)
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = Get(doc, Path{Field("fields"), Field("missing")})
	assert.ErrorIs(t, err, ErrPathNotFound)
	assert.Contains(t, err.Error(), `get fields.missing`)
}

func TestDeepCopy(t *testing.T) {
	doc := decode(t, inspectionDoc)
	clone := DeepCopy(doc)

	if diff := cmp.Diff(doc, clone); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	clone.(map[string]any)["inspectionTypes"].([]any)[0] = "replaced"
	assert.NotEqual(t, doc, clone)

	assert.Equal(t, 42, DeepCopy(42))
	assert.Equal(t, "s", DeepCopy("s"))
	assert.Nil(t, DeepCopy(nil))

	// typed containers are not decoded JSON and are shared
	tags := []string{"boiler"}
	copied := DeepCopy(map[string]any{"tags": tags}).(map[string]any)
	copied["tags"].([]string)[0] = "crane"
	assert.Equal(t, "crane", tags[0])
}
