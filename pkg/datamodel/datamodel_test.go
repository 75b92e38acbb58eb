package datamodel

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

// ===== POINTER =====

func TestParsePointer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Pointer
		wantErr bool
	}{
		{name: "root", input: "", want: Pointer{}},
		{name: "single", input: "/a", want: Pointer{"a"}},
		{name: "nested", input: "/a/b/0", want: Pointer{"a", "b", "0"}},
		{name: "empty token", input: "/", want: Pointer{""}},
		{name: "escaped slash", input: "/a~1b", want: Pointer{"a/b"}},
		{name: "escaped tilde", input: "/m~0n", want: Pointer{"m~n"}},
		{name: "escape order", input: "/~01", want: Pointer{"~1"}},
		{name: "relative", input: "a/b", wantErr: true},
		{name: "bad escape", input: "/a~2", wantErr: true},
		{name: "dangling tilde", input: "/a~", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePointer(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPointer))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestPointer_Append(t *testing.T) {
	base := Pointer{"items"}
	a := base.Append("0", "name")
	b := base.Append("1")

	assert.Equal(t, "/items/0/name", a.String())
	assert.Equal(t, "/items/1", b.String())
	assert.Equal(t, "/items", base.String())
	assert.Equal(t, "/items/0", a.Parent().String())
	assert.Equal(t, "name", a.Last())
}

// ===== APPLY =====

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		tree  string
		path  string
		value any
		want  string
	}{
		{
			name:  "set top level key",
			tree:  `{}`,
			path:  "/name",
			value: "Ada",
			want:  `{"name":"Ada"}`,
		},
		{
			name:  "creates intermediates",
			tree:  `{}`,
			path:  "/user/profile/name",
			value: "Ada",
			want:  `{"user":{"profile":{"name":"Ada"}}}`,
		},
		{
			name:  "numeric token on object is a key",
			tree:  `{"items":{}}`,
			path:  "/items/0",
			value: "x",
			want:  `{"items":{"0":"x"}}`,
		},
		{
			name:  "numeric token on missing creates object",
			tree:  `{}`,
			path:  "/items/0",
			value: "x",
			want:  `{"items":{"0":"x"}}`,
		},
		{
			name:  "numeric token on array is an index",
			tree:  `{"items":["a","b"]}`,
			path:  "/items/1",
			value: "z",
			want:  `{"items":["a","z"]}`,
		},
		{
			name:  "index len appends",
			tree:  `{"items":["a"]}`,
			path:  "/items/1",
			value: "b",
			want:  `{"items":["a","b"]}`,
		},
		{
			name:  "dash appends",
			tree:  `{"items":["a"]}`,
			path:  "/items/-",
			value: "b",
			want:  `{"items":["a","b"]}`,
		},
		{
			name:  "replace root",
			tree:  `{"a":1}`,
			path:  "",
			value: map[string]any{"b": 2.0},
			want:  `{"b":2}`,
		},
		{
			name:  "null is a value",
			tree:  `{"a":1}`,
			path:  "/a",
			value: nil,
			want:  `{"a":null}`,
		},
		{
			name:  "object replaces subtree",
			tree:  `{"user":{"name":"Ada","age":36}}`,
			path:  "/user",
			value: map[string]any{"name": "Grace"},
			want:  `{"user":{"name":"Grace"}}`,
		},
		{
			name:  "delete key",
			tree:  `{"user":{"name":"Ada","temp":1}}`,
			path:  "/user/temp",
			value: Delete,
			want:  `{"user":{"name":"Ada"}}`,
		},
		{
			name:  "delete array element shifts",
			tree:  `{"items":["a","b","c"]}`,
			path:  "/items/1",
			value: Delete,
			want:  `{"items":["a","c"]}`,
		},
		{
			name:  "delete missing is a no-op",
			tree:  `{"a":1}`,
			path:  "/b/c",
			value: Delete,
			want:  `{"a":1}`,
		},
		{
			name:  "delete past array end is a no-op",
			tree:  `{"items":["a"]}`,
			path:  "/items/5",
			value: Delete,
			want:  `{"items":["a"]}`,
		},
		{
			name:  "delete does not create intermediates",
			tree:  `{}`,
			path:  "/x/y",
			value: Delete,
			want:  `{}`,
		},
		{
			name:  "escaped key",
			tree:  `{}`,
			path:  "/a~1b",
			value: true,
			want:  `{"a/b":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(decode(t, tt.tree), tt.path, tt.value)
			require.NoError(t, err)
			assert.Equal(t, decode(t, tt.want), got)
		})
	}
}

func TestApply_DeleteRoot(t *testing.T) {
	got, err := Apply(map[string]any{"a": 1.0}, "", Delete)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApply_Errors(t *testing.T) {
	tests := []struct {
		name string
		tree string
		path string
		want error
	}{
		{name: "through primitive", tree: `{"a":"text"}`, path: "/a/b", want: ErrNotContainer},
		{name: "non index on array", tree: `{"a":[1]}`, path: "/a/x", want: ErrNotContainer},
		{name: "index past end", tree: `{"a":[1]}`, path: "/a/3", want: ErrIndexOutOfRange},
		{name: "invalid pointer", tree: `{}`, path: "a", want: ErrInvalidPointer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(decode(t, tt.tree), tt.path, 1.0)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApply_CopiesValue(t *testing.T) {
	value := map[string]any{"name": "Ada"}
	tree, err := Apply(map[string]any{}, "/user", value)
	require.NoError(t, err)

	value["name"] = "changed"
	got, ok := Get(tree, "/user/name")
	require.True(t, ok)
	assert.Equal(t, "Ada", got)
}

func TestGet(t *testing.T) {
	tree := decode(t, `{"user":{"name":"Ada","tags":["x","y"]},"n":null}`)

	tests := []struct {
		path   string
		want   any
		wantOK bool
	}{
		{path: "/user/name", want: "Ada", wantOK: true},
		{path: "/user/tags/1", want: "y", wantOK: true},
		{path: "/n", want: nil, wantOK: true},
		{path: "/user/tags/2", wantOK: false},
		{path: "/user/tags/-", wantOK: false},
		{path: "/missing", wantOK: false},
		{path: "/user/name/x", wantOK: false},
		{path: "bad", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Get(tree, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// ===== MODEL =====

func TestModel_ApplyPatches_Independent(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.Apply("/title", "text"))

	err := m.ApplyPatches([]Patch{
		{Path: "/a", Value: 1.0},
		{Path: "/title/inner", Value: "fails"},
		{Path: "/b", Value: 2.0},
		{Path: "/a", Value: Delete},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotContainer)

	_, hasA := m.Get("/a")
	assert.False(t, hasA)

	b, ok := m.Get("/b")
	require.True(t, ok)
	assert.Equal(t, 2.0, b)

	title, _ := m.Get("/title")
	assert.Equal(t, "text", title)
}

func TestModel_ApplyPatches_Order(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.ApplyPatches([]Patch{
		{Path: "/x", Value: "first"},
		{Path: "/x", Value: "second"},
	}))

	x, _ := m.Get("/x")
	assert.Equal(t, "second", x)
}

func TestModel_SnapshotIsolation(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.Apply("/user/name", "Ada"))

	snap := m.Snapshot().(map[string]any)
	snap["user"].(map[string]any)["name"] = "mutated"

	name, _ := m.Get("/user/name")
	assert.Equal(t, "Ada", name)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":{"name":"Ada"}}`, string(data))
}

// ===== PROPERTIES =====

func TestDeleteMissingPathIsNoop(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("deleting an absent key leaves the tree unchanged", prop.ForAll(
		func(keys []string, values []string, missing string) bool {
			tree := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				tree[keys[i]] = map[string]any{"v": values[i]}
			}
			if _, exists := tree[missing]; exists {
				return true
			}
			before := Clone(tree)

			path := Pointer{missing, "child"}.String()
			after, err := Apply(tree, path, Delete)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(before, after)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
		gen.Identifier(),
	))

	properties.Property("set then get returns the value", prop.ForAll(
		func(key string, value string) bool {
			path := Pointer{"root", key}.String()
			tree, err := Apply(map[string]any{}, path, value)
			if err != nil {
				return false
			}
			got, ok := Get(tree, path)
			return ok && got == value
		},
		gen.AnyString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
