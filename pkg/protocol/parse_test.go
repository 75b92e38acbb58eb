package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/a2ui/pkg/datamodel"
)

// ===== ERRORS =====

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "malformed json", raw: `{"surfaceUpdate":`, want: ErrJSONDecode},
		{name: "not an object", raw: `[1,2]`, want: ErrJSONDecode},
		{name: "null", raw: `null`, want: ErrJSONDecode},
		{name: "unknown key", raw: `{"hello":{}}`, want: ErrUnknownMessageType},
		{name: "empty object", raw: `{}`, want: ErrUnknownMessageType},
		{name: "two keys", raw: `{"surfaceUpdate":{},"deleteSurface":{}}`, want: ErrMultipleEnvelopeKeys},
		{name: "mixed versions", raw: `{"surfaceUpdate":{},"createSurface":{}}`, want: ErrMultipleEnvelopeKeys},
		{name: "body not object", raw: `{"deleteSurface":"main"}`, want: ErrParse},
		{name: "missing surface id", raw: `{"deleteSurface":{}}`, want: ErrParse},
		{
			name: "v0.8 component with two type keys",
			raw:  `{"surfaceUpdate":{"surfaceId":"s","components":[{"id":"a","component":{"Text":{},"Row":{}}}]}}`,
			want: ErrParse,
		},
		{
			name: "v0.8 component with no type key",
			raw:  `{"surfaceUpdate":{"surfaceId":"s","components":[{"id":"a","component":{}}]}}`,
			want: ErrParse,
		},
		{
			name: "v0.8 component without id",
			raw:  `{"surfaceUpdate":{"surfaceId":"s","components":[{"component":{"Text":{}}}]}}`,
			want: ErrParse,
		},
		{
			name: "v0.8 begin rendering without root",
			raw:  `{"beginRendering":{"surfaceId":"s"}}`,
			want: ErrParse,
		},
		{
			name: "v0.8 contents entry with two values",
			raw:  `{"dataModelUpdate":{"surfaceId":"s","contents":[{"key":"a","valueString":"x","valueNumber":1}]}}`,
			want: ErrParse,
		},
		{
			name: "v0.9 create surface without catalog",
			raw:  `{"createSurface":{"surfaceId":"s"}}`,
			want: ErrParse,
		},
		{
			name: "v0.9 component type is not a string",
			raw:  `{"updateComponents":{"surfaceId":"s","components":[{"id":"a","component":{"Text":{}}}]}}`,
			want: ErrParse,
		},
		{
			name: "weight not a number",
			raw:  `{"updateComponents":{"surfaceId":"s","components":[{"id":"a","component":"Text","weight":"x"}]}}`,
			want: ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.want, perr.Kind)
		})
	}
}

// ===== v0.8 =====

func TestParse_V08SurfaceUpdate(t *testing.T) {
	raw := `{"surfaceUpdate":{"surfaceId":"main","components":[{"id":"root","component":{"Text":{"text":{"literalString":"Hi"}}}}]}}`

	env, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, env.Validate())

	assert.Equal(t, KindSurfaceUpdate, env.Kind)
	assert.Equal(t, V08, env.Version)
	assert.Equal(t, "main", env.SurfaceID())
	require.Len(t, env.SurfaceUpdate.Components, 1)

	c := env.SurfaceUpdate.Components[0]
	assert.Equal(t, "root", c.ID)
	assert.Equal(t, "Text", c.Type)
	assert.Equal(t, map[string]any{"text": "Hi"}, c.Props)
	assert.Nil(t, c.Weight)
}

func TestParse_V08PropAdaptation(t *testing.T) {
	raw := `{"surfaceUpdate":{"surfaceId":"s","components":[
		{"id":"col","weight":2,"component":{"Column":{"children":{"explicitList":["a","b"]},"alignment":"center"}}},
		{"id":"list","component":{"List":{"children":{"template":{"dataBinding":"/items","componentId":"row"}}}}},
		{"id":"a","component":{"Text":{"text":{"path":"/title"}}}},
		{"id":"b","component":{"CheckBox":{"label":{"literalString":"ok"},"value":{"literalBoolean":true}}}},
		{"id":"c","component":{"Slider":{"value":{"literalNumber":5},"minValue":0}}},
		{"id":"d","component":{"TextField":{"text":{"path":"/name","literalString":"initial"}}}},
		{"id":"e","component":{"Button":{"child":"a","action":{"name":"go","context":[{"key":"who","value":{"path":"/name"}},{"key":"n","value":{"literalNumber":1}}]}}}}
	]}}`

	env, err := Parse([]byte(raw))
	require.NoError(t, err)
	byID := map[string]Component{}
	for _, c := range env.SurfaceUpdate.Components {
		byID[c.ID] = c
	}

	col := byID["col"]
	require.NotNil(t, col.Weight)
	assert.Equal(t, 2.0, *col.Weight)
	assert.Equal(t, []any{"a", "b"}, col.Props["children"])
	assert.Equal(t, "center", col.Props["alignment"])

	assert.Equal(t, map[string]any{"componentId": "row", "path": "/items"}, byID["list"].Props["children"])
	assert.Equal(t, map[string]any{"path": "/title"}, byID["a"].Props["text"])
	assert.Equal(t, "ok", byID["b"].Props["label"])
	assert.Equal(t, true, byID["b"].Props["value"])
	assert.Equal(t, 5.0, byID["c"].Props["value"])
	assert.Equal(t, map[string]any{"path": "/name"}, byID["d"].Props["text"])

	action := byID["e"].Props["action"].(map[string]any)
	assert.Equal(t, "go", action["name"])
	assert.Equal(t, map[string]any{
		"who": map[string]any{"path": "/name"},
		"n":   1.0,
	}, action["context"])
}

func TestParse_V08DataModelUpdate(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantPath string
		want     any
	}{
		{
			name:     "contents to object",
			raw:      `{"dataModelUpdate":{"surfaceId":"s","path":"/user","contents":[{"key":"name","valueString":"Ada"},{"key":"age","valueNumber":36},{"key":"admin","valueBoolean":false}]}}`,
			wantPath: "/user",
			want:     map[string]any{"name": "Ada", "age": 36.0, "admin": false},
		},
		{
			name:     "value map recursion",
			raw:      `{"dataModelUpdate":{"surfaceId":"s","contents":[{"key":"items","valueMap":[{"key":"0","valueMap":[{"key":"title","valueString":"x"}]}]}]}}`,
			wantPath: "",
			want:     map[string]any{"items": map[string]any{"0": map[string]any{"title": "x"}}},
		},
		{
			name:     "empty contents",
			raw:      `{"dataModelUpdate":{"surfaceId":"s","path":"/a","contents":[]}}`,
			wantPath: "/a",
			want:     map[string]any{},
		},
		{
			name:     "no contents deletes",
			raw:      `{"dataModelUpdate":{"surfaceId":"s","path":"/a"}}`,
			wantPath: "/a",
			want:     datamodel.Delete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Parse([]byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, KindDataModelUpdate, env.Kind)
			require.Len(t, env.DataModelUpdate.Patches, 1)

			p := env.DataModelUpdate.Patches[0]
			assert.Equal(t, tt.wantPath, p.Path)
			assert.Equal(t, tt.want, p.Value)
		})
	}
}

func TestParse_V08BeginRendering(t *testing.T) {
	raw := `{"beginRendering":{"surfaceId":"s","root":"main-col","catalogId":"cat","styles":{"primaryColor":"#fff"}}}`

	env, err := Parse([]byte(raw))
	require.NoError(t, err)
	b := env.BeginRendering
	require.NotNil(t, b)
	assert.Equal(t, "main-col", b.RootID)
	assert.Equal(t, "cat", b.CatalogID)
	assert.Equal(t, V08, b.ProtocolVersion)
	assert.Equal(t, map[string]any{"primaryColor": "#fff"}, b.Styles)
	assert.False(t, b.BroadcastDataModel)
}

// ===== v0.9 =====

func TestParse_V09(t *testing.T) {
	t.Run("create surface", func(t *testing.T) {
		env, err := Parse([]byte(`{"createSurface":{"surfaceId":"s","catalogId":"cat","broadcastDataModel":true}}`))
		require.NoError(t, err)
		assert.Equal(t, V09, env.Version)
		assert.Equal(t, RootID, env.BeginRendering.RootID)
		assert.Equal(t, "cat", env.BeginRendering.CatalogID)
		assert.True(t, env.BeginRendering.BroadcastDataModel)
		assert.Equal(t, V09, env.BeginRendering.ProtocolVersion)
	})

	t.Run("update components", func(t *testing.T) {
		env, err := Parse([]byte(`{"updateComponents":{"surfaceId":"s","components":[{"id":"root","component":"Row","children":["a"]},{"id":"a","component":"Text","text":"Hi","weight":1}]}}`))
		require.NoError(t, err)
		comps := env.SurfaceUpdate.Components
		require.Len(t, comps, 2)
		assert.Equal(t, map[string]any{"children": []any{"a"}}, comps[0].Props)
		assert.Equal(t, map[string]any{"text": "Hi"}, comps[1].Props)
		require.NotNil(t, comps[1].Weight)
		assert.Equal(t, 1.0, *comps[1].Weight)
	})

	t.Run("absent value deletes", func(t *testing.T) {
		env, err := Parse([]byte(`{"updateDataModel":{"surfaceId":"main","path":"/user/temp"}}`))
		require.NoError(t, err)
		require.Len(t, env.DataModelUpdate.Patches, 1)
		assert.Equal(t, "/user/temp", env.DataModelUpdate.Patches[0].Path)
		assert.True(t, datamodel.IsDelete(env.DataModelUpdate.Patches[0].Value))
	})

	t.Run("null value sets", func(t *testing.T) {
		env, err := Parse([]byte(`{"updateDataModel":{"surfaceId":"main","path":"/user/temp","value":null}}`))
		require.NoError(t, err)
		p := env.DataModelUpdate.Patches[0]
		assert.False(t, datamodel.IsDelete(p.Value))
		assert.Nil(t, p.Value)
	})

	t.Run("patch list keeps order", func(t *testing.T) {
		env, err := Parse([]byte(`{"updateDataModel":{"surfaceId":"s","patches":[{"path":"/a","value":1},{"path":"/b"},{"value":{"c":true}}]}}`))
		require.NoError(t, err)
		p := env.DataModelUpdate.Patches
		require.Len(t, p, 3)
		assert.Equal(t, Patch{Path: "/a", Value: 1.0}, p[0])
		assert.Equal(t, "/b", p[1].Path)
		assert.True(t, datamodel.IsDelete(p[1].Value))
		assert.Equal(t, Patch{Path: "", Value: map[string]any{"c": true}}, p[2])
	})
}

func TestParse_DeleteSurfaceVersion(t *testing.T) {
	env, err := Parse([]byte(`{"deleteSurface":{"surfaceId":"s"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindDeleteSurface, env.Kind)
	assert.Equal(t, V09, env.Version)

	env, err = Parse([]byte(`{"version":"v0.8","deleteSurface":{"surfaceId":"s"}}`))
	require.NoError(t, err)
	assert.Equal(t, V08, env.Version)
}

func TestDetectVersion(t *testing.T) {
	tests := []struct {
		msg    map[string]any
		want   Version
		wantOK bool
	}{
		{msg: map[string]any{"surfaceUpdate": map[string]any{}}, want: V08, wantOK: true},
		{msg: map[string]any{"beginRendering": map[string]any{}}, want: V08, wantOK: true},
		{msg: map[string]any{"createSurface": map[string]any{}}, want: V09, wantOK: true},
		{msg: map[string]any{"updateDataModel": map[string]any{}}, want: V09, wantOK: true},
		{msg: map[string]any{"other": 1}, wantOK: false},
	}

	for _, tt := range tests {
		got, ok := DetectVersion(tt.msg)
		assert.Equal(t, tt.wantOK, ok)
		assert.Equal(t, tt.want, got)
	}
}

// The same logical change must produce the same canonical patch from
// either wire version.
func TestParse_CrossVersionEquivalence(t *testing.T) {
	pairs := []struct {
		name string
		v08  string
		v09  string
	}{
		{
			name: "set object",
			v08:  `{"dataModelUpdate":{"surfaceId":"s","path":"/user","contents":[{"key":"name","valueString":"Ada"}]}}`,
			v09:  `{"updateDataModel":{"surfaceId":"s","path":"/user","value":{"name":"Ada"}}}`,
		},
		{
			name: "replace root",
			v08:  `{"dataModelUpdate":{"surfaceId":"s","contents":[{"key":"n","valueNumber":3}]}}`,
			v09:  `{"updateDataModel":{"surfaceId":"s","value":{"n":3}}}`,
		},
		{
			name: "delete",
			v08:  `{"dataModelUpdate":{"surfaceId":"s","path":"/x"}}`,
			v09:  `{"updateDataModel":{"surfaceId":"s","path":"/x"}}`,
		},
	}

	for _, tt := range pairs {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse([]byte(tt.v08))
			require.NoError(t, err)
			b, err := Parse([]byte(tt.v09))
			require.NoError(t, err)
			assert.Equal(t, a.DataModelUpdate.Patches, b.DataModelUpdate.Patches)
		})
	}
}

func TestChildrenOf(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   Children
		wantOK bool
	}{
		{name: "id list", value: []any{"a", "b"}, want: Children{IDs: []string{"a", "b"}}, wantOK: true},
		{name: "single id", value: "a", want: Children{IDs: []string{"a"}}, wantOK: true},
		{name: "explicit list", value: map[string]any{"explicitList": []any{"a"}}, want: Children{IDs: []string{"a"}}, wantOK: true},
		{
			name:   "v0.8 template",
			value:  map[string]any{"template": map[string]any{"dataBinding": "/items", "componentId": "row"}},
			want:   Children{Template: &Template{DataBinding: "/items", ComponentID: "row"}},
			wantOK: true,
		},
		{
			name:   "v0.9 template",
			value:  map[string]any{"componentId": "row", "path": "/items"},
			want:   Children{Template: &Template{DataBinding: "/items", ComponentID: "row"}},
			wantOK: true,
		},
		{name: "garbage", value: 12.0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ChildrenOf(map[string]any{"children": tt.value}, "children")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValueOf(t *testing.T) {
	assert.Equal(t, Value{Path: "/a", IsPath: true}, ValueOf(map[string]any{"path": "/a"}))
	assert.Equal(t, Value{Literal: "x"}, ValueOf("x"))
	assert.Equal(t, Value{Literal: map[string]any{"k": 1.0}}, ValueOf(map[string]any{"k": 1.0}))
}

func TestEnvelope_Validate(t *testing.T) {
	assert.Error(t, Envelope{}.Validate())
	assert.Error(t, Envelope{
		Kind:          KindDeleteSurface,
		DeleteSurface: &DeleteSurface{SurfaceID: "s"},
		UserAction:    &UserAction{Name: "x"},
	}.Validate())
	assert.Error(t, Envelope{Kind: KindSurfaceUpdate, DeleteSurface: &DeleteSurface{SurfaceID: "s"}}.Validate())
	assert.NoError(t, Envelope{Kind: KindDeleteSurface, DeleteSurface: &DeleteSurface{SurfaceID: "s"}}.Validate())
}
