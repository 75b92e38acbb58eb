// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import (
	"fmt"

	"github.com/kadirpekel/a2ui/pkg/datamodel"
)

// v0.8 typed literal wrappers.
const (
	literalString  = "literalString"
	literalNumber  = "literalNumber"
	literalBoolean = "literalBoolean"
	literalArray   = "literalArray"
)

// v0.8 adjacency list value fields.
const (
	valueString  = "valueString"
	valueNumber  = "valueNumber"
	valueBoolean = "valueBoolean"
	valueMap     = "valueMap"
)

func parseV08(key string, body map[string]any) (Envelope, error) {
	surfaceID, err := requireSurfaceID(key, body)
	if err != nil {
		return Envelope{}, err
	}

	switch key {
	case KeySurfaceUpdate:
		list, err := componentList(key, body)
		if err != nil {
			return Envelope{}, err
		}
		components := make([]Component, 0, len(list))
		for i, raw := range list {
			c, err := componentV08(key, i, raw)
			if err != nil {
				return Envelope{}, err
			}
			components = append(components, c)
		}
		return Envelope{
			Kind:          KindSurfaceUpdate,
			SurfaceUpdate: &SurfaceUpdate{SurfaceID: surfaceID, Components: components},
		}, nil

	case KeyDataModelUpdate:
		path, err := optionalString(key, body, "path")
		if err != nil {
			return Envelope{}, err
		}
		// A missing contents field deletes the addressed path.
		var value any = datamodel.Delete
		if raw, ok := body["contents"]; ok {
			list, ok := raw.([]any)
			if !ok {
				return Envelope{}, parseErrorf(key, "contents must be an array, got %T", raw)
			}
			obj, err := contentsToObject(list)
			if err != nil {
				return Envelope{}, newError(ErrParse, key, err)
			}
			value = obj
		}
		return Envelope{
			Kind: KindDataModelUpdate,
			DataModelUpdate: &DataModelUpdate{
				SurfaceID: surfaceID,
				Patches:   []Patch{{Path: path, Value: value}},
			},
		}, nil

	case KeyBeginRendering:
		root, _ := body["root"].(string)
		if root == "" {
			return Envelope{}, parseErrorf(key, "root is required")
		}
		catalogID, err := optionalString(key, body, "catalogId")
		if err != nil {
			return Envelope{}, err
		}
		styles, err := optionalObject(key, body, "styles")
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{
			Kind: KindBeginRendering,
			BeginRendering: &BeginRendering{
				SurfaceID:       surfaceID,
				RootID:          root,
				CatalogID:       catalogID,
				Styles:          styles,
				ProtocolVersion: V08,
			},
		}, nil

	case KeyDeleteSurface:
		return Envelope{Kind: KindDeleteSurface, DeleteSurface: &DeleteSurface{SurfaceID: surfaceID}}, nil
	}

	return Envelope{}, newError(ErrUnknownMessageType, key, nil)
}

func componentV08(key string, index int, raw any) (Component, error) {
	c, ok := raw.(map[string]any)
	if !ok {
		return Component{}, parseErrorf(key, "component %d must be an object", index)
	}
	id, _ := c["id"].(string)
	if id == "" {
		return Component{}, parseErrorf(key, "component %d has no id", index)
	}
	wrapper, ok := c["component"].(map[string]any)
	if !ok {
		return Component{}, parseErrorf(key, "component %q must wrap its type in an object", id)
	}
	if len(wrapper) != 1 {
		return Component{}, parseErrorf(key, "component %q must have exactly one type key, got %d", id, len(wrapper))
	}
	weight, err := optionalWeight(key, c)
	if err != nil {
		return Component{}, err
	}

	var (
		typ      string
		rawProps any
	)
	for k, v := range wrapper {
		typ, rawProps = k, v
	}

	props := map[string]any{}
	if rawProps != nil {
		m, ok := rawProps.(map[string]any)
		if !ok {
			return Component{}, parseErrorf(key, "component %q props must be an object, got %T", id, rawProps)
		}
		props = unwrapV08(m).(map[string]any)
	}

	return Component{ID: id, Type: typ, Props: props, Weight: weight}, nil
}

// unwrapV08 rewrites v0.8 prop encodings into canonical values: typed
// literals become native values, explicitList and template child
// references become the flat shapes and key/value lists become objects.
func unwrapV08(v any) any {
	switch val := v.(type) {
	case map[string]any:
		// A binding with an initial literal keeps only the binding.
		if p, ok := val["path"].(string); ok {
			return map[string]any{"path": p}
		}
		if lit, ok := literalOf(val); ok {
			return lit
		}
		if len(val) == 1 {
			if list, ok := val["explicitList"]; ok {
				return unwrapV08(list)
			}
			if tmpl, ok := val["template"].(map[string]any); ok {
				return map[string]any{
					"componentId": tmpl["componentId"],
					"path":        tmpl["dataBinding"],
				}
			}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			if k == "context" {
				if obj, ok := keyValueList(item); ok {
					out[k] = obj
					continue
				}
			}
			out[k] = unwrapV08(item)
		}
		return out

	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = unwrapV08(item)
		}
		return out

	default:
		return v
	}
}

func literalOf(m map[string]any) (any, bool) {
	if len(m) != 1 {
		return nil, false
	}
	for _, k := range []string{literalString, literalNumber, literalBoolean, literalArray} {
		if v, ok := m[k]; ok {
			return datamodel.Clone(v), true
		}
	}
	return nil, false
}

// keyValueList converts [{"key":k,"value":v},...] to an object.
func keyValueList(v any) (map[string]any, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		k, ok := m["key"].(string)
		if !ok {
			return nil, false
		}
		out[k] = unwrapV08(m["value"])
	}
	return out, true
}

// contentsToObject rebuilds a native object from a v0.8 adjacency list.
// Arrays are not representable and are not reconstructed.
func contentsToObject(list []any) (map[string]any, error) {
	out := make(map[string]any, len(list))
	for i, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("contents[%d] must be an object", i)
		}
		k, ok := entry["key"].(string)
		if !ok {
			return nil, fmt.Errorf("contents[%d] has no key", i)
		}

		var (
			value any
			found int
		)
		if v, ok := entry[valueString]; ok {
			value, found = v, found+1
		}
		if v, ok := entry[valueNumber]; ok {
			value, found = v, found+1
		}
		if v, ok := entry[valueBoolean]; ok {
			value, found = v, found+1
		}
		if v, ok := entry[valueMap]; ok {
			nested, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("contents[%d] %q: valueMap must be an array", i, k)
			}
			obj, err := contentsToObject(nested)
			if err != nil {
				return nil, fmt.Errorf("contents[%d] %q: %w", i, k, err)
			}
			value, found = obj, found+1
		}

		if found != 1 {
			return nil, fmt.Errorf("contents[%d] %q must carry exactly one value field, got %d", i, k, found)
		}
		out[k] = value
	}
	return out, nil
}
