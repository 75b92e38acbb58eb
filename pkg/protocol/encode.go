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
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/kadirpekel/a2ui/pkg/datamodel"
)

// Encode renders a canonical envelope in the given wire version.
func Encode(env Envelope, version Version) ([]byte, error) {
	m, err := EncodeMap(env, version)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// EncodeMap is Encode without the final JSON serialization.
func EncodeMap(env Envelope, version Version) (map[string]any, error) {
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEncodable, err)
	}

	switch env.Kind {
	case KindUserAction:
		body, err := toMap(env.UserAction)
		if err != nil {
			return nil, err
		}
		return map[string]any{KeyUserAction: body}, nil
	case KindError:
		body, err := toMap(env.Error)
		if err != nil {
			return nil, err
		}
		return map[string]any{KeyError: body}, nil
	case KindDeleteSurface:
		return map[string]any{
			KeyDeleteSurface: map[string]any{"surfaceId": env.DeleteSurface.SurfaceID},
		}, nil
	}

	switch version {
	case V08:
		return encodeV08(env)
	case V09:
		return encodeV09(env)
	default:
		return nil, fmt.Errorf("%w: unsupported version %q", ErrNotEncodable, version)
	}
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ===== v0.8 =====

func encodeV08(env Envelope) (map[string]any, error) {
	switch env.Kind {
	case KindSurfaceUpdate:
		u := env.SurfaceUpdate
		components := make([]any, 0, len(u.Components))
		for _, c := range u.Components {
			entry := map[string]any{
				"id":        c.ID,
				"component": map[string]any{c.Type: wrapPropsV08(c)},
			}
			if c.Weight != nil {
				entry["weight"] = *c.Weight
			}
			components = append(components, entry)
		}
		return map[string]any{KeySurfaceUpdate: map[string]any{
			"surfaceId":  u.SurfaceID,
			"components": components,
		}}, nil

	case KindDataModelUpdate:
		u := env.DataModelUpdate
		if len(u.Patches) != 1 {
			return nil, fmt.Errorf("%w: v0.8 carries one patch per message, got %d", ErrNotEncodable, len(u.Patches))
		}
		body, err := dataModelBodyV08(u.Patches[0])
		if err != nil {
			return nil, err
		}
		body["surfaceId"] = u.SurfaceID
		return map[string]any{KeyDataModelUpdate: body}, nil

	case KindBeginRendering:
		b := env.BeginRendering
		root := b.RootID
		if root == "" {
			root = RootID
		}
		body := map[string]any{"surfaceId": b.SurfaceID, "root": root}
		if b.CatalogID != "" {
			body["catalogId"] = b.CatalogID
		}
		if b.Styles != nil {
			body["styles"] = datamodel.Clone(b.Styles)
		}
		return map[string]any{KeyBeginRendering: body}, nil
	}
	return nil, fmt.Errorf("%w: kind %s", ErrNotEncodable, env.Kind)
}

func wrapPropsV08(c Component) map[string]any {
	props, _ := datamodel.Clone(c.Props).(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	entry := standardCatalog[c.Type]

	for _, key := range entry.Bound {
		if v, ok := props[key]; ok {
			props[key] = wrapLiteral(v)
		}
	}
	for key, fields := range entry.Nested {
		items, ok := props[key].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, f := range fields {
				if v, ok := m[f]; ok {
					m[f] = wrapLiteral(v)
				}
			}
		}
	}

	if ch, ok := ChildrenOf(props, "children"); ok {
		if ch.Template != nil {
			props["children"] = map[string]any{"template": map[string]any{
				"componentId": ch.Template.ComponentID,
				"dataBinding": ch.Template.DataBinding,
			}}
		} else {
			ids := make([]any, len(ch.IDs))
			for i, id := range ch.IDs {
				ids[i] = id
			}
			props["children"] = map[string]any{"explicitList": ids}
		}
	}

	if action, ok := props["action"].(map[string]any); ok {
		if ctx, ok := action["context"].(map[string]any); ok {
			keys := sortedKeys(ctx)
			list := make([]any, 0, len(keys))
			for _, k := range keys {
				list = append(list, map[string]any{"key": k, "value": wrapLiteral(ctx[k])})
			}
			action["context"] = list
		}
	}
	return props
}

func wrapLiteral(v any) any {
	switch val := v.(type) {
	case string:
		return map[string]any{literalString: val}
	case bool:
		return map[string]any{literalBoolean: val}
	case float64, float32, int, int32, int64, json.Number:
		return map[string]any{literalNumber: val}
	case []any:
		return map[string]any{literalArray: val}
	default:
		return v
	}
}

func dataModelBodyV08(p Patch) (map[string]any, error) {
	if datamodel.IsDelete(p.Value) {
		body := map[string]any{}
		if p.Path != "" {
			body["path"] = p.Path
		}
		return body, nil
	}

	// contents replaces the subtree at path, so only objects can be
	// carried without clobbering siblings.
	obj, ok := p.Value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: v0.8 data model values must be objects, got %T", ErrNotEncodable, p.Value)
	}

	contents, err := objectToContents(obj)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"contents": contents}
	if p.Path != "" {
		body["path"] = p.Path
	}
	return body, nil
}

// objectToContents builds a v0.8 adjacency list. Arrays become maps with
// numeric string keys.
func objectToContents(obj map[string]any) ([]any, error) {
	keys := sortedKeys(obj)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		entry := map[string]any{"key": k}
		switch v := obj[k].(type) {
		case string:
			entry[valueString] = v
		case bool:
			entry[valueBoolean] = v
		case float64, float32, int, int32, int64, json.Number:
			entry[valueNumber] = v
		case map[string]any:
			nested, err := objectToContents(v)
			if err != nil {
				return nil, err
			}
			entry[valueMap] = nested
		case []any:
			asMap := make(map[string]any, len(v))
			for i, item := range v {
				asMap[strconv.Itoa(i)] = item
			}
			nested, err := objectToContents(asMap)
			if err != nil {
				return nil, err
			}
			entry[valueMap] = nested
		default:
			return nil, fmt.Errorf("%w: v0.8 cannot carry %T at key %q", ErrNotEncodable, v, k)
		}
		out = append(out, entry)
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ===== v0.9 =====

func encodeV09(env Envelope) (map[string]any, error) {
	switch env.Kind {
	case KindSurfaceUpdate:
		u := env.SurfaceUpdate
		components := make([]any, 0, len(u.Components))
		for _, c := range u.Components {
			entry, _ := datamodel.Clone(c.Props).(map[string]any)
			if entry == nil {
				entry = map[string]any{}
			}
			entry["id"] = c.ID
			entry["component"] = c.Type
			if c.Weight != nil {
				entry["weight"] = *c.Weight
			}
			components = append(components, entry)
		}
		return map[string]any{KeyUpdateComponents: map[string]any{
			"surfaceId":  u.SurfaceID,
			"components": components,
		}}, nil

	case KindDataModelUpdate:
		u := env.DataModelUpdate
		body := map[string]any{"surfaceId": u.SurfaceID}
		switch len(u.Patches) {
		case 0:
			return nil, fmt.Errorf("%w: data model update without patches", ErrNotEncodable)
		case 1:
			writePatchV09(body, u.Patches[0])
		default:
			patches := make([]any, 0, len(u.Patches))
			for _, p := range u.Patches {
				m := map[string]any{}
				writePatchV09(m, p)
				patches = append(patches, m)
			}
			body["patches"] = patches
		}
		return map[string]any{KeyUpdateDataModel: body}, nil

	case KindBeginRendering:
		b := env.BeginRendering
		if b.RootID != "" && b.RootID != RootID {
			return nil, fmt.Errorf("%w: v0.9 root must be %q, got %q", ErrNotEncodable, RootID, b.RootID)
		}
		catalogID := b.CatalogID
		if catalogID == "" {
			catalogID = StandardCatalogID
		}
		body := map[string]any{"surfaceId": b.SurfaceID, "catalogId": catalogID}
		if b.Styles != nil {
			body["styles"] = datamodel.Clone(b.Styles)
		}
		if b.BroadcastDataModel {
			body["broadcastDataModel"] = true
		}
		return map[string]any{KeyCreateSurface: body}, nil
	}
	return nil, fmt.Errorf("%w: kind %s", ErrNotEncodable, env.Kind)
}

func writePatchV09(m map[string]any, p Patch) {
	if p.Path != "" {
		m["path"] = p.Path
	}
	if !datamodel.IsDelete(p.Value) {
		m["value"] = datamodel.Clone(p.Value)
	}
}
