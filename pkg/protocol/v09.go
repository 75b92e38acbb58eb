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
	"github.com/kadirpekel/a2ui/pkg/datamodel"
)

// RootID is the fixed root component id of v0.9 surfaces.
const RootID = "root"

func parseV09(key string, body map[string]any) (Envelope, error) {
	surfaceID, err := requireSurfaceID(key, body)
	if err != nil {
		return Envelope{}, err
	}

	switch key {
	case KeyUpdateComponents:
		list, err := componentList(key, body)
		if err != nil {
			return Envelope{}, err
		}
		components := make([]Component, 0, len(list))
		for i, raw := range list {
			c, err := componentV09(key, i, raw)
			if err != nil {
				return Envelope{}, err
			}
			components = append(components, c)
		}
		return Envelope{
			Kind:          KindSurfaceUpdate,
			SurfaceUpdate: &SurfaceUpdate{SurfaceID: surfaceID, Components: components},
		}, nil

	case KeyUpdateDataModel:
		var patches []Patch
		if raw, ok := body["patches"]; ok {
			list, ok := raw.([]any)
			if !ok {
				return Envelope{}, parseErrorf(key, "patches must be an array, got %T", raw)
			}
			for i, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					return Envelope{}, parseErrorf(key, "patches[%d] must be an object", i)
				}
				p, err := patchV09(key, m)
				if err != nil {
					return Envelope{}, err
				}
				patches = append(patches, p)
			}
		} else {
			p, err := patchV09(key, body)
			if err != nil {
				return Envelope{}, err
			}
			patches = []Patch{p}
		}
		return Envelope{
			Kind:            KindDataModelUpdate,
			DataModelUpdate: &DataModelUpdate{SurfaceID: surfaceID, Patches: patches},
		}, nil

	case KeyCreateSurface:
		catalogID, _ := body["catalogId"].(string)
		if catalogID == "" {
			return Envelope{}, parseErrorf(key, "catalogId is required")
		}
		styles, err := optionalObject(key, body, "styles")
		if err != nil {
			return Envelope{}, err
		}
		if styles == nil {
			if styles, err = optionalObject(key, body, "theme"); err != nil {
				return Envelope{}, err
			}
		}
		broadcast, _ := body["broadcastDataModel"].(bool)
		return Envelope{
			Kind: KindBeginRendering,
			BeginRendering: &BeginRendering{
				SurfaceID:          surfaceID,
				RootID:             RootID,
				CatalogID:          catalogID,
				Styles:             styles,
				ProtocolVersion:    V09,
				BroadcastDataModel: broadcast,
			},
		}, nil

	case KeyDeleteSurface:
		return Envelope{Kind: KindDeleteSurface, DeleteSurface: &DeleteSurface{SurfaceID: surfaceID}}, nil
	}

	return Envelope{}, newError(ErrUnknownMessageType, key, nil)
}

func componentV09(key string, index int, raw any) (Component, error) {
	c, ok := raw.(map[string]any)
	if !ok {
		return Component{}, parseErrorf(key, "component %d must be an object", index)
	}
	id, _ := c["id"].(string)
	if id == "" {
		return Component{}, parseErrorf(key, "component %d has no id", index)
	}
	typ, ok := c["component"].(string)
	if !ok || typ == "" {
		return Component{}, parseErrorf(key, "component %q must name its type with a string", id)
	}
	weight, err := optionalWeight(key, c)
	if err != nil {
		return Component{}, err
	}

	props := make(map[string]any, len(c))
	for k, v := range c {
		switch k {
		case "id", "component", "weight":
			continue
		}
		props[k] = v
	}
	return Component{ID: id, Type: typ, Props: props, Weight: weight}, nil
}

// patchV09 reads one path/value pair. An absent value deletes the path;
// an explicit null sets it.
func patchV09(key string, m map[string]any) (Patch, error) {
	path, err := optionalString(key, m, "path")
	if err != nil {
		return Patch{}, err
	}
	value, ok := m["value"]
	if !ok {
		return Patch{Path: path, Value: datamodel.Delete}, nil
	}
	return Patch{Path: path, Value: value}, nil
}
