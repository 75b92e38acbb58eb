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
)

// Wire envelope keys.
const (
	KeySurfaceUpdate    = "surfaceUpdate"
	KeyDataModelUpdate  = "dataModelUpdate"
	KeyBeginRendering   = "beginRendering"
	KeyDeleteSurface    = "deleteSurface"
	KeyCreateSurface    = "createSurface"
	KeyUpdateComponents = "updateComponents"
	KeyUpdateDataModel  = "updateDataModel"
	KeyUserAction       = "userAction"
	KeyError            = "error"

	// versionKey is an optional top-level hint. It only matters for
	// deleteSurface, which is spelled the same in both versions.
	versionKey = "version"
)

var v08Keys = map[string]Kind{
	KeySurfaceUpdate:   KindSurfaceUpdate,
	KeyDataModelUpdate: KindDataModelUpdate,
	KeyBeginRendering:  KindBeginRendering,
	KeyDeleteSurface:   KindDeleteSurface,
}

var v09Keys = map[string]Kind{
	KeyUpdateComponents: KindSurfaceUpdate,
	KeyUpdateDataModel:  KindDataModelUpdate,
	KeyCreateSurface:    KindBeginRendering,
	KeyDeleteSurface:    KindDeleteSurface,
}

// Parse decodes one server to client wire message. It never panics; every
// failure is an *Error.
func Parse(raw []byte) (Envelope, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Envelope{}, newError(ErrJSONDecode, "", err)
	}
	if m == nil {
		return Envelope{}, newError(ErrJSONDecode, "", fmt.Errorf("expected a JSON object"))
	}
	return ParseMap(m)
}

// ParseMap is Parse for an already decoded message, such as the data of an
// A2A DataPart.
func ParseMap(m map[string]any) (env Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			env = Envelope{}
			err = newError(ErrParse, "", fmt.Errorf("adapter failure: %v", r))
		}
	}()

	key, version, err := envelopeKey(m)
	if err != nil {
		return Envelope{}, err
	}

	body, ok := m[key].(map[string]any)
	if !ok {
		return Envelope{}, parseErrorf(key, "body must be an object, got %T", m[key])
	}

	switch version {
	case V08:
		env, err = parseV08(key, body)
	default:
		env, err = parseV09(key, body)
	}
	if err != nil {
		return Envelope{}, err
	}
	env.Version = version
	return env, nil
}

// DetectVersion reports the wire version of a decoded message.
func DetectVersion(m map[string]any) (Version, bool) {
	_, version, err := envelopeKey(m)
	if err != nil {
		return "", false
	}
	return version, true
}

func envelopeKey(m map[string]any) (string, Version, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var found []string
	for _, k := range keys {
		_, in08 := v08Keys[k]
		_, in09 := v09Keys[k]
		if in08 || in09 {
			found = append(found, k)
		}
	}

	switch len(found) {
	case 0:
		return "", "", newError(ErrUnknownMessageType, "", fmt.Errorf("keys %v", keys))
	case 1:
	default:
		return "", "", newError(ErrMultipleEnvelopeKeys, "", fmt.Errorf("keys %v", found))
	}

	key := found[0]
	if _, ok := v08Keys[key]; !ok {
		return key, V09, nil
	}
	if _, ok := v09Keys[key]; !ok {
		return key, V08, nil
	}

	if hint, ok := m[versionKey].(string); ok && Version(hint).Valid() {
		return key, Version(hint), nil
	}
	return key, V09, nil
}

func requireSurfaceID(key string, body map[string]any) (string, error) {
	id, ok := body["surfaceId"].(string)
	if !ok || id == "" {
		return "", parseErrorf(key, "surfaceId is required")
	}
	return id, nil
}

func optionalString(key string, body map[string]any, field string) (string, error) {
	raw, ok := body[field]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", parseErrorf(key, "%s must be a string, got %T", field, raw)
	}
	return s, nil
}

func optionalObject(key string, body map[string]any, field string) (map[string]any, error) {
	raw, ok := body[field]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, parseErrorf(key, "%s must be an object, got %T", field, raw)
	}
	return obj, nil
}

func optionalWeight(key string, c map[string]any) (*float64, error) {
	raw, ok := c["weight"]
	if !ok || raw == nil {
		return nil, nil
	}
	w, ok := raw.(float64)
	if !ok {
		return nil, parseErrorf(key, "weight must be a number, got %T", raw)
	}
	return &w, nil
}

func componentList(key string, body map[string]any) ([]any, error) {
	raw, ok := body["components"]
	if !ok {
		return nil, parseErrorf(key, "components is required")
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, parseErrorf(key, "components must be an array, got %T", raw)
	}
	return list, nil
}
