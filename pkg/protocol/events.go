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

	"github.com/mitchellh/mapstructure"
)

// ValidateEnvelope checks the shape of a client to server event: exactly
// one key, which must be userAction or error.
func ValidateEnvelope(m map[string]any) error {
	switch len(m) {
	case 0:
		return newError(ErrInvalidEnvelopeType, "", fmt.Errorf("empty envelope"))
	case 1:
	default:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return newError(ErrMultipleEnvelopeKeys, "", fmt.Errorf("keys %v", keys))
	}

	for k := range m {
		if k != KeyUserAction && k != KeyError {
			return newError(ErrInvalidEnvelopeType, k, nil)
		}
	}
	return nil
}

// ParseClientEvent decodes a userAction or error event.
func ParseClientEvent(raw []byte) (Envelope, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Envelope{}, newError(ErrJSONDecode, "", err)
	}
	if m == nil {
		return Envelope{}, newError(ErrJSONDecode, "", fmt.Errorf("expected a JSON object"))
	}
	return ParseClientEventMap(m)
}

// ParseClientEventMap is ParseClientEvent for a decoded event.
func ParseClientEventMap(m map[string]any) (Envelope, error) {
	if err := ValidateEnvelope(m); err != nil {
		return Envelope{}, err
	}

	if body, ok := m[KeyUserAction]; ok {
		var action UserAction
		if err := decodeBody(body, &action); err != nil {
			return Envelope{}, newError(ErrParse, KeyUserAction, err)
		}
		if action.Name == "" {
			return Envelope{}, parseErrorf(KeyUserAction, "name is required")
		}
		if action.SurfaceID == "" {
			return Envelope{}, parseErrorf(KeyUserAction, "surfaceId is required")
		}
		return Envelope{Kind: KindUserAction, UserAction: &action}, nil
	}

	var event ErrorEvent
	if err := decodeBody(m[KeyError], &event); err != nil {
		return Envelope{}, newError(ErrParse, KeyError, err)
	}
	return Envelope{Kind: KindError, Error: &event}, nil
}

func decodeBody(body any, out any) error {
	if _, ok := body.(map[string]any); !ok {
		return fmt.Errorf("body must be an object, got %T", body)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(body)
}
