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

package config

import (
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// SchemaID identifies the generated configuration schema.
const SchemaID = "https://a2ui.org/schemas/server-config.json"

var durationType = reflect.TypeOf(time.Duration(0))

// GenerateSchema reflects Config into a JSON Schema. Definitions are
// inlined and unknown properties are rejected, matching strict loading.
func GenerateSchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			// Durations are written as Go duration strings in YAML.
			if t == durationType {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
					Description: "Duration such as 500ms, 2s or 1h30m",
				}
			}
			return nil
		},
	}

	schema := reflector.Reflect(&Config{})
	schema.ID = SchemaID
	schema.Title = "A2UI Server Configuration"
	schema.Description = "Configuration schema for the a2ui server"
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.Examples = []any{
		map[string]any{
			"version": "1",
			"server":  map[string]any{"port": 8080},
			"stream":  map[string]any{"retry": "2s", "heartbeat": "15s"},
			"sessions": map[string]any{
				"backend":  "sql",
				"database": "default",
			},
			"databases": map[string]any{
				"default": map[string]any{
					"driver":   "sqlite",
					"database": "./.a2ui/a2ui.db",
				},
			},
		},
	}
	return schema
}
