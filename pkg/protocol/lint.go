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

import "fmt"

// Lint reports problems in a surface update that do not prevent it from
// being applied: catalog types the engine does not know, duplicate ids
// and weights on components that are not children of a Row or Column.
func Lint(u SurfaceUpdate) []string {
	var warnings []string

	weighted := make(map[string]bool)
	seen := make(map[string]bool, len(u.Components))
	for _, c := range u.Components {
		if seen[c.ID] {
			warnings = append(warnings, fmt.Sprintf("component %q appears more than once; the last one wins", c.ID))
		}
		seen[c.ID] = true

		if !IsKnownType(c.Type) {
			warnings = append(warnings, fmt.Sprintf("component %q has type %q outside the standard catalog", c.ID, c.Type))
		}
		if IsWeightedContainer(c.Type) {
			for _, ref := range ChildRefs(c) {
				for _, id := range ref.IDs {
					weighted[id] = true
				}
				if ref.Template != nil {
					weighted[ref.Template.ComponentID] = true
				}
			}
		}
	}

	for _, c := range u.Components {
		if c.Weight != nil && !weighted[c.ID] {
			warnings = append(warnings, fmt.Sprintf("component %q has a weight but is not a direct child of a Row or Column", c.ID))
		}
	}
	return warnings
}
