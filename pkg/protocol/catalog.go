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

import "sort"

// StandardCatalogID is the catalog every client is assumed to support.
const StandardCatalogID = "a2ui.org:standard_catalog_0_8_0"

// componentSpec describes the props of a standard catalog component that
// matter to the engine.
type componentSpec struct {
	// Bound props accept a literal or a data binding.
	Bound []string
	// Nested maps an array prop to the bound fields of its items.
	Nested map[string][]string
	// ChildKeys are props holding child references.
	ChildKeys []string
	// Weighted containers give meaning to a child's weight.
	Weighted bool
}

var standardCatalog = map[string]componentSpec{
	"Text":           {Bound: []string{"text"}},
	"Image":          {Bound: []string{"url"}},
	"Icon":           {Bound: []string{"name"}},
	"Video":          {Bound: []string{"url"}},
	"AudioPlayer":    {Bound: []string{"url", "description"}},
	"Divider":        {},
	"Row":            {ChildKeys: []string{"children"}, Weighted: true},
	"Column":         {ChildKeys: []string{"children"}, Weighted: true},
	"List":           {ChildKeys: []string{"children"}},
	"Card":           {ChildKeys: []string{"child"}},
	"Tabs":           {Nested: map[string][]string{"tabItems": {"title"}}},
	"Modal":          {ChildKeys: []string{"entryPointChild", "contentChild"}},
	"Button":         {ChildKeys: []string{"child"}},
	"TextField":      {Bound: []string{"label", "text"}},
	"CheckBox":       {Bound: []string{"label", "value"}},
	"Slider":         {Bound: []string{"value"}},
	"DateTimeInput":  {Bound: []string{"value"}},
	"MultipleChoice": {Bound: []string{"selections"}, Nested: map[string][]string{"options": {"label"}}},
}

// KnownComponentTypes returns the standard catalog type names, sorted.
func KnownComponentTypes() []string {
	out := make([]string, 0, len(standardCatalog))
	for name := range standardCatalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsKnownType reports whether typ is in the standard catalog.
func IsKnownType(typ string) bool {
	_, ok := standardCatalog[typ]
	return ok
}

// IsWeightedContainer reports whether children of typ may carry a weight.
func IsWeightedContainer(typ string) bool {
	return standardCatalog[typ].Weighted
}

// ChildKeys returns the props of typ that hold child references. Types
// outside the standard catalog are assumed to use "children" and "child".
func ChildKeys(typ string) []string {
	entry, ok := standardCatalog[typ]
	if !ok {
		return []string{"children", "child"}
	}
	return entry.ChildKeys
}

// tabItemChildKey is the item field holding a Tabs child id.
const tabItemChildKey = "child"

// ChildRefs returns every child reference of a component in prop order,
// including per-tab children of Tabs.
func ChildRefs(c Component) []Children {
	var refs []Children
	for _, key := range ChildKeys(c.Type) {
		if ch, ok := ChildrenOf(c.Props, key); ok {
			refs = append(refs, ch)
		}
	}
	if items, ok := c.Props["tabItems"].([]any); ok {
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if ch, ok := ChildrenOf(m, tabItemChildKey); ok {
				refs = append(refs, ch)
			}
		}
	}
	return refs
}
