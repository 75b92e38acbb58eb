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

package surface

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kadirpekel/a2ui/pkg/datamodel"
	"github.com/kadirpekel/a2ui/pkg/protocol"
)

var (
	// ErrCycle is returned when a component is its own ancestor within
	// the same data scope.
	ErrCycle = errors.New("component cycle")

	// ErrRootNotFound is returned when the root component has not arrived yet.
	ErrRootNotFound = errors.New("root component not found")
)

// Node is one resolved component instance. Props hold the bound values in
// place of {"path": ...} bindings; Bindings records the absolute pointer
// each bound prop was read from.
type Node struct {
	ID          string            `json:"id"`
	ComponentID string            `json:"componentId"`
	Type        string            `json:"type"`
	Props       map[string]any    `json:"props,omitempty"`
	Bindings    map[string]string `json:"bindings,omitempty"`
	Weight      *float64          `json:"weight,omitempty"`
	Scope       string            `json:"scope,omitempty"`
	Children    []*Node           `json:"children,omitempty"`
	Missing     []string          `json:"missing,omitempty"`
}

// Resolve builds the render tree of a snapshot, expanding templates
// against the current data model. Child ids that have not arrived are
// skipped and listed in Missing on their parent.
func Resolve(s Snapshot) (*Node, error) {
	rootID := s.RootID
	if rootID == "" {
		rootID = protocol.RootID
	}
	root, ok := s.Components[rootID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRootNotFound, rootID)
	}

	r := &resolver{snap: s, version: s.Version, stack: make(map[frame]bool)}
	if r.version == "" {
		r.version = protocol.V09
	}
	return r.node(root, root.ID, "")
}

type frame struct {
	componentID string
	scope       string
}

type resolver struct {
	snap    Snapshot
	version protocol.Version
	stack   map[frame]bool
}

func (r *resolver) node(c protocol.Component, instanceID, scope string) (*Node, error) {
	f := frame{componentID: c.ID, scope: scope}
	if r.stack[f] {
		return nil, fmt.Errorf("%w: %q at scope %q", ErrCycle, c.ID, scope)
	}
	r.stack[f] = true
	defer delete(r.stack, f)

	n := &Node{
		ID:          instanceID,
		ComponentID: c.ID,
		Type:        c.Type,
		Props:       make(map[string]any, len(c.Props)),
		Bindings:    make(map[string]string),
		Weight:      c.Weight,
		Scope:       scope,
	}
	childKeys := make(map[string]bool)
	for _, key := range protocol.ChildKeys(c.Type) {
		childKeys[key] = true
	}
	for key, raw := range c.Props {
		v := protocol.ValueOf(raw)
		// Child references are structure, not data bindings.
		if !v.IsPath || childKeys[key] {
			n.Props[key] = datamodel.Clone(raw)
			continue
		}
		abs := ScopePath(r.version, scope, v.Path)
		n.Bindings[key] = abs
		value, _ := datamodel.Get(r.snap.Data, abs)
		n.Props[key] = datamodel.Clone(value)
	}

	for _, ref := range protocol.ChildRefs(c) {
		if ref.Template != nil {
			if err := r.expand(n, ref.Template, scope); err != nil {
				return nil, err
			}
			continue
		}
		for _, id := range ref.IDs {
			child, ok := r.snap.Components[id]
			if !ok {
				n.Missing = append(n.Missing, id)
				continue
			}
			childInstance := id
			if scope != "" {
				childInstance = instanceID + "/" + id
			}
			cn, err := r.node(child, childInstance, scope)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, cn)
		}
	}
	return n, nil
}

func (r *resolver) expand(parent *Node, t *protocol.Template, scope string) error {
	proto, ok := r.snap.Components[t.ComponentID]
	if !ok {
		parent.Missing = append(parent.Missing, t.ComponentID)
		return nil
	}

	binding := ScopePath(r.version, scope, t.DataBinding)
	ptr, err := datamodel.ParsePointer(binding)
	if err != nil {
		return fmt.Errorf("template %q binding: %w", t.ComponentID, err)
	}
	data, _ := datamodel.GetPointer(r.snap.Data, ptr)

	for _, key := range elementKeys(data) {
		instanceID := fmt.Sprintf("%s/%s[%s]", parent.ID, proto.ID, key)
		cn, err := r.node(proto, instanceID, ptr.Append(key).String())
		if err != nil {
			return err
		}
		parent.Children = append(parent.Children, cn)
	}
	return nil
}

// elementKeys lists the template elements of data: array indices in
// order, or object keys with numeric keys first in numeric order and the
// rest sorted lexically.
func elementKeys(data any) []string {
	switch v := data.(type) {
	case []any:
		keys := make([]string, len(v))
		for i := range v {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			ni, ei := strconv.Atoi(keys[i])
			nj, ej := strconv.Atoi(keys[j])
			switch {
			case ei == nil && ej == nil:
				if ni != nj {
					return ni < nj
				}
				return keys[i] < keys[j]
			case ei == nil:
				return true
			case ej == nil:
				return false
			default:
				return keys[i] < keys[j]
			}
		})
		return keys
	}
	return nil
}

// ScopePath turns a binding path into an absolute pointer. Outside a
// template (scope "") every path is rooted. Inside one, v0.8 places every
// path under the element, leading slash included, while v0.9 keeps
// slash-prefixed paths absolute and scopes only relative ones.
func ScopePath(version protocol.Version, scope, path string) string {
	absolute := strings.HasPrefix(path, "/")
	if scope == "" {
		if absolute || path == "" {
			return path
		}
		return "/" + path
	}
	if absolute && version != protocol.V08 {
		return path
	}
	rel := strings.TrimPrefix(path, "/")
	if rel == "" || rel == "." {
		return scope
	}
	return scope + "/" + rel
}
