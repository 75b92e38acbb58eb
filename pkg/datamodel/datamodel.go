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

// Package datamodel implements the JSON-Pointer-addressed value tree that
// backs every surface.
//
// A tree is plain decoded JSON: map[string]any, []any, string, float64,
// bool and nil. Updates address a location with an RFC 6901 pointer and
// either set a value or remove it:
//
//	tree, _ = datamodel.Apply(tree, "/user/name", "Ada")
//	tree, _ = datamodel.Apply(tree, "/user/temp", datamodel.Delete)
//
// Removing a location that does not exist is a no-op.
package datamodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidPointer is returned for strings that are not RFC 6901 pointers.
	ErrInvalidPointer = errors.New("invalid JSON pointer")

	// ErrNotContainer is returned when a set walks through a primitive value.
	ErrNotContainer = errors.New("path traverses a non-container value")

	// ErrIndexOutOfRange is returned when a set addresses an array slot past the end.
	ErrIndexOutOfRange = errors.New("array index out of range")
)

type deleteSentinel struct{}

func (deleteSentinel) String() string { return "<delete>" }

// Delete is the value that removes the addressed location instead of
// setting it. It is distinct from JSON null.
var Delete any = deleteSentinel{}

// IsDelete reports whether v is the delete sentinel.
func IsDelete(v any) bool {
	_, ok := v.(deleteSentinel)
	return ok
}

// Patch is one addressed change. Value may be Delete.
type Patch struct {
	Path  string
	Value any
}

// Apply returns the tree with value written at path. The input tree is
// modified in place where possible; callers must use the returned tree.
func Apply(tree any, path string, value any) (any, error) {
	ptr, err := ParsePointer(path)
	if err != nil {
		return tree, err
	}
	return ApplyPointer(tree, ptr, value)
}

// ApplyPointer is Apply with an already decoded pointer.
func ApplyPointer(tree any, ptr Pointer, value any) (any, error) {
	if ptr.IsRoot() {
		if IsDelete(value) {
			return nil, nil
		}
		return Clone(value), nil
	}
	if IsDelete(value) {
		return remove(tree, ptr), nil
	}
	return set(tree, ptr, Clone(value))
}

func set(node any, ptr Pointer, value any) (any, error) {
	tok := ptr[0]
	rest := ptr[1:]

	switch n := node.(type) {
	case nil:
		// Missing intermediates become objects, even for numeric tokens.
		obj := make(map[string]any)
		return set(obj, ptr, value)

	case map[string]any:
		if len(rest) == 0 {
			n[tok] = value
			return n, nil
		}
		child, err := set(n[tok], rest, value)
		if err != nil {
			return n, err
		}
		n[tok] = child
		return n, nil

	case []any:
		idx, ok := arrayIndex(tok, len(n))
		if !ok {
			return n, fmt.Errorf("%w: %q is not an array index", ErrNotContainer, tok)
		}
		if idx > len(n) {
			return n, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, idx, len(n))
		}
		if idx == len(n) {
			n = append(n, nil)
		}
		if len(rest) == 0 {
			n[idx] = value
			return n, nil
		}
		child, err := set(n[idx], rest, value)
		if err != nil {
			return n, err
		}
		n[idx] = child
		return n, nil

	default:
		return node, fmt.Errorf("%w: cannot descend into %T at %q", ErrNotContainer, node, tok)
	}
}

func remove(node any, ptr Pointer) any {
	tok := ptr[0]
	rest := ptr[1:]

	switch n := node.(type) {
	case map[string]any:
		child, ok := n[tok]
		if !ok {
			return n
		}
		if len(rest) == 0 {
			delete(n, tok)
			return n
		}
		n[tok] = remove(child, rest)
		return n

	case []any:
		idx, ok := arrayIndex(tok, len(n))
		if !ok || idx >= len(n) {
			return n
		}
		if len(rest) == 0 {
			return append(n[:idx], n[idx+1:]...)
		}
		n[idx] = remove(n[idx], rest)
		return n

	default:
		return node
	}
}

// Get returns the value at path and whether it exists.
func Get(tree any, path string) (any, bool) {
	ptr, err := ParsePointer(path)
	if err != nil {
		return nil, false
	}
	return GetPointer(tree, ptr)
}

// GetPointer is Get with an already decoded pointer.
func GetPointer(tree any, ptr Pointer) (any, bool) {
	node := tree
	for _, tok := range ptr {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[tok]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			idx, ok := arrayIndex(tok, len(n))
			if !ok || idx >= len(n) {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

// Clone deep-copies a decoded JSON value.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}

// Model is a data model instance guarded for concurrent readers.
type Model struct {
	mu   sync.RWMutex
	tree any
}

// NewModel creates an empty model whose root is an empty object.
func NewModel() *Model {
	return &Model{tree: make(map[string]any)}
}

// NewModelFrom creates a model seeded with a copy of tree.
func NewModelFrom(tree any) *Model {
	return &Model{tree: Clone(tree)}
}

// Apply writes a single patch.
func (m *Model) Apply(path string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree, err := Apply(m.tree, path, value)
	m.tree = tree
	return err
}

// ApplyPatches applies patches strictly in order. Each patch is applied
// independently: a failing patch is skipped, later patches still run and
// nothing is rolled back. The returned error joins every failure.
func (m *Model) ApplyPatches(patches []Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i, p := range patches {
		tree, err := Apply(m.tree, p.Path, p.Value)
		m.tree = tree
		if err != nil {
			errs = append(errs, fmt.Errorf("patch %d (%q): %w", i, p.Path, err))
		}
	}
	return errors.Join(errs...)
}

// Get returns the value at path.
func (m *Model) Get(path string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Get(m.tree, path)
}

// Snapshot returns a deep copy of the whole tree.
func (m *Model) Snapshot() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Clone(m.tree)
}

// MarshalJSON encodes the current tree.
func (m *Model) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(m.tree)
}
