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

// Package protocol decodes A2UI wire envelopes into a canonical,
// version-independent form and encodes them back for delivery.
//
// Two wire versions are supported. v0.8 nests each component under a
// single type key and wraps literals in typed objects; v0.9 uses a flat
// component shape. Parse converts both into Envelope values whose
// components and data patches look the same regardless of origin, so the
// surface layer never branches on version except for template scoping.
package protocol

import (
	"fmt"

	"github.com/kadirpekel/a2ui/pkg/datamodel"
)

// Version identifies a wire protocol version.
type Version string

const (
	V08 Version = "v0.8"
	V09 Version = "v0.9"
)

// Valid reports whether v is a supported version.
func (v Version) Valid() bool {
	return v == V08 || v == V09
}

// Kind discriminates the populated variant of an Envelope.
type Kind int

const (
	KindUnknown Kind = iota
	KindSurfaceUpdate
	KindDataModelUpdate
	KindBeginRendering
	KindDeleteSurface
	KindUserAction
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSurfaceUpdate:
		return "surface_update"
	case KindDataModelUpdate:
		return "data_model_update"
	case KindBeginRendering:
		return "begin_rendering"
	case KindDeleteSurface:
		return "delete_surface"
	case KindUserAction:
		return "user_action"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Envelope is one canonical message. Exactly one of the variant pointers
// is set, matching Kind.
type Envelope struct {
	Kind    Kind
	Version Version

	SurfaceUpdate   *SurfaceUpdate
	DataModelUpdate *DataModelUpdate
	BeginRendering  *BeginRendering
	DeleteSurface   *DeleteSurface
	UserAction      *UserAction
	Error           *ErrorEvent
}

// SurfaceID returns the surface the envelope addresses, if any.
func (e Envelope) SurfaceID() string {
	switch {
	case e.SurfaceUpdate != nil:
		return e.SurfaceUpdate.SurfaceID
	case e.DataModelUpdate != nil:
		return e.DataModelUpdate.SurfaceID
	case e.BeginRendering != nil:
		return e.BeginRendering.SurfaceID
	case e.DeleteSurface != nil:
		return e.DeleteSurface.SurfaceID
	case e.UserAction != nil:
		return e.UserAction.SurfaceID
	case e.Error != nil:
		return e.Error.SurfaceID
	}
	return ""
}

// Validate checks that exactly one variant is populated and that it
// matches Kind.
func (e Envelope) Validate() error {
	set := 0
	var kind Kind
	if e.SurfaceUpdate != nil {
		set++
		kind = KindSurfaceUpdate
	}
	if e.DataModelUpdate != nil {
		set++
		kind = KindDataModelUpdate
	}
	if e.BeginRendering != nil {
		set++
		kind = KindBeginRendering
	}
	if e.DeleteSurface != nil {
		set++
		kind = KindDeleteSurface
	}
	if e.UserAction != nil {
		set++
		kind = KindUserAction
	}
	if e.Error != nil {
		set++
		kind = KindError
	}

	switch {
	case set == 0:
		return fmt.Errorf("envelope has no variant set")
	case set > 1:
		return fmt.Errorf("envelope has %d variants set", set)
	case kind != e.Kind:
		return fmt.Errorf("envelope kind %s does not match populated variant %s", e.Kind, kind)
	}
	return nil
}

// Component is one node of a surface's component graph. Props hold
// native JSON values; data bindings appear as {"path": "<pointer>"}.
type Component struct {
	ID     string
	Type   string
	Props  map[string]any
	Weight *float64
}

// Clone returns a deep copy of the component.
func (c Component) Clone() Component {
	out := Component{ID: c.ID, Type: c.Type}
	if c.Props != nil {
		out.Props = datamodel.Clone(c.Props).(map[string]any)
	}
	if c.Weight != nil {
		w := *c.Weight
		out.Weight = &w
	}
	return out
}

// Value is a prop value: either a literal or a data binding.
type Value struct {
	Literal any
	Path    string
	IsPath  bool
}

// ValueOf classifies a canonical prop value.
func ValueOf(v any) Value {
	if m, ok := v.(map[string]any); ok {
		if p, ok := m["path"].(string); ok {
			return Value{Path: p, IsPath: true}
		}
	}
	return Value{Literal: v}
}

// Template is a child reference that expands to one instance of the
// prototype component per element under DataBinding.
type Template struct {
	DataBinding string
	ComponentID string
}

// Children is the decoded child reference of a container prop.
type Children struct {
	IDs      []string
	Template *Template
}

// ChildrenOf decodes the child reference stored under props[key]. It
// accepts the canonical shapes (an id array, a single id string, or
// {"componentId","path"}) as well as the v0.8 explicitList/template
// wrappers.
func ChildrenOf(props map[string]any, key string) (Children, bool) {
	raw, ok := props[key]
	if !ok {
		return Children{}, false
	}
	return childrenFrom(raw)
}

func childrenFrom(raw any) (Children, bool) {
	switch v := raw.(type) {
	case string:
		return Children{IDs: []string{v}}, true
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if id, ok := item.(string); ok {
				ids = append(ids, id)
			}
		}
		return Children{IDs: ids}, true
	case []string:
		return Children{IDs: append([]string(nil), v...)}, true
	case map[string]any:
		if list, ok := v["explicitList"]; ok {
			return childrenFrom(list)
		}
		if tmpl, ok := v["template"].(map[string]any); ok {
			binding, _ := tmpl["dataBinding"].(string)
			id, _ := tmpl["componentId"].(string)
			return Children{Template: &Template{DataBinding: binding, ComponentID: id}}, true
		}
		if id, ok := v["componentId"].(string); ok {
			binding, _ := v["path"].(string)
			return Children{Template: &Template{DataBinding: binding, ComponentID: id}}, true
		}
	}
	return Children{}, false
}

// SurfaceUpdate upserts components by id.
type SurfaceUpdate struct {
	SurfaceID  string
	Components []Component
}

// Patch is a single data model change. Value may be datamodel.Delete.
type Patch = datamodel.Patch

// DataModelUpdate carries one or more patches applied in order.
type DataModelUpdate struct {
	SurfaceID string
	Patches   []Patch
}

// BeginRendering marks a surface ready to render.
type BeginRendering struct {
	SurfaceID          string
	RootID             string
	CatalogID          string
	Styles             map[string]any
	ProtocolVersion    Version
	BroadcastDataModel bool
}

// DeleteSurface removes a surface.
type DeleteSurface struct {
	SurfaceID string
}

// UserAction is a client to server interaction event.
type UserAction struct {
	Name              string         `json:"name"`
	SurfaceID         string         `json:"surfaceId"`
	SourceComponentID string         `json:"sourceComponentId,omitempty"`
	Timestamp         string         `json:"timestamp,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
}

// ErrorEvent is a client to server error report.
type ErrorEvent struct {
	SurfaceID string         `json:"surfaceId,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// ClientCapabilities is what a client declares about the catalogs it can
// render.
type ClientCapabilities struct {
	SupportedCatalogIDs []string `json:"supportedCatalogIds" mapstructure:"supportedCatalogIds"`
	InlineCatalogs      []string `json:"inlineCatalogs" mapstructure:"inlineCatalogs"`
}

// Supports reports whether the client declared catalogID.
func (c ClientCapabilities) Supports(catalogID string) bool {
	for _, id := range c.SupportedCatalogIDs {
		if id == catalogID {
			return true
		}
	}
	for _, id := range c.InlineCatalogs {
		if id == catalogID {
			return true
		}
	}
	return false
}
