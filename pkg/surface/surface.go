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

// Package surface owns the per-surface component graph and data model and
// applies canonical envelopes to them in arrival order.
//
// A surface moves through pending, rendering and deleted. Any message for
// an unknown id creates it in pending; BeginRendering moves it to
// rendering; DeleteSurface ends it. Component and data updates never change
// the status.
package surface

import (
	"errors"
	"fmt"
	"time"

	"github.com/kadirpekel/a2ui/pkg/datamodel"
	"github.com/kadirpekel/a2ui/pkg/protocol"
)

// Status is the lifecycle state of a surface.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRendering Status = "rendering"
	StatusDeleted   Status = "deleted"
)

var (
	// ErrSurfaceDeleted is returned when applying to a deleted surface.
	ErrSurfaceDeleted = errors.New("surface deleted")

	// ErrSurfaceMismatch is returned when an envelope addresses another surface.
	ErrSurfaceMismatch = errors.New("envelope addresses a different surface")

	// ErrNotApplicable is returned for client events, which carry no surface state.
	ErrNotApplicable = errors.New("envelope does not modify surface state")
)

// Surface is one component graph plus its data model. It is not safe for
// concurrent use; Manager serializes access.
type Surface struct {
	ID                 string
	RootID             string
	CatalogID          string
	Styles             map[string]any
	Version            protocol.Version
	Components         map[string]protocol.Component
	Data               *datamodel.Model
	Status             Status
	BroadcastDataModel bool
	UpdatedAt          time.Time
}

// New creates a pending surface with an empty data model.
func New(id string) *Surface {
	return &Surface{
		ID:         id,
		Components: make(map[string]protocol.Component),
		Data:       datamodel.NewModel(),
		Status:     StatusPending,
		UpdatedAt:  time.Now(),
	}
}

// Apply applies one envelope. Data model patches are applied
// independently, so a returned error may accompany a partial update.
func (s *Surface) Apply(env protocol.Envelope) error {
	if s.Status == StatusDeleted {
		return ErrSurfaceDeleted
	}
	if id := env.SurfaceID(); id != s.ID {
		return fmt.Errorf("%w: %q is not %q", ErrSurfaceMismatch, id, s.ID)
	}
	if s.Version == "" && env.Version.Valid() {
		s.Version = env.Version
	}

	var err error
	switch env.Kind {
	case protocol.KindSurfaceUpdate:
		for _, c := range env.SurfaceUpdate.Components {
			s.Components[c.ID] = c.Clone()
		}

	case protocol.KindDataModelUpdate:
		err = s.Data.ApplyPatches(env.DataModelUpdate.Patches)

	case protocol.KindBeginRendering:
		b := env.BeginRendering
		if s.Status == StatusPending {
			s.RootID = b.RootID
			s.BroadcastDataModel = b.BroadcastDataModel
			if b.ProtocolVersion.Valid() {
				s.Version = b.ProtocolVersion
			}
			s.Status = StatusRendering
		}
		s.CatalogID = b.CatalogID
		if b.Styles != nil {
			s.Styles = datamodel.Clone(b.Styles).(map[string]any)
		}

	case protocol.KindDeleteSurface:
		s.Status = StatusDeleted

	default:
		return fmt.Errorf("%w: %s", ErrNotApplicable, env.Kind)
	}

	s.UpdatedAt = time.Now()
	return err
}

// Snapshot is a deep copy of a surface, safe to read without locks.
type Snapshot struct {
	ID                 string
	RootID             string
	CatalogID          string
	Styles             map[string]any
	Version            protocol.Version
	Components         map[string]protocol.Component
	Data               any
	Status             Status
	BroadcastDataModel bool
	UpdatedAt          time.Time
}

// Snapshot copies the surface state.
func (s *Surface) Snapshot() Snapshot {
	components := make(map[string]protocol.Component, len(s.Components))
	for id, c := range s.Components {
		components[id] = c.Clone()
	}
	var styles map[string]any
	if s.Styles != nil {
		styles = datamodel.Clone(s.Styles).(map[string]any)
	}
	return Snapshot{
		ID:                 s.ID,
		RootID:             s.RootID,
		CatalogID:          s.CatalogID,
		Styles:             styles,
		Version:            s.Version,
		Components:         components,
		Data:               s.Data.Snapshot(),
		Status:             s.Status,
		BroadcastDataModel: s.BroadcastDataModel,
		UpdatedAt:          s.UpdatedAt,
	}
}
