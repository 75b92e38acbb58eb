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

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/a2ui/pkg/protocol"
	"github.com/kadirpekel/a2ui/pkg/sse"
	"github.com/kadirpekel/a2ui/pkg/surface"
)

// surfaceView is the JSON form of a mirrored surface.
type surfaceView struct {
	SurfaceID string           `json:"surface_id"`
	Status    surface.Status   `json:"status"`
	Version   protocol.Version `json:"version,omitempty"`
	CatalogID string           `json:"catalog_id,omitempty"`
	RootID    string           `json:"root_id,omitempty"`
	Data      any              `json:"data,omitempty"`
	Tree      *surface.Node    `json:"tree,omitempty"`
	Error     string           `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func newSurfaceView(snap surface.Snapshot) surfaceView {
	view := surfaceView{
		SurfaceID: snap.ID,
		Status:    snap.Status,
		Version:   snap.Version,
		CatalogID: snap.CatalogID,
		RootID:    snap.RootID,
		Data:      snap.Data,
		UpdatedAt: snap.UpdatedAt,
	}
	tree, err := surface.Resolve(snap)
	if err != nil {
		view.Error = err.Error()
	} else {
		view.Tree = tree
	}
	return view
}

// mirror applies a broadcast envelope to the server-side surface manager.
// Failures only affect the preview, never delivery.
func (s *Server) mirror(r *http.Request, sessionID string, env protocol.Envelope) {
	if err := s.surfaces.ApplyFrom(r.Context(), sessionID, env); err != nil {
		slog.Debug("Surface mirror skipped envelope", "session", sessionID, "surface_id", env.SurfaceID(), "error", err)
	}
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "surfaceID")
	snap, ok := s.surfaces.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, surface.ErrSurfaceNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newSurfaceView(snap))
}

// handleSurfaceStream sends the resolved surface after every change until
// the surface is removed or the client leaves.
func (s *Server) handleSurfaceStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "surfaceID")
	ctx := r.Context()

	changes, err := s.surfaces.Subscribe(ctx, id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, surface.ErrSurfaceNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer s.metrics.SSEClientConnected(ctx)()

	var seq int64
	send := func() bool {
		snap, ok := s.surfaces.Get(id)
		if !ok {
			return false
		}
		seq++
		return sw.WriteEnvelope(newSurfaceView(snap), sse.FormatOptions{ID: strconv.FormatInt(seq, 10)}) == nil
	}
	if !send() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok || change.Status == surface.StatusDeleted {
				return
			}
			if !send() {
				return
			}
		}
	}
}
