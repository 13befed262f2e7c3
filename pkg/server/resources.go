package server

import (
	"fmt"
	"net/http"
	"sort"

	"mercator-hq/ganymede/pkg/registry"
)

type resourceListResponse struct {
	Resources []*registry.EphemeralResource `json:"resources"`
	Count     int                           `json:"count"`
}

// handleListResources reports tracked resources, optionally filtered by
// one or more repeated state parameters.
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	var states []registry.ResourceState
	for _, v := range r.URL.Query()["state"] {
		state := registry.ResourceState(v)
		if !state.Valid() {
			writeInvalid(w, r, fmt.Errorf("unknown resource state %q", v))
			return
		}
		states = append(states, state)
	}

	resources, err := s.engine.Resources(r.Context(), states...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })

	if resources == nil {
		resources = []*registry.EphemeralResource{}
	}
	writeJSON(w, http.StatusOK, resourceListResponse{Resources: resources, Count: len(resources)})
}

// handleGetResource reports one resource by id, destroyed ones
// included as long as storage retains them.
func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Resource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resourceResponse{Resource: res})
}
