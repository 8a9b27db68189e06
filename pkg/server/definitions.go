package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleListDefinitions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Definitions.List())
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	typ := mux.Vars(r)["type"]
	d, ok := s.cfg.Definitions.Get(typ)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no definition for node type %q", typ))
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// handleValidateProperties accepts either {"properties": {...}} or the bare
// property map.
func (s *Server) handleValidateProperties(w http.ResponseWriter, r *http.Request) {
	typ := mux.Vars(r)["type"]
	if _, ok := s.cfg.Definitions.Get(typ); !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no definition for node type %q", typ))
		return
	}
	var body map[string]any
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	props := body
	if inner, ok := body["properties"].(map[string]any); ok && len(body) == 1 {
		props = inner
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Definitions.Validate(typ, props))
}
