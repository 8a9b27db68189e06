package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ravi-parthasarathy/agentblocks/pkg/store"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Store.List())
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var body store.Workflow
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	wf, err := s.cfg.Store.Create(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.cfg.Logger.Info("workflow created", "workflow", wf.ID, "name", wf.Name)
	s.writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.cfg.Store.Get(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var patch store.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	wf, err := s.cfg.Store.Update(mux.Vars(r)["id"], patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.Delete(mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var n workflow.Node
	if err := decodeBody(w, r, &n); err != nil {
		s.fail(w, r, err)
		return
	}
	added, err := s.cfg.Store.AddNode(mux.Vars(r)["id"], n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cascade, _ := strconv.ParseBool(r.URL.Query().Get("cascade"))
	if err := s.cfg.Store.DeleteNode(vars["id"], vars["nodeID"], cascade); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddConnection(w http.ResponseWriter, r *http.Request) {
	var c workflow.Connection
	if err := decodeBody(w, r, &c); err != nil {
		s.fail(w, r, err)
		return
	}
	added, err := s.cfg.Store.AddConnection(mux.Vars(r)["id"], c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.cfg.Store.DeleteConnection(vars["id"], vars["connID"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
