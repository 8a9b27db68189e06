package server

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
	"github.com/ravi-parthasarathy/agentblocks/pkg/export"
	"github.com/ravi-parthasarathy/agentblocks/pkg/runner"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

type validateResponse struct {
	Valid  bool                 `json:"valid"`
	Errors []workflow.LintError `json:"errors"`
}

type executeResponse struct {
	WorkflowID string `json:"workflow_id"`
	Code       string `json:"code"`
	*runner.Result
}

// target reads ?target=, falling back to the configured default.
func (s *Server) target(r *http.Request) (codegen.Target, error) {
	if t := r.URL.Query().Get("target"); t != "" {
		return codegen.ParseTarget(t)
	}
	return s.cfg.Target, nil
}

func (s *Server) compile(r *http.Request, doc *workflow.Document, target codegen.Target) (*codegen.Output, error) {
	return codegen.CompileDocument(doc,
		codegen.WithTarget(target),
		codegen.WithOrphanPolicy(s.cfg.Orphans),
		codegen.WithDefinitions(s.cfg.Definitions),
		codegen.WithLogger(s.cfg.Logger.With("path", r.URL.Path)),
	)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	wf, err := s.cfg.Store.Get(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	errs := workflow.Validate(wf.Graph(),
		workflow.WithOrphans(s.cfg.Orphans),
		workflow.WithProperties(s.cfg.Definitions),
	)
	if errs == nil {
		errs = []workflow.LintError{}
	}
	s.writeJSON(w, http.StatusOK, validateResponse{Valid: !workflow.HasErrors(errs), Errors: errs})
}

func (s *Server) handleCode(w http.ResponseWriter, r *http.Request) {
	target, err := s.target(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	wf, err := s.cfg.Store.Get(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.compile(r, wf.Document(), target)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	target, err := s.target(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var doc workflow.Document
	if err := decodeBody(w, r, &doc); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.compile(r, &doc, target)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleExport serves the generated program as a download. ?format=bundle
// returns a zip archive instead.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	target, err := s.target(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	wf, err := s.cfg.Store.Get(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts := []export.Option{
		export.WithTarget(target),
		export.WithOrphanPolicy(s.cfg.Orphans),
		export.WithDefinitions(s.cfg.Definitions),
		export.WithLogger(s.cfg.Logger),
	}
	build := export.Export
	if r.URL.Query().Get("format") == "bundle" {
		build = export.Bundle
	}
	art, err := build(wf.Graph(), wf.Metadata(), opts...)
	if err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:  err.Error(),
			Errors: export.Validate(wf.Graph(), wf.Metadata(), opts...),
		})
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": art.Filename}))
	w.Header().Set("Content-Length", fmt.Sprint(len(art.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Content)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AllowExecute {
		s.writeError(w, http.StatusForbidden, fmt.Errorf("workflow execution is disabled on this server"))
		return
	}
	id := mux.Vars(r)["id"]
	wf, err := s.cfg.Store.Get(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.compile(r, wf.Document(), codegen.TargetPython)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.cfg.Logger.Info("executing workflow", "workflow", id)
	res, err := s.cfg.Runner.Run(r.Context(), out)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, executeResponse{WorkflowID: id, Code: out.Source, Result: res})
}
