// Package export validates a workflow and packages its generated program as
// a downloadable artifact.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
	"github.com/ravi-parthasarathy/agentblocks/pkg/definitions"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// ErrInvalid is returned when a workflow fails pre-export validation.
var ErrInvalid = errors.New("workflow is not exportable")

// Artifact is a file ready to be downloaded.
type Artifact struct {
	Filename    string
	ContentType string
	Content     []byte
	// Output is the compilation the artifact was built from.
	Output *codegen.Output
}

type config struct {
	target  codegen.Target
	orphans workflow.OrphanPolicy
	defs    *definitions.Catalog
	logger  *slog.Logger
}

// Option configures Validate, Export and Bundle.
type Option func(*config)

// WithTarget selects the output language.
func WithTarget(t codegen.Target) Option { return func(c *config) { c.target = t } }

// WithOrphanPolicy selects how orphans are graded and compiled.
func WithOrphanPolicy(p workflow.OrphanPolicy) Option { return func(c *config) { c.orphans = p } }

// WithDefinitions selects the catalog used for property checks and for
// catalog node types.
func WithDefinitions(d *definitions.Catalog) Option { return func(c *config) { c.defs = d } }

// WithLogger sets the logger passed to the compiler.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

func newConfig(opts []Option) *config {
	c := &config{target: codegen.TargetPython, orphans: workflow.OrphanTopLevel}
	for _, o := range opts {
		o(c)
	}
	if c.defs == nil {
		c.defs = definitions.Builtin()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Validate checks everything export requires: a name, at least one node, and
// a structurally sound graph (endpoints exist, no data-flow cycle, valid
// properties).
func Validate(g *workflow.Graph, meta *workflow.Metadata, opts ...Option) []workflow.LintError {
	c := newConfig(opts)
	var errs []workflow.LintError
	if meta == nil || strings.TrimSpace(meta.Name) == "" {
		errs = append(errs, workflow.LintError{Severity: workflow.SeverityError, Message: "workflow name is required"})
	}
	if g == nil || len(g.IDs()) == 0 {
		errs = append(errs, workflow.LintError{Severity: workflow.SeverityError, Message: "workflow has no nodes"})
		return errs
	}
	return append(errs, workflow.Validate(g, workflow.WithOrphans(c.orphans), workflow.WithProperties(c.defs))...)
}

func check(g *workflow.Graph, meta *workflow.Metadata, opts []Option) error {
	errs := Validate(g, meta, opts...)
	if !workflow.HasErrors(errs) {
		return nil
	}
	var msgs []string
	for _, e := range errs {
		if e.Severity == workflow.SeverityError {
			msgs = append(msgs, e.Error())
		}
	}
	return fmt.Errorf("%w:\n  %s", ErrInvalid, strings.Join(msgs, "\n  "))
}

// Export validates g and compiles it into a single source file named after
// the workflow.
func Export(g *workflow.Graph, meta *workflow.Metadata, opts ...Option) (*Artifact, error) {
	if err := check(g, meta, opts); err != nil {
		return nil, err
	}
	c := newConfig(opts)
	out, err := compile(g, meta, c)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Filename:    Slug(meta.Name) + c.target.Extension(),
		ContentType: c.target.ContentType(),
		Content:     []byte(out.Source),
		Output:      out,
	}, nil
}

func compile(g *workflow.Graph, meta *workflow.Metadata, c *config) (*codegen.Output, error) {
	header := []string{"Workflow: " + meta.Name}
	if meta.Description != "" {
		header = append(header, meta.Description)
	}
	if meta.Version != "" {
		header = append(header, "Version: "+meta.Version)
	}
	if meta.Author != "" {
		header = append(header, "Author: "+meta.Author)
	}
	out, err := codegen.Compile(g,
		codegen.WithTarget(c.target),
		codegen.WithOrphanPolicy(c.orphans),
		codegen.WithDefinitions(c.defs),
		codegen.WithLogger(c.logger),
		codegen.WithHeader(header...),
	)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", meta.Name, err)
	}
	return out, nil
}

// Manifest describes the contents of a bundle.
type Manifest struct {
	Name         string               `json:"name"`
	Description  string               `json:"description,omitempty"`
	Version      string               `json:"version,omitempty"`
	Author       string               `json:"author,omitempty"`
	Target       codegen.Target       `json:"target"`
	Program      string               `json:"program"`
	Workflow     string               `json:"workflow"`
	Nodes        int                  `json:"nodes"`
	Connections  int                  `json:"connections"`
	Imports      []string             `json:"imports"`
	Dependencies []string             `json:"dependencies,omitempty"`
	Diagnostics  []workflow.LintError `json:"diagnostics,omitempty"`
}

// Bundle validates g and produces a zip archive holding the generated
// program, the workflow document and a manifest.
func Bundle(g *workflow.Graph, meta *workflow.Metadata, opts ...Option) (*Artifact, error) {
	art, err := Export(g, meta, opts...)
	if err != nil {
		return nil, err
	}
	slug := Slug(meta.Name)
	doc := workflow.Document{Nodes: g.Nodes, Connections: g.Connections, Metadata: meta}
	docJSON, err := workflow.Encode(&doc, workflow.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}
	manifest := Manifest{
		Name:         meta.Name,
		Description:  meta.Description,
		Version:      meta.Version,
		Author:       meta.Author,
		Target:       art.Output.Target,
		Program:      art.Filename,
		Workflow:     "workflow.json",
		Nodes:        len(g.IDs()),
		Connections:  len(g.Connections),
		Imports:      art.Output.Imports,
		Dependencies: art.Output.Dependencies,
		Diagnostics:  art.Output.Diagnostics,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct {
		name string
		data []byte
	}{
		{art.Filename, art.Content},
		{"workflow.json", docJSON},
		{"manifest.json", append(manifestJSON, '\n')},
	}
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: slug + "/" + f.name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("bundle %s: %w", f.name, err)
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, fmt.Errorf("bundle %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	return &Artifact{
		Filename:    slug + ".zip",
		ContentType: "application/zip",
		Content:     buf.Bytes(),
		Output:      art.Output,
	}, nil
}

// Slug turns a workflow name into a file name stem.
func Slug(name string) string {
	var sb strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			sb.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && sb.Len() > 0 {
			sb.WriteByte('_')
			underscore = true
		}
	}
	out := strings.TrimRight(sb.String(), "_")
	if out == "" {
		return "workflow"
	}
	return out
}
