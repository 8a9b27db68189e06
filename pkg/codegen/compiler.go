// Package codegen compiles a workflow graph into the source of a runnable
// program. One orchestrator drives every target; a Language strategy
// supplies literal spelling, emission rules and program layout.
package codegen

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ravi-parthasarathy/agentblocks/pkg/definitions"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// ErrNilGraph is returned when Compile is handed no graph.
var ErrNilGraph = errors.New("codegen: nil graph")

// Output is the result of a compilation.
type Output struct {
	Source       string               `json:"source"`
	Target       Target               `json:"target"`
	Imports      []string             `json:"imports"`
	Helpers      []string             `json:"helpers,omitempty"`
	Dependencies []string             `json:"dependencies,omitempty"`
	Diagnostics  []workflow.LintError `json:"diagnostics,omitempty"`
	// Incomplete is set when some node could not be placed or generated
	// faithfully. The source is still complete text and still runs.
	Incomplete bool `json:"incomplete"`
}

// HasErrors reports whether any diagnostic has error severity.
func (o *Output) HasErrors() bool { return workflow.HasErrors(o.Diagnostics) }

type options struct {
	target   Target
	orphans  workflow.OrphanPolicy
	defs     *definitions.Catalog
	registry *Registry
	logger   *slog.Logger
	header   []string
}

// Option configures Compile.
type Option func(*options)

// WithTarget selects the output language. The default is TargetPython.
func WithTarget(t Target) Option { return func(o *options) { o.target = t } }

// WithOrphanPolicy selects how nodes with an invalid parent are handled.
func WithOrphanPolicy(p workflow.OrphanPolicy) Option { return func(o *options) { o.orphans = p } }

// WithDefinitions replaces the built-in definition catalog used for node
// types that have no registered emitter.
func WithDefinitions(c *definitions.Catalog) Option { return func(o *options) { o.defs = c } }

// WithRegistry replaces the emitter registry.
func WithRegistry(r *Registry) Option { return func(o *options) { o.registry = r } }

// WithLogger sets the logger for debug output.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithHeader adds comment lines to the top of the program.
func WithHeader(lines ...string) Option {
	return func(o *options) { o.header = append(o.header, lines...) }
}

// compilation holds everything one Compile call mutates.
type compilation struct {
	g        *workflow.Graph
	lang     Language
	opts     *options
	log      *slog.Logger
	res      *Resolver
	imports  map[string]bool
	helpers  map[string]string
	requires map[string]bool
	diags    []workflow.LintError

	incomplete bool
	emitted    map[string]bool
	failed     map[string]bool
	reported   map[string]bool
	active     map[string]bool
	open       map[string]bool
}

// Compile turns g into program source. Problems in the workflow never make
// it fail: they become diagnostics, placeholder comments, and Incomplete.
// Errors are returned only for a nil graph or an unknown target.
func Compile(g *workflow.Graph, opts ...Option) (*Output, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	o := &options{target: TargetPython, orphans: workflow.OrphanTopLevel}
	for _, opt := range opts {
		opt(o)
	}
	lang, err := languageFor(o.target)
	if err != nil {
		return nil, err
	}
	if o.defs == nil {
		o.defs = definitions.Builtin()
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	c := &compilation{
		g:        g,
		lang:     lang,
		opts:     o,
		log:      o.logger,
		res:      NewResolver(lang),
		imports:  make(map[string]bool),
		helpers:  make(map[string]string),
		requires: make(map[string]bool),
		emitted:  make(map[string]bool),
		failed:   make(map[string]bool),
		reported: make(map[string]bool),
		active:   make(map[string]bool),
		open:     make(map[string]bool),
	}
	return c.run(), nil
}

// CompileDocument compiles a document, naming the workflow in the header
// when its metadata carries a name.
func CompileDocument(doc *workflow.Document, opts ...Option) (*Output, error) {
	if doc == nil {
		return nil, ErrNilGraph
	}
	if doc.Metadata != nil && doc.Metadata.Name != "" {
		opts = append([]Option{WithHeader("Workflow: " + doc.Metadata.Name)}, opts...)
	}
	return Compile(doc.Graph(), opts...)
}

func (c *compilation) run() *Output {
	header := append([]string{"Generated by AgentBlocks"}, c.opts.header...)
	out := &Output{Target: c.lang.Target()}

	if len(c.g.IDs()) == 0 {
		out.Source = c.lang.EmptyProgram(header)
		return out
	}
	for _, imp := range c.lang.StandardImports() {
		c.imports[imp] = true
	}
	c.checkConnections()

	members := c.g.ScopeMembers("", c.opts.orphans)
	c.reportOrphans()
	var body []string
	c.emitScope("", members, &body)
	c.checkCompleteness()

	if c.incomplete {
		header = append(header, "WARNING: INCOMPLETE - some nodes could not be generated; see the compiler diagnostics")
	}
	out.Imports = sortedSet(c.imports)
	out.Dependencies = sortedSet(c.requires)
	names := make([]string, 0, len(c.helpers))
	for name := range c.helpers {
		names = append(names, name)
	}
	sort.Strings(names)
	bodies := make([]string, len(names))
	for i, name := range names {
		bodies[i] = c.helpers[name]
	}
	out.Helpers = names
	out.Diagnostics = c.diags
	out.Incomplete = c.incomplete
	out.Source = c.lang.Program(Program{
		Header:       header,
		Imports:      out.Imports,
		Dependencies: out.Dependencies,
		Helpers:      bodies,
		Body:         body,
	})
	c.log.Debug("compiled workflow", "target", out.Target, "nodes", len(c.emitted), "diagnostics", len(out.Diagnostics), "incomplete", out.Incomplete)
	return out
}

// emitScope sequences one scope's members and emits them into out. Members
// the sequencer could not order are appended in canvas order.
func (c *compilation) emitScope(scopeID string, members []*workflow.Node, out *[]string) {
	ordered, err := c.g.SequenceScope(members)
	var cyc *workflow.CycleError
	if errors.As(err, &cyc) {
		c.incomplete = true
		c.diag(scopeID, workflow.SeverityError, cyc.Error())
		for _, id := range cyc.NodeIDs {
			if n, ok := c.g.Node(id); ok {
				ordered = append(ordered, n)
			}
		}
	}
	for _, n := range ordered {
		c.emitNode(n, out)
	}
}

func (c *compilation) emitNode(n *workflow.Node, out *[]string) {
	if c.emitted[n.ID] || c.failed[n.ID] {
		return
	}
	c.active[n.ID] = true
	defer delete(c.active, n.ID)
	ctx := &Context{c: c, node: n}
	e := c.emitterFor(n)
	c.log.Debug("emitting node", "node", n.ID, "type", n.Type)
	if err := e.Emit(ctx, n); err != nil {
		ctx.rollback()
		c.failed[n.ID] = true
		c.incomplete = true
		msg := err.Error()
		if rerr, ok := err.(*ResolutionError); ok && rerr.NodeID == n.ID {
			msg = rerr.Detail()
		}
		c.diag(n.ID, workflow.SeverityError, msg)
		lines, perr := c.rule("placeholder", map[string]any{
			"ID":     oneLine(n.ID),
			"Type":   oneLine(string(n.Type)),
			"Reason": oneLine(msg),
		})
		if perr != nil {
			lines = []string{c.lang.Comment(fmt.Sprintf("Node %s could not be generated", n.ID))}
		}
		*out = append(*out, lines...)
		return
	}
	c.emitted[n.ID] = true
	*out = append(*out, ctx.lines...)
}

func (c *compilation) emitterFor(n *workflow.Node) Emitter {
	if e, err := c.opts.registry.Get(n.Type); err == nil {
		return e
	}
	if def, ok := c.opts.defs.Get(string(n.Type)); ok {
		if tmpl, ok := def.Template(string(c.lang.Target())); ok {
			return catalogEmitter{def: def, tmpl: tmpl}
		}
	}
	return EmitterFunc(emitUnsupported)
}

// rule renders a language rule and records what the rule needs.
func (c *compilation) rule(name string, data map[string]any) ([]string, error) {
	r, ok := c.lang.Rule(name)
	if !ok {
		return nil, fmt.Errorf("%s has no rule for %q", c.lang.Target(), name)
	}
	lines, err := r.render(data)
	if err != nil {
		return nil, fmt.Errorf("render %s rule %q: %w", c.lang.Target(), name, err)
	}
	for _, imp := range r.Imports {
		c.imports[imp] = true
	}
	for _, req := range r.Requires {
		c.requires[req] = true
	}
	for _, h := range r.Helpers {
		if err := c.useHelper(h); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func (c *compilation) useHelper(name string) error {
	if _, done := c.helpers[name]; done {
		return nil
	}
	body, ok := c.lang.Helper(name)
	if !ok {
		return fmt.Errorf("%s has no helper %q", c.lang.Target(), name)
	}
	c.helpers[name] = body
	return nil
}

func (c *compilation) diag(nodeID string, sev workflow.Severity, msg string) {
	c.diags = append(c.diags, workflow.LintError{NodeID: nodeID, Severity: sev, Message: msg})
}

// checkConnections reports connections that cannot contribute to the
// program because an endpoint is missing.
func (c *compilation) checkConnections() {
	for _, conn := range c.g.Connections {
		if conn == nil {
			continue
		}
		for _, end := range []string{conn.SourceNode, conn.TargetNode} {
			if _, ok := c.g.Node(end); !ok {
				c.diag(conn.TargetNode, workflow.SeverityWarning, fmt.Sprintf("ignoring connection %s -> %s: node %q does not exist", conn.SourceNode, conn.TargetNode, end))
				break
			}
		}
	}
}

// reportOrphans records one diagnostic per orphan. Under OrphanError the
// orphan is left out of the program, which makes the output incomplete.
func (c *compilation) reportOrphans() {
	for _, id := range c.g.IDs() {
		n, _ := c.g.Node(id)
		reason := c.g.OrphanReason(n)
		if reason == "" {
			continue
		}
		if c.opts.orphans != workflow.OrphanError {
			c.diag(id, workflow.SeverityWarning, "orphaned node moved to top level: "+reason)
			continue
		}
		c.incomplete = true
		c.reported[id] = true
		c.diag(id, workflow.SeverityError, "orphaned node excluded: "+reason)
	}
}

// checkCompleteness reports every node that was neither emitted nor already
// accounted for.
func (c *compilation) checkCompleteness() {
	for _, id := range c.g.IDs() {
		if c.emitted[id] || c.failed[id] || c.reported[id] {
			continue
		}
		n, _ := c.g.Node(id)
		c.incomplete = true
		c.diag(id, workflow.SeverityWarning, fmt.Sprintf("node not emitted: enclosing scope %q was not generated", n.ParentID))
	}
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
