package codegen

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ravi-parthasarathy/agentblocks/pkg/definitions"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// KindReference marks a value that is an identifier rather than a literal.
const KindReference LiteralKind = "reference"

// Context is what an emitter sees while emitting one node: the node's
// statements, plus access to the compilation's resolver and catalogs.
type Context struct {
	c     *compilation
	node  *workflow.Node
	lines []string
	bound []slotKey
}

// Language returns the target language strategy.
func (ctx *Context) Language() Language { return ctx.c.lang }

// Target returns the target being compiled.
func (ctx *Context) Target() Target { return ctx.c.lang.Target() }

// Graph returns the workflow being compiled.
func (ctx *Context) Graph() *workflow.Graph { return ctx.c.g }

// Definitions returns the definition catalog in effect.
func (ctx *Context) Definitions() *definitions.Catalog { return ctx.c.opts.defs }

// Logger returns the compilation logger.
func (ctx *Context) Logger() *slog.Logger { return ctx.c.log }

// Node returns the node being emitted.
func (ctx *Context) Node() *workflow.Node { return ctx.node }

// Write appends statements verbatim.
func (ctx *Context) Write(lines ...string) { ctx.lines = append(ctx.lines, lines...) }

// Comment appends a comment line.
func (ctx *Context) Comment(text string) { ctx.Write(ctx.c.lang.Comment(text)) }

// Render applies the language's rule to data and appends the result.
func (ctx *Context) Render(rule string, data map[string]any) error {
	lines, err := ctx.c.rule(rule, data)
	if err != nil {
		return err
	}
	ctx.Write(lines...)
	return nil
}

// Require adds imports to the program.
func (ctx *Context) Require(imports ...string) {
	for _, imp := range imports {
		ctx.c.imports[imp] = true
	}
}

// Depend records an external package the program needs.
func (ctx *Context) Depend(deps ...string) {
	for _, d := range deps {
		ctx.c.requires[d] = true
	}
}

// Helper places a named helper function once in the program. A body of ""
// looks the helper up in the language.
func (ctx *Context) Helper(name, body string) error {
	if body == "" {
		return ctx.c.useHelper(name)
	}
	if _, done := ctx.c.helpers[name]; !done {
		ctx.c.helpers[name] = body
	}
	return nil
}

// Warn records a warning diagnostic against the current node.
func (ctx *Context) Warn(format string, args ...any) {
	ctx.c.diag(ctx.node.ID, workflow.SeverityWarning, fmt.Sprintf(format, args...))
}

// Ident returns an identifier unique to this node, derived from its id and
// suffix.
func (ctx *Context) Ident(suffix string) string {
	base := ctx.node.ID
	if suffix != "" {
		base += "_" + suffix
	}
	return ctx.Unique(base)
}

// Unique returns an identifier derived from base that no other node uses.
func (ctx *Context) Unique(base string) string {
	return ctx.c.res.Claim(ctx.node.ID, base, false)
}

// Name sanitizes a user-chosen variable name. Nodes that pick the same name
// share the variable.
func (ctx *Context) Name(name string) string {
	return ctx.c.res.Claim(ctx.node.ID, name, true)
}

// Bind publishes ident as the value of the given output slots and declares
// it in the current scope.
func (ctx *Context) Bind(ident string, slots ...string) {
	ctx.Publish(ident, slots...)
	ctx.c.res.Declare(ident)
}

// Publish makes ident the value of the given output slots in the current
// scope without declaring the name.
func (ctx *Context) Publish(ident string, slots ...string) {
	for _, slot := range slots {
		ctx.c.res.Bind(ctx.node.ID, slot, ident)
		ctx.bound = append(ctx.bound, slotKey{ctx.node.ID, slot})
	}
}

// PublishLocal makes ident the value of the given output slots for nodes
// nested in the current node's body only, as with loop variables.
func (ctx *Context) PublishLocal(ident string, slots ...string) {
	for _, slot := range slots {
		ctx.c.res.BindLocal(ctx.node.ID, slot, ident)
		ctx.bound = append(ctx.bound, slotKey{ctx.node.ID, slot})
	}
}

// BindDebug is Bind for values that have no plain display form in the target
// (lists, optional values); printing them uses a debug format.
func (ctx *Context) BindDebug(ident string, slots ...string) {
	ctx.Bind(ident, slots...)
	ctx.c.res.MarkDebug(ident)
}

// Declare records name in the current scope.
func (ctx *Context) Declare(name string) { ctx.c.res.Declare(name) }

// Declared reports whether name is visible in the current scope.
func (ctx *Context) Declared(name string) bool { return ctx.c.res.Declared(name) }

// IsDebug reports whether ident was bound with BindDebug.
func (ctx *Context) IsDebug(ident string) bool { return ctx.c.res.IsDebug(ident) }

func (ctx *Context) rollback() {
	for _, k := range ctx.bound {
		ctx.c.res.Unbind(k.node, k.slot)
	}
	ctx.bound = nil
}

// Input returns the identifier feeding slot through a connection. When
// primary is set and the node leaves the slot's property empty, a connection
// to the generic "input" slot also counts; otherwise such a connection only
// orders the two nodes. The second result is false when nothing usable is
// connected.
func (ctx *Context) Input(slot string, primary bool) (string, bool, error) {
	conn := ctx.connection(slot)
	if conn == nil && primary && slot != workflow.DefaultInput && strings.TrimSpace(ctx.node.Prop(slot)) == "" {
		conn = ctx.connection(workflow.DefaultInput)
	}
	if conn == nil {
		return "", false, nil
	}
	src := conn.SourceNode
	active := ctx.c.active[src]
	if !ctx.c.emitted[src] && !active {
		reason := "producer has not been emitted yet"
		if ctx.c.failed[src] {
			reason = "producer could not be generated"
		}
		return "", false, &ResolutionError{NodeID: ctx.node.ID, Source: src, Slot: conn.Output(), Reason: reason}
	}
	if id, ok := ctx.c.res.Lookup(src, conn.Output()); ok {
		if !active && !ctx.c.res.InScope(src, conn.Output()) {
			return "", false, &ResolutionError{NodeID: ctx.node.ID, Source: src, Slot: conn.Output(), Reason: "value is declared inside a block that is not visible here"}
		}
		return id, true, nil
	}
	if active {
		return "", false, &ResolutionError{NodeID: ctx.node.ID, Source: src, Slot: conn.Output(), Reason: "value is not available inside the producer's own body"}
	}
	// The producer publishes no values; the connection only orders the two nodes.
	return "", false, nil
}

// connection returns the first connection into the current node's slot.
func (ctx *Context) connection(slot string) *workflow.Connection {
	for _, conn := range ctx.c.g.Connections {
		if conn == nil || conn.TargetNode != ctx.node.ID || conn.Input() != slot {
			continue
		}
		if _, ok := ctx.c.g.Node(conn.SourceNode); !ok {
			continue
		}
		return conn
	}
	return nil
}

// Value resolves a free-text property to an expression: placeholders become
// interpolation, then a connection to the property's slot wins, then a bare
// name already in scope, then a literal formatted with hint.
func (ctx *Context) Value(prop, hint string, primary bool) (Literal, error) {
	return ctx.value(prop, ctx.node.Prop(prop), hint, primary)
}

func (ctx *Context) value(prop, raw, hint string, primary bool) (Literal, error) {
	if HasPlaceholders(raw) && hint != "number" && hint != "boolean" {
		return ctx.c.lang.FormatLiteral(raw, ""), nil
	}
	if id, ok, err := ctx.Input(prop, primary); err != nil {
		return Literal{}, err
	} else if ok {
		return Literal{Text: id, Kind: KindReference}, nil
	}
	if name := strings.TrimSpace(raw); IsIdentifier(name) && ctx.Declared(name) {
		return Literal{Text: name, Kind: KindReference}, nil
	}
	return ctx.c.lang.FormatLiteral(raw, hint), nil
}

// Expr resolves a property that holds target-language code: a connection
// wins, otherwise the text is used as written. Empty text yields def.
func (ctx *Context) Expr(prop string, primary bool, def string) (string, error) {
	return ctx.expr(prop, ctx.node.Prop(prop), primary, def)
}

func (ctx *Context) expr(prop, raw string, primary bool, def string) (string, error) {
	if id, ok, err := ctx.Input(prop, primary); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	if text := strings.TrimSpace(raw); text != "" {
		return text, nil
	}
	return def, nil
}

// Children returns the nodes nested directly in the current node that keep
// returns true for. A nil keep selects all of them.
func (ctx *Context) Children(keep func(*workflow.Node) bool) []*workflow.Node {
	var out []*workflow.Node
	for _, n := range ctx.c.g.ScopeMembers(ctx.node.ID, ctx.c.opts.orphans) {
		if keep == nil || keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// Block describes a nested body to compile.
type Block struct {
	Nodes []*workflow.Node
	// Function opens a new scope in every language, not only in block
	// scoped ones.
	Function bool
	// Declare lists names bound by the construct itself, such as loop
	// variables, visible only inside the body.
	Declare []string
	// Epilogue runs inside the body scope after the nodes are emitted.
	Epilogue func(body *Context) error
}

// Body compiles b and returns its statements indented one level and joined
// by newlines. A body with no statements gets the language's filler.
func (ctx *Context) Body(b Block) (string, error) {
	c := ctx.c
	if c.open[ctx.node.ID] {
		return "", fmt.Errorf("body of node %q is already being compiled", ctx.node.ID)
	}
	c.open[ctx.node.ID] = true
	defer delete(c.open, ctx.node.ID)

	switch {
	case b.Function && !c.lang.BlockScoped():
		c.res.PushFunction()
		defer c.res.Pop()
	case b.Function || c.lang.BlockScoped():
		c.res.Push()
		defer c.res.Pop()
	}
	for _, name := range b.Declare {
		c.res.Declare(name)
	}

	var lines []string
	c.emitScope(ctx.node.ID, b.Nodes, &lines)
	if b.Epilogue != nil {
		inner := &Context{c: c, node: ctx.node}
		if err := b.Epilogue(inner); err != nil {
			return "", err
		}
		lines = append(lines, inner.lines...)
		ctx.bound = append(ctx.bound, inner.bound...)
	}

	if onlyComments(lines, c.lang) {
		if filler := c.lang.EmptyBody(); filler != "" {
			lines = append(lines, filler)
		} else if len(lines) == 0 {
			lines = append(lines, c.lang.Comment("empty block"))
		}
	}
	return strings.Join(indentLines(lines, c.lang.Indent()), "\n"), nil
}

func onlyComments(lines []string, lang Language) bool {
	prefix := strings.TrimSpace(lang.Comment(""))
	for _, l := range lines {
		if !strings.HasPrefix(strings.TrimSpace(l), prefix) {
			return false
		}
	}
	return true
}
