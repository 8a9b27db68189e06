package codegen

import (
	"encoding/json"
	"strings"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// nameProp returns the sanitized, shared variable name a node declares in
// prop, falling back to the node id.
func nameProp(ctx *Context, n *workflow.Node, prop string) string {
	raw := strings.TrimSpace(n.Prop(prop))
	if raw == "" {
		raw = n.ID
	}
	return ctx.Name(raw)
}

func emitVariable(ctx *Context, n *workflow.Node) error {
	name := nameProp(ctx, n, "name")
	hint := n.Prop("type")
	if strings.EqualFold(hint, "auto") {
		hint = ""
	}
	value, err := ctx.Value("value", hint, true)
	if err != nil {
		return err
	}
	if err := ctx.Render("variable", map[string]any{
		"Name":     name,
		"Value":    value.Text,
		"Kind":     string(value.Kind),
		"Declared": ctx.Declared(name),
	}); err != nil {
		return err
	}
	ctx.Bind(name, "output", "value")
	return nil
}

func emitPrint(ctx *Context, n *workflow.Node) error {
	msg, err := ctx.Value("message", "", true)
	if err != nil {
		return err
	}
	return ctx.Render("print", map[string]any{
		"Message": msg.Text,
		"Empty":   msg.Kind == KindNone,
		"Debug":   msg.Kind == KindReference && ctx.IsDebug(msg.Text),
	})
}

func emitAssignment(ctx *Context, n *workflow.Node) error {
	name := nameProp(ctx, n, "variable")
	expr, err := ctx.Expr("expression", true, ctx.Language().NoneLiteral())
	if err != nil {
		return err
	}
	if err := ctx.Render("assignment", map[string]any{
		"Name":     name,
		"Expr":     expr,
		"Declared": ctx.Declared(name),
	}); err != nil {
		return err
	}
	ctx.Bind(name, "output")
	return nil
}

// emitUnsupported keeps a node the compiler has no rule for visible in the
// output as an inert comment.
func emitUnsupported(ctx *Context, n *workflow.Node) error {
	props := "{}"
	if len(n.Properties) > 0 {
		b, err := json.Marshal(n.Properties)
		if err != nil {
			return err
		}
		props = string(b)
	}
	ctx.Warn("unsupported node type %q emitted as a comment", n.Type)
	return ctx.Render("unsupported", map[string]any{
		"ID":    oneLine(n.ID),
		"Type":  oneLine(string(n.Type)),
		"Props": oneLine(props),
	})
}
