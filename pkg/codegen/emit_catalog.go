package codegen

import (
	"fmt"
	"sort"

	"github.com/ravi-parthasarathy/agentblocks/pkg/definitions"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// catalogEmitter renders node types that come from the definition catalog.
//
// Template variables:
//
//	id, var          node id and an identifier derived from it
//	<prop>           resolved expression for each property
//	raw_<prop>       property text as written (also raw.<prop>)
//	quoted_<prop>    property text as a string literal (also quoted.<prop>)
//	out_<slot>       identifier bound to each output slot (also out.<slot>)
type catalogEmitter struct {
	def  *definitions.Definition
	tmpl *definitions.CodeTemplate
}

func propertyHint(p *definitions.Property) string {
	switch p.Type {
	case definitions.TypeNumber, definitions.TypeInteger:
		return "number"
	case definitions.TypeBoolean:
		return "boolean"
	case definitions.TypeString, definitions.TypeSelect:
		return "string"
	case definitions.TypeCode:
		return "code"
	}
	return ""
}

func (e catalogEmitter) Emit(ctx *Context, n *workflow.Node) error {
	lang := ctx.Language()
	props := e.def.Defaults()
	for _, p := range e.def.Properties {
		if _, ok := props[p.Name]; !ok {
			props[p.Name] = ""
		}
	}
	for k, v := range n.Properties {
		props[k] = v
	}
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)
	primary := ""
	if len(e.def.Properties) > 0 {
		primary = e.def.Properties[0].Name
	}

	vars := map[string]any{"id": n.ID, "var": ctx.Ident("")}
	raw, quoted, out := map[string]any{}, map[string]any{}, map[string]any{}
	for _, name := range names {
		text := workflow.Stringify(props[name])
		hint := ""
		if p, ok := e.def.Property(name); ok {
			hint = propertyHint(p)
		}
		var expr string
		if hint == "code" {
			v, err := ctx.expr(name, text, name == primary, lang.NoneLiteral())
			if err != nil {
				return err
			}
			expr = v
		} else {
			v, err := ctx.value(name, text, hint, name == primary)
			if err != nil {
				return err
			}
			expr = v.Text
		}
		vars[name] = expr
		vars["raw_"+name] = text
		vars["quoted_"+name] = lang.StringLiteral(text)
		raw[name] = text
		quoted[name] = lang.StringLiteral(text)
	}
	idents := make([]string, len(e.def.Outputs))
	for i, slot := range e.def.Outputs {
		idents[i] = ctx.Ident(slot)
		vars["out_"+slot] = idents[i]
		out[slot] = idents[i]
	}
	vars["raw"], vars["quoted"], vars["out"] = raw, quoted, out

	src, err := e.tmpl.Render(vars)
	if err != nil {
		return fmt.Errorf("render %s template for node type %q: %w", lang.Target(), e.def.Type, err)
	}
	ctx.Write(nonBlankLines(src)...)
	ctx.Require(e.tmpl.Imports...)
	ctx.Depend(e.tmpl.Crates...)
	for _, fn := range e.tmpl.FunctionNames() {
		if err := ctx.Helper(e.def.Type+"."+fn, e.tmpl.Functions[fn]); err != nil {
			return err
		}
	}

	hasOutput := false
	for _, slot := range e.def.Outputs {
		hasOutput = hasOutput || slot == workflow.DefaultOutput
	}
	for i, slot := range e.def.Outputs {
		if i == 0 && !hasOutput {
			ctx.Bind(idents[i], slot, workflow.DefaultOutput)
			continue
		}
		ctx.Bind(idents[i], slot)
	}
	return nil
}
