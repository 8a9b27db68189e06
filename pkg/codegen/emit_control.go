package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// condition resolves a node's condition: a connected value, a translated
// expression in the small boolean grammar, or the raw text.
func condition(ctx *Context, prop string) (string, error) {
	if id, ok, err := ctx.Input(prop, true); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	lang := ctx.Language()
	text := strings.TrimSpace(ctx.Node().Prop(prop))
	if text == "" {
		ctx.Warn("empty condition treated as %s", lang.BoolLiteral(true))
		return lang.BoolLiteral(true), nil
	}
	if out, ok := TranslateCondition(lang, text); ok {
		return out, nil
	}
	return text, nil
}

func isElseBranch(n *workflow.Node) bool {
	return strings.EqualFold(strings.TrimSpace(n.Prop("branch")), "else")
}

func emitIf(ctx *Context, n *workflow.Node) error {
	cond, err := condition(ctx, "condition")
	if err != nil {
		return err
	}
	then, err := ctx.Body(Block{Nodes: ctx.Children(func(c *workflow.Node) bool { return !isElseBranch(c) })})
	if err != nil {
		return err
	}
	var otherwise string
	if nodes := ctx.Children(isElseBranch); len(nodes) > 0 {
		if otherwise, err = ctx.Body(Block{Nodes: nodes}); err != nil {
			return err
		}
	}
	return ctx.Render("if", map[string]any{"Cond": cond, "Then": then, "Else": otherwise})
}

// iterable works out what a foreach loops over. Kind is "range" for an
// integer count, "string" for text and "expr" for anything else.
func iterable(ctx *Context, n *workflow.Node) (items, kind string, err error) {
	if id, ok, err := ctx.Input("items", true); err != nil {
		return "", "", err
	} else if ok {
		return id, "expr", nil
	}
	raw := strings.TrimSpace(n.Prop("items"))
	switch {
	case raw == "":
		ctx.Warn("foreach has no items; the loop body never runs")
		return "0", "range", nil
	case IsIdentifier(raw):
		return raw, "expr", nil
	case HasPlaceholders(raw):
		return ctx.Language().FormatLiteral(raw, "string").Text, "string", nil
	}
	if num, isInt, ok := normalizeNumber(raw); ok && isInt {
		return num, "range", nil
	}
	if ctx.Target() == TargetRust && strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		return "vec!" + raw, "expr", nil
	}
	if q := raw[0]; (q == '"' || q == '\'') && len(raw) > 1 && raw[len(raw)-1] == q {
		return ctx.Language().StringLiteral(raw[1 : len(raw)-1]), "string", nil
	}
	return raw, "expr", nil
}

func emitForEach(ctx *Context, n *workflow.Node) error {
	items, kind, err := iterable(ctx, n)
	if err != nil {
		return err
	}
	itemName := strings.TrimSpace(n.Prop("item_var"))
	if itemName == "" {
		itemName = "item"
	}
	item := ctx.Name(itemName)
	ctx.PublishLocal(item, "item", "output")
	declare := []string{item}

	var index string
	if raw := strings.TrimSpace(n.Prop("index_var")); raw != "" {
		index = ctx.Name(raw)
		ctx.PublishLocal(index, "index")
		declare = append(declare, index)
	}

	body, err := ctx.Body(Block{Nodes: ctx.Children(nil), Declare: declare})
	if err != nil {
		return err
	}
	return ctx.Render("foreach", map[string]any{
		"Items":    items,
		"Kind":     kind,
		"ItemVar":  item,
		"IndexVar": index,
		"Body":     body,
	})
}

// defaultMaxIterations caps a while loop that does not set max_iterations.
const defaultMaxIterations = 1000

func emitWhile(ctx *Context, n *workflow.Node) error {
	cond, err := condition(ctx, "condition")
	if err != nil {
		return err
	}
	limit := n.PropInt("max_iterations", defaultMaxIterations)
	if limit <= 0 {
		ctx.Warn("max_iterations %d is not positive; using %d", limit, defaultMaxIterations)
		limit = defaultMaxIterations
	}
	counter := ctx.Ident("iterations")
	ctx.Declare(counter)
	body, err := ctx.Body(Block{Nodes: ctx.Children(nil)})
	if err != nil {
		return err
	}
	warning := fmt.Sprintf("Warning: while loop %s stopped after reaching max_iterations (%d)", n.ID, limit)
	return ctx.Render("while", map[string]any{
		"Counter": counter,
		"Cond":    cond,
		"Max":     strconv.Itoa(limit),
		"Body":    body,
		"Warning": ctx.Language().StringLiteral(warning),
	})
}

// splitNames splits a comma-separated list, dropping empty entries.
func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func emitFunction(ctx *Context, n *workflow.Node) error {
	lang := ctx.Language()
	rawName := strings.TrimSpace(n.Prop("name"))
	if rawName == "" {
		rawName = "my_function"
	}
	name := ctx.Name(rawName)

	var params, args []string
	var note string
	if declared := splitNames(n.Prop("parameters")); len(declared) > 0 {
		if ctx.Target() == TargetRust {
			note = "parameters (" + strings.Join(declared, ", ") + ") are not supported by this target and were ignored"
			ctx.Warn("function parameters are ignored for target %s", ctx.Target())
		} else {
			for _, p := range declared {
				params = append(params, lang.Sanitize(p))
			}
			given := splitNames(n.Prop("arguments"))
			for i := range params {
				if i >= len(given) {
					args = append(args, lang.NoneLiteral())
					continue
				}
				if IsIdentifier(given[i]) && ctx.Declared(given[i]) {
					args = append(args, given[i])
					continue
				}
				args = append(args, lang.FormatLiteral(given[i], "").Text)
			}
		}
	}

	ctx.Declare(name)
	body, err := ctx.Body(Block{
		Nodes:    ctx.Children(nil),
		Function: true,
		Declare:  params,
		Epilogue: func(inner *Context) error {
			if strings.TrimSpace(n.Prop("return")) == "" {
				if _, connected, err := inner.Input("return", false); err != nil || !connected {
					return err
				}
			}
			v, err := inner.Value("return", "", false)
			if err != nil {
				return err
			}
			return inner.Render("return", map[string]any{"Value": v.Text})
		},
	})
	if err != nil {
		return err
	}

	result := ctx.Unique(rawName + "_result")
	if err := ctx.Render("function", map[string]any{
		"Name":      name,
		"Params":    strings.Join(params, ", "),
		"Args":      strings.Join(args, ", "),
		"Body":      body,
		"Result":    result,
		"ParamNote": note,
	}); err != nil {
		return err
	}
	ctx.Bind(result, "output", "result")
	return nil
}
