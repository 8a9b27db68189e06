package codegen

import (
	"strings"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func encoding(ctx *Context, n *workflow.Node) string {
	enc := strings.TrimSpace(n.Prop("encoding"))
	if enc == "" {
		enc = "utf-8"
	}
	return ctx.Language().StringLiteral(enc)
}

func emitReadFile(ctx *Context, n *workflow.Node) error {
	path, err := ctx.Value("path", "string", true)
	if err != nil {
		return err
	}
	content, success, fail := ctx.Ident("content"), ctx.Ident("success"), ctx.Ident("error")
	if err := ctx.Render("read_file", map[string]any{
		"Var":      ctx.Ident(""),
		"Path":     path.Text,
		"Encoding": encoding(ctx, n),
		"Content":  content,
		"Success":  success,
		"Error":    fail,
	}); err != nil {
		return err
	}
	ctx.Bind(content, "content", "output")
	ctx.Bind(success, "success")
	ctx.Bind(fail, "error")
	return nil
}

func emitWriteFile(ctx *Context, n *workflow.Node) error {
	path, err := ctx.Value("path", "string", false)
	if err != nil {
		return err
	}
	content, err := ctx.Value("content", "", true)
	if err != nil {
		return err
	}
	text := content.Text
	if content.Kind == KindNone {
		text = ctx.Language().StringLiteral("")
	}
	success, fail := ctx.Ident("success"), ctx.Ident("error")
	if err := ctx.Render("write_file", map[string]any{
		"Var":        ctx.Ident(""),
		"Path":       path.Text,
		"Content":    text,
		"Append":     strings.EqualFold(strings.TrimSpace(n.Prop("mode")), "append"),
		"CreateDirs": n.PropBool("create_dirs", false),
		"Encoding":   encoding(ctx, n),
		"Success":    success,
		"Error":      fail,
	}); err != nil {
		return err
	}
	ctx.Bind(success, "success", "output")
	ctx.Bind(fail, "error")
	return nil
}
