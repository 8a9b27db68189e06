package codegen

import (
	"strconv"
	"strings"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// grepSource reports whether the node searches files. An explicit source
// property wins; otherwise a path without text means files.
func grepSource(n *workflow.Node) string {
	switch s := strings.ToLower(strings.TrimSpace(n.Prop("source"))); s {
	case "text", "file":
		return s
	}
	if strings.TrimSpace(n.Prop("path")) != "" && strings.TrimSpace(n.Prop("text")) == "" {
		return "file"
	}
	return "text"
}

func emitGrep(ctx *Context, n *workflow.Node) error {
	lang := ctx.Language()
	pattern, err := ctx.Value("pattern", "string", false)
	if err != nil {
		return err
	}
	var text, path string
	if grepSource(n) == "file" {
		v, err := ctx.Value("path", "string", true)
		if err != nil {
			return err
		}
		path = v.Text
	} else {
		v, err := ctx.Value("text", "string", true)
		if err != nil {
			return err
		}
		text = v.Text
	}
	include, err := optional(ctx, "include", "string")
	if err != nil {
		return err
	}
	flag := func(prop string) string { return lang.BoolLiteral(n.PropBool(prop, false)) }
	count := func(prop string) string { return strconv.Itoa(max(0, n.PropInt(prop, 0))) }

	matches, total := ctx.Ident("matches"), ctx.Ident("count")
	success, fail := ctx.Ident("success"), ctx.Ident("error")
	if err := ctx.Render("grep", map[string]any{
		"Pattern":     pattern.Text,
		"Text":        text,
		"Path":        path,
		"Recursive":   flag("recursive"),
		"Include":     include,
		"IgnoreCase":  flag("ignore_case"),
		"WholeWord":   flag("whole_word"),
		"Invert":      flag("invert"),
		"LineNumbers": flag("line_numbers"),
		"Before":      count("before_context"),
		"After":       count("after_context"),
		"MaxCount":    count("max_count"),
		"CountOnly":   flag("count_only"),
		"Matches":     matches,
		"Count":       total,
		"Success":     success,
		"Error":       fail,
	}); err != nil {
		return err
	}
	ctx.BindDebug(matches, "matches", "output")
	ctx.Bind(total, "count")
	ctx.Bind(success, "success")
	ctx.Bind(fail, "error")
	return nil
}
