package codegen

import (
	"strings"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// optional resolves a property that may be left out entirely. It returns ""
// when the property is empty and nothing is connected to it.
func optional(ctx *Context, prop, hint string) (string, error) {
	if strings.TrimSpace(ctx.Node().Prop(prop)) == "" {
		id, ok, err := ctx.Input(prop, false)
		if err != nil || !ok {
			return "", err
		}
		return id, nil
	}
	v, err := ctx.Value(prop, hint, false)
	if err != nil {
		return "", err
	}
	return v.Text, nil
}

// timeout resolves a timeout in seconds, dropping values that are not numbers.
func timeout(ctx *Context) (string, error) {
	raw := strings.TrimSpace(ctx.Node().Prop("timeout"))
	if raw != "" {
		if _, _, ok := normalizeNumber(raw); !ok {
			ctx.Warn("timeout %q is not a number and was ignored", raw)
			return "", nil
		}
	}
	return optional(ctx, "timeout", "number")
}

func emitExecute(ctx *Context, n *workflow.Node) error {
	command, err := ctx.Value("command", "string", true)
	if err != nil {
		return err
	}
	cwd, err := optional(ctx, "cwd", "string")
	if err != nil {
		return err
	}
	limit, err := timeout(ctx)
	if err != nil {
		return err
	}
	stdout, stderr, code := ctx.Ident("stdout"), ctx.Ident("stderr"), ctx.Ident("exit_code")
	if err := ctx.Render("execute", map[string]any{
		"Var":      ctx.Ident(""),
		"Command":  command.Text,
		"Cwd":      cwd,
		"Timeout":  limit,
		"Stdout":   stdout,
		"Stderr":   stderr,
		"ExitCode": code,
	}); err != nil {
		return err
	}
	ctx.Bind(stdout, "stdout", "output")
	ctx.Bind(stderr, "stderr")
	ctx.Bind(code, "exit_code", "returncode")
	return nil
}
