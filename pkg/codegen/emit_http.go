package codegen

import (
	"encoding/json"
	"strings"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// headers returns the header expression: a connected value, or the JSON
// object text decoded at run time. Text that is not a JSON object is dropped.
func headers(ctx *Context, n *workflow.Node) (string, error) {
	if id, ok, err := ctx.Input("headers", false); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	raw := strings.TrimSpace(n.Prop("headers"))
	if raw == "" {
		return "", nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		ctx.Warn("headers are not a JSON object and were ignored: %v", err)
		return "", nil
	}
	lit := ctx.Language().StringLiteral(raw)
	if ctx.Target() == TargetPython {
		return "json.loads(" + lit + ")", nil
	}
	return lit, nil
}

func emitHTTP(ctx *Context, n *workflow.Node) error {
	lang := ctx.Language()
	url, err := ctx.Value("url", "string", true)
	if err != nil {
		return err
	}
	method := lang.StringLiteral("GET")
	if id, ok, err := ctx.Input("method", false); err != nil {
		return err
	} else if ok {
		method = id
	} else if raw := strings.ToUpper(strings.TrimSpace(n.Prop("method"))); raw != "" {
		method = lang.StringLiteral(raw)
	}
	hdrs, err := headers(ctx, n)
	if err != nil {
		return err
	}
	body, err := optional(ctx, "body", "string")
	if err != nil {
		return err
	}
	limit, err := timeout(ctx)
	if err != nil {
		return err
	}

	status, response, success := ctx.Ident("status"), ctx.Ident("response"), ctx.Ident("success")
	if err := ctx.Render("http_request", map[string]any{
		"Var":      ctx.Ident(""),
		"Method":   method,
		"URL":      url.Text,
		"Headers":  hdrs,
		"HasBody":  body != "",
		"Body":     body,
		"Timeout":  limit,
		"Status":   status,
		"Response": response,
		"Success":  success,
	}); err != nil {
		return err
	}
	ctx.Bind(status, "status")
	ctx.Bind(response, "response", "body", "output")
	ctx.Bind(success, "success")
	return nil
}
