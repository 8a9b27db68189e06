package definitions_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/agentblocks/pkg/definitions"
)

func TestRender_Syntaxes(t *testing.T) {
	t.Parallel()
	vars := map[string]any{"name": "world", "out": map[string]any{"result": "n1_result"}}
	cases := []struct {
		syntax definitions.Syntax
		tmpl   string
		want   string
	}{
		{definitions.SyntaxGo, "hello {{.name}}", "hello world"},
		{"", "{{.out.result}} = 1", "n1_result = 1"},
		{definitions.SyntaxFString, "hello {name}", "hello world"},
		{definitions.SyntaxJinja, "hello {{ name }}", "hello world"},
		{definitions.SyntaxJinja, "{% if name == \"world\" %}{{ out.result }}{% endif %}", "n1_result"},
	}
	for _, tc := range cases {
		ct := &definitions.CodeTemplate{Syntax: tc.syntax, Template: tc.tmpl}
		got, err := ct.Render(vars)
		require.NoError(t, err, "syntax %q", tc.syntax)
		assert.Equal(t, tc.want, got, "syntax %q", tc.syntax)
	}
}

func TestRender_GoMissingKey(t *testing.T) {
	t.Parallel()
	ct := &definitions.CodeTemplate{Template: "{{.missing}}"}
	_, err := ct.Render(map[string]any{})
	assert.Error(t, err)
}

func TestRender_UnknownSyntax(t *testing.T) {
	t.Parallel()
	ct := &definitions.CodeTemplate{Syntax: "mustache", Template: "x"}
	_, err := ct.Render(nil)
	assert.ErrorContains(t, err, "unknown template syntax")
}

func TestRender_JinjaIncludeDisabled(t *testing.T) {
	t.Parallel()
	ct := &definitions.CodeTemplate{Syntax: definitions.SyntaxJinja, Template: `{% include "other.txt" %}`}
	_, err := ct.Render(map[string]any{})
	assert.Error(t, err)
}

func TestBuiltinTemplates_Render(t *testing.T) {
	t.Parallel()
	d, ok := definitions.Builtin().Get("list_operation")
	require.True(t, ok)
	tmpl, ok := d.Template("python")
	require.True(t, ok)
	out, err := tmpl.Render(map[string]any{
		"raw":   map[string]any{"operation": "append", "list_name": "names"},
		"value": "item",
		"out":   map[string]any{"result": "n_result"},
	})
	require.NoError(t, err)
	assert.Equal(t, "names.append(item)", strings.TrimSpace(out))

	assert.Equal(t, []string{"python", "rust"}, d.Languages())
}
