package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
)

func lang(t *testing.T, target codegen.Target) codegen.Language {
	t.Helper()
	l, err := codegen.LanguageFor(target)
	require.NoError(t, err)
	return l
}

func TestFormatLiteral_Python(t *testing.T) {
	t.Parallel()
	py := lang(t, codegen.TargetPython)
	cases := []struct {
		raw, hint string
		want      string
		kind      codegen.LiteralKind
	}{
		{"", "", "None", codegen.KindNone},
		{"", "string", `""`, codegen.KindString},
		{"true", "", "True", codegen.KindBool},
		{"False", "", "False", codegen.KindBool},
		{"yes", "boolean", "True", codegen.KindBool},
		{"42", "", "42", codegen.KindInt},
		{"007", "", "7", codegen.KindInt},
		{"+5", "", "5", codegen.KindInt},
		{"-3", "", "-3", codegen.KindInt},
		{"3.14", "", "3.14", codegen.KindFloat},
		{"2.0", "", "2.0", codegen.KindFloat},
		{"1e5", "", "100000.0", codegen.KindFloat},
		{".5", "", "0.5", codegen.KindFloat},
		{"42", "string", `"42"`, codegen.KindString},
		{"true", "string", `"true"`, codegen.KindString},
		{"hello", "", `"hello"`, codegen.KindString},
		{"say \"hi\"\n", "", `"say \"hi\"\n"`, codegen.KindString},
		{`C:\tmp`, "", `"C:\\tmp"`, codegen.KindString},
		{"bell\x07", "", `"bell\x07"`, codegen.KindString},
		{"Hello {name}!", "", `f"Hello {name}!"`, codegen.KindInterpolated},
		{"{x} items", "", `f"{x} items"`, codegen.KindInterpolated},
		{"{a} {{b}}", "", `f"{a} {{{b}}}"`, codegen.KindInterpolated},
	}
	for _, tc := range cases {
		got := py.FormatLiteral(tc.raw, tc.hint)
		assert.Equal(t, tc.want, got.Text, "raw %q hint %q", tc.raw, tc.hint)
		assert.Equal(t, tc.kind, got.Kind, "raw %q hint %q", tc.raw, tc.hint)
	}
}

func TestFormatLiteral_Rust(t *testing.T) {
	t.Parallel()
	rs := lang(t, codegen.TargetRust)
	cases := []struct {
		raw, hint string
		want      string
	}{
		{"", "", "None::<String>"},
		{"", "string", `""`},
		{"TRUE", "", "true"},
		{"17", "", "17"},
		{"3000000000", "", "3000000000_i64"},
		{"-2147483648", "", "-2147483648"},
		{"-2147483649", "", "-2147483649_i64"},
		{"1.5", "", "1.5"},
		{"tab\there", "", `"tab\there"`},
		{"nul\x00", "", `"nul\u{0}"`},
		{"{x} and {y}", "", `format!("{} and {}", x, y)`},
		{"Total: {count} {units", "", `format!("Total: {} {{units", count)`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rs.FormatLiteral(tc.raw, tc.hint).Text, "raw %q", tc.raw)
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	py := lang(t, codegen.TargetPython)
	rs := lang(t, codegen.TargetRust)

	assert.Equal(t, "my_var", py.Sanitize("my var"))
	assert.Equal(t, "n_1abc", py.Sanitize("1abc"))
	assert.Equal(t, "_value", py.Sanitize(""))
	assert.Equal(t, "class_", py.Sanitize("class"))
	assert.Equal(t, "print_", py.Sanitize("print"))
	assert.Equal(t, "match_", rs.Sanitize("match"))
	assert.Equal(t, "class", rs.Sanitize("class"))
	assert.Equal(t, "node_1", rs.Sanitize("node-1"))
}

func TestHasPlaceholders(t *testing.T) {
	t.Parallel()
	assert.True(t, codegen.HasPlaceholders("hi {name}"))
	assert.False(t, codegen.HasPlaceholders("hi {1name}"))
	assert.False(t, codegen.HasPlaceholders("{}"))
	assert.True(t, codegen.IsIdentifier("_x1"))
	assert.False(t, codegen.IsIdentifier("x-1"))
}
