package codegen_test

import (
	"testing"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
)

func TestTranslateCondition(t *testing.T) {
	t.Parallel()
	py := lang(t, codegen.TargetPython)
	rs := lang(t, codegen.TargetRust)
	cases := []struct {
		in       string
		python   string
		rust     string
		parsable bool
	}{
		{"a == 'x' && !b", `a == "x" and not b`, `a == "x" && !b`, true},
		{"x > 3", "x > 3", "x > 3", true},
		{"count >= 10 or done", "count >= 10 or done", "count >= 10 || done", true},
		{"not (a or b)", "not (a or b)", "!(a || b)", true},
		{"!(a && b) || c", "not (a and b) or c", "!(a && b) || c", true},
		{"status != \"ok\"", `status != "ok"`, `status != "ok"`, true},
		{"flag == true", "flag == True", "flag == true", true},
		{"ratio < 0.5", "ratio < 0.5", "ratio < 0.5", true},
		{"android and organic", "android and organic", "android && organic", true},
		{"len(items) > 0", "", "", false},
		{"a ==", "", "", false},
		{"'unterminated", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		got, ok := codegen.TranslateCondition(py, tc.in)
		if ok != tc.parsable {
			t.Errorf("TranslateCondition(%q) ok = %v, want %v", tc.in, ok, tc.parsable)
			continue
		}
		if !ok {
			continue
		}
		if got != tc.python {
			t.Errorf("python: TranslateCondition(%q) = %q, want %q", tc.in, got, tc.python)
		}
		if got, _ := codegen.TranslateCondition(rs, tc.in); got != tc.rust {
			t.Errorf("rust: TranslateCondition(%q) = %q, want %q", tc.in, got, tc.rust)
		}
	}
}
