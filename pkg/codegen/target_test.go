package codegen_test

import (
	"errors"
	"testing"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()
	cases := map[string]codegen.Target{
		"":        codegen.TargetPython,
		"py":      codegen.TargetPython,
		"Python3": codegen.TargetPython,
		"rs":      codegen.TargetRust,
		" rust ":  codegen.TargetRust,
	}
	for in, want := range cases {
		got, err := codegen.ParseTarget(in)
		if err != nil || got != want {
			t.Errorf("ParseTarget(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := codegen.ParseTarget("go"); !errors.Is(err, codegen.ErrUnknownTarget) {
		t.Errorf("ParseTarget(go) error = %v, want ErrUnknownTarget", err)
	}
	if codegen.TargetRust.Extension() != ".rs" || codegen.TargetPython.Extension() != ".py" {
		t.Error("unexpected extensions")
	}
}
