package runner_test

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
	"github.com/ravi-parthasarathy/agentblocks/pkg/runner"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func needPython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
}

func TestRun_RejectsRust(t *testing.T) {
	t.Parallel()
	r := &runner.Runner{}
	_, err := r.Run(t.Context(), &codegen.Output{Target: codegen.TargetRust, Source: "fn main() {}"})
	if !errors.Is(err, runner.ErrUnsupportedTarget) {
		t.Fatalf("err = %v, want ErrUnsupportedTarget", err)
	}
}

func TestRun_GeneratedProgram(t *testing.T) {
	t.Parallel()
	needPython(t)
	g := workflow.NewGraph([]*workflow.Node{
		{ID: "v1", Type: workflow.NodeTypeVariable, Properties: map[string]any{"name": "greeting", "value": "Hello"}},
		{ID: "p1", Type: workflow.NodeTypePrint, Position: workflow.Position{Y: 100}, Properties: map[string]any{"message": "{greeting}, World"}},
	}, nil)
	out, err := codegen.Compile(g)
	if err != nil {
		t.Fatal(err)
	}
	res, err := (&runner.Runner{}).Run(t.Context(), out)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.ExitCode != 0 {
		t.Fatalf("run failed: %+v", res)
	}
	if got := strings.TrimSpace(res.Stdout); got != "Hello, World" {
		t.Errorf("stdout = %q", got)
	}
}

func TestRunSource_NonZeroExit(t *testing.T) {
	t.Parallel()
	needPython(t)
	res, err := (&runner.Runner{}).RunSource(t.Context(), "import sys\nprint('bad', file=sys.stderr)\nsys.exit(3)\n")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.ExitCode != 3 {
		t.Errorf("result = %+v, want exit code 3", res)
	}
	if !strings.Contains(res.Stderr, "bad") {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestRunSource_Timeout(t *testing.T) {
	t.Parallel()
	needPython(t)
	r := &runner.Runner{Timeout: 200 * time.Millisecond}
	res, err := r.RunSource(t.Context(), "import time\ntime.sleep(5)\n")
	if err != nil {
		t.Fatal(err)
	}
	if !res.TimedOut || res.Success {
		t.Errorf("result = %+v, want timeout", res)
	}
}

func TestRunSource_MissingInterpreter(t *testing.T) {
	t.Parallel()
	r := &runner.Runner{Interpreter: "agentblocks-no-such-python"}
	if _, err := r.RunSource(t.Context(), "print(1)\n"); err == nil {
		t.Fatal("expected error for missing interpreter")
	}
}
