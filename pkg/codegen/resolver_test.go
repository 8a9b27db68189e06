package codegen_test

import (
	"errors"
	"testing"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func TestResolver_ClaimIsUniquePerNode(t *testing.T) {
	t.Parallel()
	r := codegen.NewResolver(lang(t, codegen.TargetPython))
	if got := r.Claim("n1", "x", false); got != "x" {
		t.Fatalf("first claim = %q, want x", got)
	}
	if got := r.Claim("n2", "x", false); got != "x_2" {
		t.Errorf("second node claim = %q, want x_2", got)
	}
	if got := r.Claim("n1", "x", false); got != "x" {
		t.Errorf("repeat claim = %q, want x", got)
	}
	if got := r.Claim("n3", "x", true); got != "x" {
		t.Errorf("shared claim = %q, want x", got)
	}
	if got := r.Claim("n4", "for", false); got != "for_" {
		t.Errorf("keyword claim = %q, want for_", got)
	}
}

func TestResolver_LookupFallsBackToOutput(t *testing.T) {
	t.Parallel()
	r := codegen.NewResolver(lang(t, codegen.TargetRust))
	r.Bind("run", "stdout", "run_stdout")
	r.Bind("run", "output", "run_stdout")
	r.Bind("run", "stderr", "run_stderr")

	if id, ok := r.Lookup("run", "stderr"); !ok || id != "run_stderr" {
		t.Errorf("Lookup(stderr) = %q, %v", id, ok)
	}
	if id, ok := r.Lookup("run", "nope"); !ok || id != "run_stdout" {
		t.Errorf("Lookup(nope) = %q, %v; want fallback to output", id, ok)
	}
	if _, ok := r.Lookup("other", "output"); ok {
		t.Error("Lookup of an unbound node succeeded")
	}
	r.Unbind("run", "output")
	if _, ok := r.Lookup("run", "nope"); ok {
		t.Error("Lookup succeeded after Unbind")
	}
}

func TestResolver_Scopes(t *testing.T) {
	t.Parallel()
	r := codegen.NewResolver(lang(t, codegen.TargetRust))
	r.Declare("outer")
	r.Push()
	r.Declare("inner")
	if !r.Declared("outer") || !r.Declared("inner") {
		t.Fatal("names not visible in nested scope")
	}
	r.Pop()
	if r.Declared("inner") {
		t.Error("inner name still visible after Pop")
	}
	r.Pop()
	if r.Depth() != 1 || !r.Declared("outer") {
		t.Error("outermost scope was closed")
	}
}

func TestResolutionError(t *testing.T) {
	t.Parallel()
	err := error(&codegen.ResolutionError{NodeID: "p1", Source: "v1", Slot: "output", Reason: "producer has not been emitted yet"})
	if !errors.Is(err, codegen.ErrUnresolved) {
		t.Error("ResolutionError does not match ErrUnresolved")
	}
	want := `node "p1": cannot resolve v1.output: producer has not been emitted yet`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if got := err.(*codegen.ResolutionError).Detail(); got != "cannot resolve v1.output: producer has not been emitted yet" {
		t.Errorf("Detail() = %q", got)
	}
}

func TestResolver_InScope(t *testing.T) {
	t.Parallel()
	r := codegen.NewResolver(lang(t, codegen.TargetRust))
	r.Bind("top", "output", "top")
	r.Declare("top")
	r.Push()
	r.Bind("inner", "output", "inner")
	r.Declare("inner")
	r.Bind("again", "output", "top")
	r.BindLocal("loop", "item", "item")
	if !r.InScope("inner", "output") || !r.InScope("top", "output") {
		t.Fatal("bindings of open scopes are out of scope")
	}
	if r.InScope("loop", "item") {
		t.Error("body-local binding reported in scope")
	}
	r.Pop()
	if r.InScope("inner", "output") {
		t.Error("binding still in scope after its scope closed")
	}
	if !r.InScope("again", "output") {
		t.Error("reassignment of an outer name left scope with the block")
	}
	if id, ok := r.Lookup("inner", "output"); !ok || id != "inner" {
		t.Errorf("Lookup(inner) = %q, %v", id, ok)
	}
}

func TestResolver_FunctionScopeShadowsOuterNames(t *testing.T) {
	t.Parallel()
	r := codegen.NewResolver(lang(t, codegen.TargetPython))
	r.Declare("total")
	r.PushFunction()
	r.Bind("local", "output", "total")
	r.Pop()
	if r.InScope("local", "output") {
		t.Error("assignment inside a function escaped the function")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := codegen.DefaultRegistry()
	if _, err := reg.Get("bash"); err != nil {
		t.Errorf("alias lookup: %v", err)
	}
	if _, err := reg.Get("teleport"); err == nil {
		t.Error("expected an error for an unregistered type")
	}
	if got := len(reg.Types()); got != 12 {
		t.Errorf("built-in emitters = %d, want 12", got)
	}
	reg.Register("noop", codegen.EmitterFunc(func(*codegen.Context, *workflow.Node) error { return nil }))
	if _, err := reg.Get("noop"); err != nil {
		t.Errorf("custom emitter: %v", err)
	}
}
