package workflow_test

import (
	"errors"
	"testing"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func node(id string, typ workflow.NodeType, x, y float64) *workflow.Node {
	return &workflow.Node{ID: id, Type: typ, Position: workflow.Position{X: x, Y: y}}
}

func conn(from, to string) *workflow.Connection {
	return &workflow.Connection{SourceNode: from, TargetNode: to}
}

func ids(nodes []*workflow.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSequence_PositionTieBreak(t *testing.T) {
	t.Parallel()
	nodes := []*workflow.Node{
		node("c", workflow.NodeTypePrint, 0, 200),
		node("b", workflow.NodeTypePrint, 100, 0),
		node("a", workflow.NodeTypePrint, 0, 0),
		node("d", workflow.NodeTypePrint, 0, 200),
	}
	got, err := workflow.Sequence(nodes, nil)
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	want := []string{"a", "b", "c", "d"}
	if !equalIDs(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestSequence_ConnectionsBeatPosition(t *testing.T) {
	t.Parallel()
	// The consumer sits above the producer on the canvas.
	nodes := []*workflow.Node{
		node("print", workflow.NodeTypePrint, 0, 0),
		node("var", workflow.NodeTypeVariable, 0, 500),
	}
	got, err := workflow.Sequence(nodes, []*workflow.Connection{conn("var", "print")})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if want := []string{"var", "print"}; !equalIDs(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestSequence_IgnoresConnectionsOutsideSet(t *testing.T) {
	t.Parallel()
	nodes := []*workflow.Node{node("a", workflow.NodeTypePrint, 0, 0)}
	got, err := workflow.Sequence(nodes, []*workflow.Connection{conn("ghost", "a"), conn("a", "ghost")})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
}

func TestSequence_CycleReturnsPrefix(t *testing.T) {
	t.Parallel()
	nodes := []*workflow.Node{
		node("start", workflow.NodeTypeVariable, 0, 0),
		node("x", workflow.NodeTypeAssignment, 0, 100),
		node("y", workflow.NodeTypeAssignment, 0, 200),
	}
	conns := []*workflow.Connection{conn("start", "x"), conn("x", "y"), conn("y", "x")}
	got, err := workflow.Sequence(nodes, conns)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.Is(err, workflow.ErrCycle) {
		t.Errorf("errors.Is(err, ErrCycle) = false for %v", err)
	}
	var ce *workflow.CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T, want *CycleError", err)
	}
	if want := []string{"x", "y"}; !equalIDs(ce.NodeIDs, want) {
		t.Errorf("cycle nodes = %v, want %v", ce.NodeIDs, want)
	}
	if want := []string{"start"}; !equalIDs(ids(got), want) {
		t.Errorf("prefix = %v, want %v", ids(got), want)
	}
}

func TestSequence_SelfLoop(t *testing.T) {
	t.Parallel()
	nodes := []*workflow.Node{node("a", workflow.NodeTypeAssignment, 0, 0)}
	_, err := workflow.Sequence(nodes, []*workflow.Connection{conn("a", "a")})
	if !errors.Is(err, workflow.ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
}

func TestSequence_Deterministic(t *testing.T) {
	t.Parallel()
	build := func() ([]*workflow.Node, []*workflow.Connection) {
		return []*workflow.Node{
				node("n1", workflow.NodeTypeVariable, 10, 10),
				node("n2", workflow.NodeTypeVariable, 5, 10),
				node("n3", workflow.NodeTypePrint, 0, 50),
				node("n4", workflow.NodeTypePrint, 0, 50),
			}, []*workflow.Connection{
				conn("n1", "n3"), conn("n2", "n4"),
			}
	}
	n, c := build()
	first, _ := workflow.Sequence(n, c)
	for range 10 {
		n, c := build()
		again, _ := workflow.Sequence(n, c)
		if !equalIDs(ids(first), ids(again)) {
			t.Fatalf("order changed: %v vs %v", ids(first), ids(again))
		}
	}
	if want := []string{"n2", "n1", "n3", "n4"}; !equalIDs(ids(first), want) {
		t.Errorf("order = %v, want %v", ids(first), want)
	}
}

func TestSequenceScope_LiftsNestedConnections(t *testing.T) {
	t.Parallel()
	// The loop sits above the variable on the canvas, but its child reads it,
	// so the loop must come second.
	loop := node("loop", workflow.NodeTypeForEach, 0, 0)
	child := node("child", workflow.NodeTypePrint, 0, 10)
	child.ParentID = "loop"
	v := node("v", workflow.NodeTypeVariable, 0, 100)
	g := workflow.NewGraph([]*workflow.Node{loop, child, v}, []*workflow.Connection{conn("v", "child")})

	got, err := g.SequenceScope(g.ScopeMembers("", workflow.OrphanTopLevel))
	if err != nil {
		t.Fatalf("SequenceScope: %v", err)
	}
	if want := []string{"v", "loop"}; !equalIDs(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestDetectCycles(t *testing.T) {
	t.Parallel()
	ok := workflow.NewGraph(
		[]*workflow.Node{node("a", "variable", 0, 0), node("b", "print", 0, 1)},
		[]*workflow.Connection{conn("a", "b")},
	)
	if err := workflow.DetectCycles(ok); err != nil {
		t.Errorf("DetectCycles(acyclic) = %v", err)
	}
	bad := workflow.NewGraph(
		[]*workflow.Node{node("a", "variable", 0, 0), node("b", "print", 0, 1)},
		[]*workflow.Connection{conn("a", "b"), conn("b", "a")},
	)
	if err := workflow.DetectCycles(bad); !errors.Is(err, workflow.ErrCycle) {
		t.Errorf("DetectCycles(cyclic) = %v, want ErrCycle", err)
	}
}
