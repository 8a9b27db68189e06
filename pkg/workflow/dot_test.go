package workflow_test

import (
	"strings"
	"testing"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func TestParseDOT_NodesAndPorts(t *testing.T) {
	t.Parallel()
	src := `digraph demo {
		cmd   [type=execute, command="ls -la", pos="0,10"]
		show  [type=print, x=5, y=20]
		cmd -> show [tailport=stdout, headport=message]
	}`
	doc, err := workflow.ParseDOT(src)
	if err != nil {
		t.Fatalf("ParseDOT: %v", err)
	}
	if doc.Metadata == nil || doc.Metadata.Name != "demo" {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if len(doc.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(doc.Nodes))
	}
	cmd := doc.Nodes[0]
	if cmd.Type != workflow.NodeTypeExecute || cmd.Prop("command") != "ls -la" {
		t.Errorf("cmd = %+v", cmd)
	}
	if cmd.Position.Y != 10 {
		t.Errorf("pos y = %v", cmd.Position.Y)
	}
	if _, ok := cmd.Properties["pos"]; ok {
		t.Error("pos leaked into properties")
	}
	if show := doc.Nodes[1]; show.Position.X != 5 || show.Position.Y != 20 {
		t.Errorf("show position = %+v", show.Position)
	}
	c := doc.Connections[0]
	if c.Output() != "stdout" || c.Input() != "message" {
		t.Errorf("slots = %q -> %q", c.Output(), c.Input())
	}
}

func TestParseDOT_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := workflow.ParseDOT("digraph {"); err == nil {
		t.Error("expected parse error")
	}
}

func TestRenderDOT_RoundTrip(t *testing.T) {
	t.Parallel()
	loop := node("loop", workflow.NodeTypeForEach, 0, 0)
	loop.Properties = map[string]any{"items": `["a", "b"]`}
	body := node("body", workflow.NodeTypePrint, 10, 20)
	body.ParentID = "loop"
	body.Properties = map[string]any{"message": `say "hi" \ {item}`}
	g := workflow.NewGraph(
		[]*workflow.Node{loop, body},
		[]*workflow.Connection{{SourceNode: "loop", SourceOutput: "item", TargetNode: "body", TargetInput: "message"}},
	)

	out, err := workflow.RenderDOT(g, "demo")
	if err != nil {
		t.Fatalf("RenderDOT: %v", err)
	}
	if !strings.Contains(out, "cluster_loop") {
		t.Errorf("missing cluster for scope owner:\n%s", out)
	}

	doc, err := workflow.ParseDOT(out)
	if err != nil {
		t.Fatalf("ParseDOT(RenderDOT): %v\n%s", err, out)
	}
	back := doc.Graph()
	b, ok := back.Node("body")
	if !ok {
		t.Fatalf("body missing after round trip:\n%s", out)
	}
	if b.ParentID != "loop" || b.Type != workflow.NodeTypePrint {
		t.Errorf("body = %+v", b)
	}
	if got := b.Prop("message"); got != `say "hi" \ {item}` {
		t.Errorf("message = %q", got)
	}
	if b.Position.X != 10 || b.Position.Y != 20 {
		t.Errorf("position = %+v", b.Position)
	}
	if len(doc.Connections) != 1 || doc.Connections[0].Output() != "item" || doc.Connections[0].Input() != "message" {
		t.Errorf("connections = %+v", doc.Connections)
	}
}
