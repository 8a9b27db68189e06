package workflow_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func TestDecode_JSONAliases(t *testing.T) {
	t.Parallel()
	src := `{
		"nodes": [
			{"id": "loop", "node_type": "foreach", "position": {"x": 1, "y": 2}, "properties": {"items": "[1, 2]"}},
			{"id": "p", "type": "print", "parent_id": "loop", "properties": {"message": "{item}"}}
		],
		"connections": [
			{"source_node": "loop", "target_node": "p"}
		]
	}`
	doc, err := workflow.Decode([]byte(src), workflow.FormatJSON, "inline.json")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(doc.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(doc.Nodes))
	}
	loop, p := doc.Nodes[0], doc.Nodes[1]
	if loop.Type != workflow.NodeTypeForEach {
		t.Errorf("type = %q, want foreach", loop.Type)
	}
	if loop.Position.X != 1 || loop.Position.Y != 2 {
		t.Errorf("position = %+v", loop.Position)
	}
	if p.ParentID != "loop" {
		t.Errorf("parent = %q, want loop", p.ParentID)
	}
	if got := p.Prop("message"); got != "{item}" {
		t.Errorf("message = %q", got)
	}
	c := doc.Connections[0]
	if c.Output() != "output" || c.Input() != "input" {
		t.Errorf("default slots = %q/%q", c.Output(), c.Input())
	}
}

func TestDecode_YAML(t *testing.T) {
	t.Parallel()
	src := `
metadata:
  name: demo
nodes:
  - id: v
    type: variable
    properties:
      name: count
      value: 3
  - id: p
    type: print
    position: {x: 0, y: 100}
connections:
  - source_node: v
    target_node: p
    target_input: message
`
	doc, err := workflow.Decode([]byte(src), workflow.FormatYAML, "demo.yaml")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Metadata == nil || doc.Metadata.Name != "demo" {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if got := doc.Nodes[0].Prop("value"); got != "3" {
		t.Errorf("value = %q, want 3", got)
	}
	if doc.Nodes[1].Position.Y != 100 {
		t.Errorf("y = %v", doc.Nodes[1].Position.Y)
	}
	if doc.Connections[0].Input() != "message" {
		t.Errorf("input = %q", doc.Connections[0].Input())
	}
}

const hclWorkflow = `
name = "greeting"

node "v1" {
  type = "variable"
  y    = 0
  properties = {
    name  = "greeting"
    value = "hello"
    tags  = ["a", "b"]
    size  = 2.5
    ok    = true
  }
}

node "loop" {
  type = "while"
  y    = 50
}

node "p1" {
  type   = "print"
  parent = "loop"
  x      = 10
  y      = 100
}

connection {
  from  = "v1"
  to    = "p1"
  input = "message"
}
`

func TestDecode_HCL(t *testing.T) {
	t.Parallel()
	doc, err := workflow.Decode([]byte(hclWorkflow), workflow.FormatHCL, "greeting.hcl")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Metadata == nil || doc.Metadata.Name != "greeting" {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if len(doc.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(doc.Nodes))
	}
	v := doc.Nodes[0]
	if v.Prop("value") != "hello" || v.Prop("size") != "2.5" || v.Prop("ok") != "true" {
		t.Errorf("properties = %v", v.Properties)
	}
	if v.Prop("tags") != `["a","b"]` {
		t.Errorf("tags = %q", v.Prop("tags"))
	}
	if doc.Nodes[1].Properties != nil {
		t.Errorf("absent properties decoded as %v", doc.Nodes[1].Properties)
	}
	p := doc.Nodes[2]
	if p.ParentID != "loop" || p.Position.X != 10 || p.Position.Y != 100 {
		t.Errorf("p1 = %+v", p)
	}
	c := doc.Connections[0]
	if c.SourceNode != "v1" || c.TargetNode != "p1" || c.Input() != "message" || c.Output() != "output" {
		t.Errorf("connection = %+v", c)
	}
}

func TestDecode_HCLErrors(t *testing.T) {
	t.Parallel()
	if _, err := workflow.Decode([]byte(`node "x" {`), workflow.FormatHCL, "bad.hcl"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := workflow.Decode([]byte(`node "x" {}`), workflow.FormatHCL, "bad.hcl"); err == nil {
		t.Error("expected error for missing type")
	}
	src := `node "x" {
  type = "print"
  properties = "nope"
}`
	if _, err := workflow.Decode([]byte(src), workflow.FormatHCL, "bad.hcl"); err == nil {
		t.Error("expected error for non-object properties")
	}
}

func TestEncodeHCL_RoundTrip(t *testing.T) {
	t.Parallel()
	doc, err := workflow.Decode([]byte(hclWorkflow), workflow.FormatHCL, "greeting.hcl")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, err := workflow.Encode(doc, workflow.FormatHCL)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	again, err := workflow.Decode(out, workflow.FormatHCL, "again.hcl")
	if err != nil {
		t.Fatalf("Decode(Encode): %v\n%s", err, out)
	}
	if len(again.Nodes) != 3 || len(again.Connections) != 1 {
		t.Fatalf("round trip lost data:\n%s", out)
	}
	if again.Nodes[0].Prop("value") != "hello" || again.Nodes[2].ParentID != "loop" {
		t.Errorf("round trip changed nodes:\n%s", out)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.json")
	if err := os.WriteFile(path, []byte(`{"nodes":[{"id":"a","type":"print"}],"connections":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := workflow.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(doc.Nodes) != 1 {
		t.Errorf("nodes = %d", len(doc.Nodes))
	}

	if _, err := workflow.LoadFile(filepath.Join(dir, "wf.toml")); !errors.Is(err, workflow.ErrUnknownFormat) {
		t.Errorf("LoadFile(.toml) = %v, want ErrUnknownFormat", err)
	}
	if _, err := workflow.LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]workflow.Format{"JSON": workflow.FormatJSON, "yml": workflow.FormatYAML, "gv": workflow.FormatDOT, "hcl": workflow.FormatHCL} {
		if got, err := workflow.ParseFormat(in); err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := workflow.ParseFormat("xml"); !errors.Is(err, workflow.ErrUnknownFormat) {
		t.Errorf("ParseFormat(xml) = %v", err)
	}
}
