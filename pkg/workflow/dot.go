package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// dotMeta is the JSON payload RenderDOT stores in each node's comment
// attribute so that a rendered graph can be read back losslessly.
type dotMeta struct {
	Type       NodeType       `json:"type"`
	ParentID   string         `json:"parentId,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// reservedDOTAttrs are node attributes that never become properties.
var reservedDOTAttrs = map[string]bool{
	"type": true, "parent": true, "pos": true, "x": true, "y": true,
	"label": true, "shape": true, "tooltip": true, "comment": true,
	"style": true, "color": true, "fillcolor": true, "fontname": true,
}

// ParseDOT parses a Graphviz DOT string into a workflow document.
//
// Nodes carry their type in a "type" attribute and their parent in "parent"
// (nodes declared inside "subgraph cluster_<id>" default to parent <id>).
// Position comes from "pos" ("x,y") or separate "x" and "y" attributes; every
// other attribute becomes a string property. Edge ports name the slots:
// a:stdout -> b:input. Graphs produced by RenderDOT round-trip exactly.
func ParseDOT(src string) (*Document, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}

	// Use a permissive collector that accepts any attribute name without the
	// strict validation that gographviz.Graph performs.
	collector := newDOTCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}

	doc := &Document{}
	if collector.name != "" {
		doc.Metadata = &Metadata{Name: collector.name, Description: collector.graphAttrs["comment"]}
	}
	for _, id := range collector.order {
		n, err := collector.node(id)
		if err != nil {
			return nil, err
		}
		doc.Nodes = append(doc.Nodes, n)
	}
	for _, e := range collector.edges {
		doc.Connections = append(doc.Connections, &Connection{
			SourceNode:   e.from,
			SourceOutput: e.output,
			TargetNode:   e.to,
			TargetInput:  e.input,
		})
	}
	return doc, nil
}

type rawEdge struct {
	from, to      string
	output, input string
}

// dotCollector implements gographviz.Interface without attribute validation.
type dotCollector struct {
	name       string
	order      []string
	nodes      map[string]map[string]string
	cluster    map[string]string
	edges      []rawEdge
	graphAttrs map[string]string
}

func newDOTCollector() *dotCollector {
	return &dotCollector{
		nodes:      make(map[string]map[string]string),
		cluster:    make(map[string]string),
		graphAttrs: make(map[string]string),
	}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) AddNode(parentGraph string, name string, attrs map[string]string) error {
	id := unquote(name)
	if _, ok := c.nodes[id]; !ok {
		c.nodes[id] = make(map[string]string)
		c.order = append(c.order, id)
	}
	parent := unquote(parentGraph)
	if _, seen := c.cluster[id]; !seen && strings.HasPrefix(parent, "cluster_") {
		c.cluster[id] = strings.TrimPrefix(parent, "cluster_")
	}
	for k, v := range attrs {
		c.nodes[id][k] = unquote(v)
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, directed bool, attrs map[string]string) error {
	return c.AddPortEdge(src, "", dst, "", directed, attrs)
}

func (c *dotCollector) AddPortEdge(src, srcPort, dst, dstPort string, _ bool, attrs map[string]string) error {
	e := rawEdge{
		from:   unquote(src),
		to:     unquote(dst),
		output: portName(srcPort),
		input:  portName(dstPort),
	}
	for _, k := range []string{"tailport", "output"} {
		if v, ok := attrs[k]; ok && e.output == "" {
			e.output = unquote(v)
		}
	}
	for _, k := range []string{"headport", "input"} {
		if v, ok := attrs[k]; ok && e.input == "" {
			e.input = unquote(v)
		}
	}
	c.edges = append(c.edges, e)
	return nil
}

func (c *dotCollector) AddAttr(_ string, field, value string) error {
	c.graphAttrs[field] = unquote(value)
	return nil
}

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

func (c *dotCollector) node(id string) (*Node, error) {
	attrs := c.nodes[id]
	n := &Node{ID: id}

	if raw := attrs["comment"]; strings.HasPrefix(strings.TrimSpace(raw), "{") {
		var meta dotMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, fmt.Errorf("node %q: invalid comment metadata: %w", id, err)
		}
		n.Type = meta.Type
		n.ParentID = meta.ParentID
		n.Properties = meta.Properties
	}
	if n.Type == "" {
		n.Type = NodeType(attrs["type"])
	}
	if n.ParentID == "" {
		n.ParentID = attrs["parent"]
	}
	if n.ParentID == "" {
		n.ParentID = c.cluster[id]
	}

	if pos, ok := attrs["pos"]; ok {
		x, y, err := parsePos(pos)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", id, err)
		}
		n.Position = Position{X: x, Y: y}
	}
	for _, axis := range []string{"x", "y"} {
		raw, ok := attrs[axis]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("node %q: invalid %s %q", id, axis, raw)
		}
		if axis == "x" {
			n.Position.X = f
		} else {
			n.Position.Y = f
		}
	}

	for k, v := range attrs {
		if reservedDOTAttrs[k] {
			continue
		}
		if n.Properties == nil {
			n.Properties = make(map[string]any)
		}
		n.Properties[k] = v
	}
	return n, nil
}

func parsePos(s string) (float64, float64, error) {
	parts := strings.Split(strings.TrimSuffix(strings.TrimSpace(s), "!"), ",")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid pos %q", s)
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errX != nil || errY != nil {
		return 0, 0, fmt.Errorf("invalid pos %q", s)
	}
	return x, y, nil
}

// portName strips the ":" prefix and quotes gographviz leaves on edge ports.
func portName(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), ":")
	if i := strings.Index(p, ":"); i >= 0 {
		p = p[:i] // drop a compass point
	}
	return unquote(p)
}

// unquote strips surrounding double-quotes from a DOT identifier and undoes
// the escaping dotQuote applies.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// dotQuote returns s as a quoted DOT string.
func dotQuote(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

var dotShapes = map[NodeType]string{
	NodeTypeFunction: "component",
	NodeTypeIfThen:   "diamond",
	NodeTypeForEach:  "hexagon",
	NodeTypeWhile:    "hexagon",
	NodeTypePrint:    "note",
}

// RenderDOT renders the graph as a Graphviz digraph. Scope-owning nodes get
// a "cluster_<id>" subgraph holding their children; node metadata is stored
// in the comment attribute so ParseDOT can read the result back.
func RenderDOT(g *Graph, name string) (string, error) {
	if name == "" {
		name = "workflow"
	}
	out := gographviz.NewGraph()
	if err := out.SetName(dotQuote(name)); err != nil {
		return "", err
	}
	if err := out.SetDir(true); err != nil {
		return "", err
	}

	graphFor := func(n *Node) string {
		if p := g.EffectiveParent(n); p != "" {
			return dotQuote("cluster_" + p)
		}
		return dotQuote(name)
	}

	// Clusters must exist before nodes are attached to them; create them
	// parents first.
	created := map[string]bool{}
	var addCluster func(n *Node) error
	addCluster = func(n *Node) error {
		if created[n.ID] {
			return nil
		}
		created[n.ID] = true
		if p := g.EffectiveParent(n); p != "" {
			if pn, ok := g.Node(p); ok {
				if err := addCluster(pn); err != nil {
					return err
				}
			}
		}
		return out.AddSubGraph(graphFor(n), dotQuote("cluster_"+n.ID), map[string]string{
			"label": dotQuote(fmt.Sprintf("%s (%s)", n.ID, n.Type)),
		})
	}
	for _, n := range g.Nodes {
		if n != nil && n.Type.OwnsScope() && len(g.Children(n.ID)) > 0 {
			if err := addCluster(n); err != nil {
				return "", err
			}
		}
	}

	for _, n := range g.Nodes {
		if n == nil {
			continue
		}
		meta, err := json.Marshal(dotMeta{Type: n.Type, ParentID: n.ParentID, Properties: n.Properties})
		if err != nil {
			return "", fmt.Errorf("node %q: %w", n.ID, err)
		}
		shape := dotShapes[n.Type.Canonical()]
		if shape == "" {
			shape = "box"
		}
		attrs := map[string]string{
			"label":   dotQuote(fmt.Sprintf("%s [%s]", n.ID, n.Type)),
			"shape":   shape,
			"pos":     dotQuote(strconv.FormatFloat(n.Position.X, 'f', -1, 64) + "," + strconv.FormatFloat(n.Position.Y, 'f', -1, 64)),
			"comment": dotQuote(string(meta)),
		}
		if err := out.AddNode(graphFor(n), dotQuote(n.ID), attrs); err != nil {
			return "", fmt.Errorf("node %q: %w", n.ID, err)
		}
	}

	for _, c := range g.Connections {
		if c == nil {
			continue
		}
		attrs := map[string]string{
			"tailport": dotQuote(c.Output()),
			"headport": dotQuote(c.Input()),
		}
		if c.Output() != DefaultOutput || c.Input() != DefaultInput {
			attrs["label"] = dotQuote(c.Output() + " -> " + c.Input())
		}
		if err := out.AddEdge(dotQuote(c.SourceNode), dotQuote(c.TargetNode), true, attrs); err != nil {
			return "", err
		}
	}
	return out.String(), nil
}
