package workflow

import (
	"encoding/json"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// NodeType identifies the kind of behaviour a node contributes to the program.
type NodeType string

const (
	NodeTypeVariable    NodeType = "variable"
	NodeTypePrint       NodeType = "print"
	NodeTypeAssignment  NodeType = "assignment"
	NodeTypeIfThen      NodeType = "if-then"
	NodeTypeForEach     NodeType = "foreach"
	NodeTypeWhile       NodeType = "while"
	NodeTypeFunction    NodeType = "function"
	NodeTypeExecute     NodeType = "execute"
	NodeTypeHTTPRequest NodeType = "http_request"
	NodeTypeReadFile    NodeType = "read_file"
	NodeTypeWriteFile   NodeType = "write_file"
	NodeTypeGrep        NodeType = "grep"
)

// typeAliases maps alternative spellings used by older editors onto the
// canonical node type.
var typeAliases = map[NodeType]NodeType{
	"output":   NodeTypePrint,
	"assign":   NodeTypeAssignment,
	"if":       NodeTypeIfThen,
	"for_each": NodeTypeForEach,
	"for":      NodeTypeForEach,
	"bash":     NodeTypeExecute,
	"shell":    NodeTypeExecute,
	"command":  NodeTypeExecute,
	"http":     NodeTypeHTTPRequest,
	"regex":    NodeTypeGrep,
	"search":   NodeTypeGrep,
}

// Canonical resolves aliases; unknown types are returned unchanged.
func (t NodeType) Canonical() NodeType {
	if c, ok := typeAliases[t]; ok {
		return c
	}
	return t
}

// OwnsScope reports whether nodes of this type can have children nested
// inside their generated body.
func (t NodeType) OwnsScope() bool {
	switch t.Canonical() {
	case NodeTypeFunction, NodeTypeIfThen, NodeTypeForEach, NodeTypeWhile:
		return true
	}
	return false
}

// Position is the node's location on the editor canvas. It only matters as a
// deterministic tie-break when the data-flow graph does not order two nodes.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a single typed unit of the visual program.
type Node struct {
	ID         string         `json:"id" yaml:"id"`
	Type       NodeType       `json:"type" yaml:"type"`
	Position   Position       `json:"position" yaml:"position"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
	ParentID   string         `json:"parentId,omitempty" yaml:"parentId,omitempty"`
}

// nodeWire accepts both the canonical keys and the snake_case spellings
// written by the Python editor backend.
type nodeWire struct {
	ID         string         `json:"id" yaml:"id"`
	Type       NodeType       `json:"type" yaml:"type"`
	NodeType   NodeType       `json:"node_type" yaml:"node_type"`
	Position   Position       `json:"position" yaml:"position"`
	Properties map[string]any `json:"properties" yaml:"properties"`
	ParentID   string         `json:"parentId" yaml:"parentId"`
	ParentID2  string         `json:"parent_id" yaml:"parent_id"`
}

func (w nodeWire) node() Node {
	n := Node{ID: w.ID, Type: w.Type, Position: w.Position, Properties: w.Properties, ParentID: w.ParentID}
	if n.Type == "" {
		n.Type = w.NodeType
	}
	if n.ParentID == "" {
		n.ParentID = w.ParentID2
	}
	return n
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(b []byte) error {
	var w nodeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*n = w.node()
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *Node) UnmarshalYAML(v *yaml.Node) error {
	var w nodeWire
	if err := v.Decode(&w); err != nil {
		return err
	}
	*n = w.node()
	return nil
}

// Prop returns a property as display text. Missing and nil values yield "".
func (n *Node) Prop(key string) string {
	v, ok := n.Properties[key]
	if !ok || v == nil {
		return ""
	}
	return Stringify(v)
}

// Connection is a directed data-flow link between an output slot of one node
// and an input slot of another.
type Connection struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	SourceNode   string `json:"source_node" yaml:"source_node"`
	SourceOutput string `json:"source_output" yaml:"source_output"`
	TargetNode   string `json:"target_node" yaml:"target_node"`
	TargetInput  string `json:"target_input" yaml:"target_input"`
}

const (
	// DefaultOutput is the slot assumed when a connection names no source output.
	DefaultOutput = "output"
	// DefaultInput is the slot assumed when a connection names no target input.
	DefaultInput = "input"
)

// Output returns the source slot, defaulting to DefaultOutput.
func (c *Connection) Output() string {
	if c.SourceOutput == "" {
		return DefaultOutput
	}
	return c.SourceOutput
}

// Input returns the target slot, defaulting to DefaultInput.
func (c *Connection) Input() string {
	if c.TargetInput == "" {
		return DefaultInput
	}
	return c.TargetInput
}

// Graph is an immutable snapshot of nodes and connections. Lookup helpers
// build an index on first use; the index is safe for concurrent readers.
type Graph struct {
	Nodes       []*Node
	Connections []*Connection

	once     sync.Once
	byID     map[string]*Node
	children map[string][]*Node
}

// NewGraph wraps nodes and connections in a Graph.
func NewGraph(nodes []*Node, conns []*Connection) *Graph {
	return &Graph{Nodes: nodes, Connections: conns}
}

func (g *Graph) index() {
	g.once.Do(func() {
		g.byID = make(map[string]*Node, len(g.Nodes))
		g.children = make(map[string][]*Node)
		for _, n := range g.Nodes {
			if n == nil {
				continue
			}
			if _, dup := g.byID[n.ID]; dup {
				continue // first definition wins; Validate reports the duplicate
			}
			g.byID[n.ID] = n
		}
		for _, n := range g.Nodes {
			if n == nil || n.ParentID == "" || g.byID[n.ID] != n {
				continue
			}
			g.children[n.ParentID] = append(g.children[n.ParentID], n)
		}
	})
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	g.index()
	n, ok := g.byID[id]
	return n, ok
}

// Children returns the nodes whose ParentID is id, in definition order.
func (g *Graph) Children(id string) []*Node {
	g.index()
	return g.children[id]
}

// OutgoingEdges returns all connections leaving nodeID, in definition order.
func (g *Graph) OutgoingEdges(nodeID string) []*Connection {
	var out []*Connection
	for _, c := range g.Connections {
		if c != nil && c.SourceNode == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// IncomingEdges returns all connections arriving at nodeID.
func (g *Graph) IncomingEdges(nodeID string) []*Connection {
	var out []*Connection
	for _, c := range g.Connections {
		if c != nil && c.TargetNode == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// TopLevel returns the nodes without a parent, in definition order. Orphans
// are not included; see EffectiveParent.
func (g *Graph) TopLevel() []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n != nil && n.ParentID == "" {
			out = append(out, n)
		}
	}
	return out
}

// IDs returns all node ids in sorted order.
func (g *Graph) IDs() []string {
	g.index()
	ids := make([]string, 0, len(g.byID))
	for id := range g.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Metadata describes a workflow for export and display.
type Metadata struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Author      string `json:"author,omitempty" yaml:"author,omitempty"`
}

// Document is the persisted shape of a workflow.
type Document struct {
	Nodes       []*Node       `json:"nodes" yaml:"nodes"`
	Connections []*Connection `json:"connections" yaml:"connections"`
	Panels      any           `json:"panels,omitempty" yaml:"panels,omitempty"`
	Metadata    *Metadata     `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Graph returns a snapshot of the document's nodes and connections.
func (d *Document) Graph() *Graph {
	return NewGraph(d.Nodes, d.Connections)
}
