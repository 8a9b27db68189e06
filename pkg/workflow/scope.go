package workflow

import (
	"fmt"
	"strings"
)

// OrphanPolicy decides what happens to a node whose parentId does not name an
// existing scope-owning node.
type OrphanPolicy string

const (
	// OrphanTopLevel treats orphans as top-level nodes and reports a warning.
	OrphanTopLevel OrphanPolicy = "top-level"
	// OrphanError reports orphans as errors and leaves them out of the program.
	OrphanError OrphanPolicy = "error"
)

// ParseOrphanPolicy parses a policy name. The empty string selects OrphanTopLevel.
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch OrphanPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrphanTopLevel:
		return OrphanTopLevel, nil
	case OrphanError:
		return OrphanError, nil
	}
	return "", fmt.Errorf("unknown orphan policy %q (want %q or %q)", s, OrphanTopLevel, OrphanError)
}

// OrphanReason explains why n cannot live under its declared parent, or
// returns "" when the parent is valid or n has none.
func (g *Graph) OrphanReason(n *Node) string {
	if n.ParentID == "" {
		return ""
	}
	if n.ParentID == n.ID {
		return "node is its own parent"
	}
	p, ok := g.Node(n.ParentID)
	if !ok {
		return fmt.Sprintf("parent %q does not exist", n.ParentID)
	}
	if !p.Type.OwnsScope() {
		return fmt.Sprintf("parent %q has type %q, which cannot contain other nodes", p.ID, p.Type)
	}
	if g.onParentCycle(n) {
		return "parent chain loops back to this node"
	}
	return ""
}

func (g *Graph) onParentCycle(n *Node) bool {
	cur := n.ParentID
	for steps := 0; steps <= len(g.Nodes) && cur != ""; steps++ {
		if cur == n.ID {
			return true
		}
		p, ok := g.Node(cur)
		if !ok {
			return false
		}
		cur = p.ParentID
	}
	return false
}

// IsOrphan reports whether n declares a parent it cannot be nested under.
func (g *Graph) IsOrphan(n *Node) bool {
	return g.OrphanReason(n) != ""
}

// EffectiveParent returns the id of the scope n is emitted in: its declared
// parent when valid, "" (top level) otherwise.
func (g *Graph) EffectiveParent(n *Node) string {
	if g.IsOrphan(n) {
		return ""
	}
	return n.ParentID
}

// ScopeMembers returns the nodes emitted directly inside scope parentID, in
// definition order. The empty id names the top level, which also receives
// orphans under OrphanTopLevel.
func (g *Graph) ScopeMembers(parentID string, policy OrphanPolicy) []*Node {
	g.index()
	var out []*Node
	for _, n := range g.Nodes {
		if n == nil || g.byID[n.ID] != n {
			continue
		}
		if n.ParentID == parentID && !g.IsOrphan(n) {
			out = append(out, n)
			continue
		}
		if parentID == "" && policy != OrphanError && g.IsOrphan(n) {
			out = append(out, n)
		}
	}
	return out
}

// Repair returns a copy of g with orphans resolved according to policy:
// OrphanTopLevel detaches them, OrphanError removes them together with their
// descendants. Connections with a missing endpoint are dropped in both cases.
// Every change is reported as a warning.
func Repair(g *Graph, policy OrphanPolicy) (*Graph, []LintError) {
	var fixes []LintError
	removed := make(map[string]bool)

	nodes := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n == nil {
			continue
		}
		cp := *n
		if reason := g.OrphanReason(n); reason != "" {
			if policy == OrphanError {
				removed[n.ID] = true
				fixes = append(fixes, LintError{NodeID: n.ID, Severity: SeverityWarning, Message: "removed orphan: " + reason})
				continue
			}
			cp.ParentID = ""
			fixes = append(fixes, LintError{NodeID: n.ID, Severity: SeverityWarning, Message: "moved orphan to top level: " + reason})
		}
		nodes = append(nodes, &cp)
	}

	if policy == OrphanError {
		for changed := true; changed; {
			changed = false
			kept := nodes[:0]
			for _, n := range nodes {
				if n.ParentID != "" && removed[n.ParentID] {
					removed[n.ID] = true
					changed = true
					fixes = append(fixes, LintError{NodeID: n.ID, Severity: SeverityWarning, Message: fmt.Sprintf("removed with orphaned parent %q", n.ParentID)})
					continue
				}
				kept = append(kept, n)
			}
			nodes = kept
		}
	}

	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
	}
	conns := make([]*Connection, 0, len(g.Connections))
	for _, c := range g.Connections {
		if c == nil {
			continue
		}
		if !present[c.SourceNode] || !present[c.TargetNode] {
			fixes = append(fixes, LintError{Severity: SeverityWarning, Message: fmt.Sprintf("dropped connection %s -> %s", c.SourceNode, c.TargetNode)})
			continue
		}
		cp := *c
		conns = append(conns, &cp)
	}
	return NewGraph(nodes, conns), fixes
}
