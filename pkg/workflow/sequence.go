package workflow

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is matched by every *CycleError.
var ErrCycle = errors.New("data-flow cycle")

// CycleError reports the nodes the sequencer could not order: the members of
// one or more cycles plus anything that depends on them.
type CycleError struct {
	NodeIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("workflow contains a cycle involving nodes %s", strings.Join(e.NodeIDs, ", "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// Sequence orders nodes so that every connection between two of them runs
// from an earlier node to a later one. Connections with an endpoint outside
// nodes are ignored. Among nodes that are ready at the same time, the one
// highest on the canvas goes first, then the leftmost, then the lowest id.
//
// When the connections contain a cycle, Sequence returns the acyclic prefix
// together with a *CycleError naming the remaining nodes.
func Sequence(nodes []*Node, conns []*Connection) ([]*Node, error) {
	members := make(map[string]*Node, len(nodes))
	var unique []*Node
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if _, dup := members[n.ID]; dup {
			continue
		}
		members[n.ID] = n
		unique = append(unique, n)
	}

	indegree := make(map[string]int, len(unique))
	succ := make(map[string][]string)
	for _, c := range conns {
		if c == nil {
			continue
		}
		if _, ok := members[c.SourceNode]; !ok {
			continue
		}
		if _, ok := members[c.TargetNode]; !ok {
			continue
		}
		succ[c.SourceNode] = append(succ[c.SourceNode], c.TargetNode)
		indegree[c.TargetNode]++
	}

	ready := &nodeQueue{}
	for _, n := range unique {
		if indegree[n.ID] == 0 {
			heap.Push(ready, n)
		}
	}

	order := make([]*Node, 0, len(unique))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(*Node)
		order = append(order, n)
		for _, next := range succ[n.ID] {
			indegree[next]--
			if indegree[next] == 0 {
				heap.Push(ready, members[next])
			}
		}
	}

	if len(order) == len(unique) {
		return order, nil
	}
	placed := make(map[string]bool, len(order))
	for _, n := range order {
		placed[n.ID] = true
	}
	var rest []*Node
	for _, n := range unique {
		if !placed[n.ID] {
			rest = append(rest, n)
		}
	}
	SortByPosition(rest)
	ids := make([]string, len(rest))
	for i, n := range rest {
		ids[i] = n.ID
	}
	return order, &CycleError{NodeIDs: ids}
}

// SequenceScope orders the members of one scope. Connections that start or
// end inside a nested block are attributed to the member that contains them,
// so a block runs after everything its children read from.
func (g *Graph) SequenceScope(members []*Node) ([]*Node, error) {
	in := make(map[string]bool, len(members))
	for _, n := range members {
		if n != nil {
			in[n.ID] = true
		}
	}
	var lifted []*Connection
	for _, c := range g.Connections {
		if c == nil {
			continue
		}
		from := g.memberAncestor(c.SourceNode, in)
		to := g.memberAncestor(c.TargetNode, in)
		if from == "" || to == "" || from == to {
			continue
		}
		lifted = append(lifted, &Connection{SourceNode: from, TargetNode: to})
	}
	return Sequence(members, lifted)
}

// memberAncestor walks up the parent chain of id and returns the first node
// that belongs to in, or "" if none does.
func (g *Graph) memberAncestor(id string, in map[string]bool) string {
	cur := id
	for steps := 0; steps <= len(g.Nodes); steps++ {
		if in[cur] {
			return cur
		}
		n, ok := g.Node(cur)
		if !ok || n.ParentID == "" {
			return ""
		}
		cur = n.ParentID
	}
	return ""
}

// DetectCycles reports whether the data-flow graph as a whole contains a
// cycle. It returns nil or a *CycleError.
func DetectCycles(g *Graph) error {
	_, err := Sequence(g.Nodes, g.Connections)
	return err
}

// SortByPosition sorts nodes top-to-bottom, then left-to-right, then by id.
func SortByPosition(nodes []*Node) {
	sort.Sort(nodeQueue(nodes))
}

// nodeQueue is a min-heap of nodes ordered by canvas position.
type nodeQueue []*Node

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.Position.Y != b.Position.Y {
		return a.Position.Y < b.Position.Y
	}
	if a.Position.X != b.Position.X {
		return a.Position.X < b.Position.X
	}
	return a.ID < b.ID
}

func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x any) { *q = append(*q, x.(*Node)) }

func (q *nodeQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}
