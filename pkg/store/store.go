// Package store keeps editable workflows in memory for the HTTP API.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

var (
	// ErrNotFound is returned when a workflow, node or connection id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for edits that would break the workflow.
	ErrInvalid = errors.New("invalid edit")
	// ErrExists is returned when a caller-chosen id is already taken.
	ErrExists = errors.New("already exists")
)

// DefaultName is given to workflows created without one.
const DefaultName = "Untitled Workflow"

// Workflow is a stored workflow together with its bookkeeping fields.
type Workflow struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Version     string                 `json:"version,omitempty"`
	Author      string                 `json:"author,omitempty"`
	Nodes       []*workflow.Node       `json:"nodes"`
	Connections []*workflow.Connection `json:"connections"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Graph returns a snapshot suitable for validation and compilation.
func (w *Workflow) Graph() *workflow.Graph {
	return workflow.NewGraph(w.Nodes, w.Connections)
}

// Metadata returns the export metadata of w.
func (w *Workflow) Metadata() *workflow.Metadata {
	return &workflow.Metadata{Name: w.Name, Description: w.Description, Version: w.Version, Author: w.Author}
}

// Document converts w into its persisted document form.
func (w *Workflow) Document() *workflow.Document {
	return &workflow.Document{Nodes: w.Nodes, Connections: w.Connections, Metadata: w.Metadata()}
}

func (w *Workflow) clone() *Workflow {
	out := *w
	out.Nodes = make([]*workflow.Node, len(w.Nodes))
	for i, n := range w.Nodes {
		out.Nodes[i] = cloneNode(n)
	}
	out.Connections = make([]*workflow.Connection, len(w.Connections))
	for i, c := range w.Connections {
		if c != nil {
			cc := *c
			out.Connections[i] = &cc
		}
	}
	return &out
}

func cloneNode(n *workflow.Node) *workflow.Node {
	if n == nil {
		return nil
	}
	out := *n
	if n.Properties != nil {
		out.Properties = make(map[string]any, len(n.Properties))
		for k, v := range n.Properties {
			out.Properties[k] = v
		}
	}
	return &out
}

// Patch lists the fields Update replaces. Nil fields are left alone.
type Patch struct {
	Name        *string                 `json:"name"`
	Description *string                 `json:"description"`
	Version     *string                 `json:"version"`
	Author      *string                 `json:"author"`
	Nodes       *[]*workflow.Node       `json:"nodes"`
	Connections *[]*workflow.Connection `json:"connections"`
}

// Store is a thread-safe collection of workflows. Every value it hands out
// is a copy, so callers may modify results freely.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
	order     []string
	now       func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{workflows: make(map[string]*Workflow), now: time.Now}
}

func newID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id[:8]
}

// Create stores a new workflow. An empty ID is replaced with a fresh uuid and
// an empty name with DefaultName. Nodes and connections are taken as given.
func (s *Store) Create(w Workflow) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = newID("")
	}
	if _, dup := s.workflows[w.ID]; dup {
		return nil, fmt.Errorf("%w: workflow %q", ErrExists, w.ID)
	}
	if strings.TrimSpace(w.Name) == "" {
		w.Name = DefaultName
	}
	if w.Nodes == nil {
		w.Nodes = []*workflow.Node{}
	}
	if w.Connections == nil {
		w.Connections = []*workflow.Connection{}
	}
	now := s.now()
	w.CreatedAt, w.UpdatedAt = now, now
	stored := w.clone()
	s.workflows[w.ID] = stored
	s.order = append(s.order, w.ID)
	return stored.clone(), nil
}

// List returns all workflows in creation order.
func (s *Store) List() []*Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Workflow, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.workflows[id].clone())
	}
	return out
}

// Get returns the workflow with the given id.
func (s *Store) Get(id string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %q", ErrNotFound, id)
	}
	return w.clone(), nil
}

// Update applies p to the workflow with the given id.
func (s *Store) Update(id string, p Patch) (*Workflow, error) {
	return s.edit(id, func(w *Workflow) error {
		if p.Name != nil {
			w.Name = *p.Name
		}
		if p.Description != nil {
			w.Description = *p.Description
		}
		if p.Version != nil {
			w.Version = *p.Version
		}
		if p.Author != nil {
			w.Author = *p.Author
		}
		if p.Nodes != nil {
			w.Nodes = *p.Nodes
		}
		if p.Connections != nil {
			w.Connections = *p.Connections
		}
		return nil
	})
}

// Delete removes the workflow with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return fmt.Errorf("%w: workflow %q", ErrNotFound, id)
	}
	delete(s.workflows, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// edit runs fn against a working copy and commits it only when fn succeeds.
func (s *Store) edit(id string, fn func(*Workflow) error) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %q", ErrNotFound, id)
	}
	w := cur.clone()
	if err := fn(w); err != nil {
		return nil, err
	}
	w.UpdatedAt = s.now()
	s.workflows[id] = w
	return w.clone(), nil
}

func indexOfNode(w *Workflow, id string) int {
	for i, n := range w.Nodes {
		if n != nil && n.ID == id {
			return i
		}
	}
	return -1
}

// AddNode appends n to a workflow. An empty node id is generated; the type
// is required.
func (s *Store) AddNode(workflowID string, n workflow.Node) (*workflow.Node, error) {
	var added *workflow.Node
	_, err := s.edit(workflowID, func(w *Workflow) error {
		if n.Type == "" {
			return fmt.Errorf("%w: node type is required", ErrInvalid)
		}
		if n.ID == "" {
			n.ID = newID("node")
		}
		if indexOfNode(w, n.ID) >= 0 {
			return fmt.Errorf("%w: node %q", ErrExists, n.ID)
		}
		if n.Properties == nil {
			n.Properties = map[string]any{}
		}
		added = cloneNode(&n)
		w.Nodes = append(w.Nodes, added)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cloneNode(added), nil
}

// DeleteNode removes a node and every connection touching it. Children of
// the node move up to its parent, or are removed with it when cascade is set.
func (s *Store) DeleteNode(workflowID, nodeID string, cascade bool) error {
	_, err := s.edit(workflowID, func(w *Workflow) error {
		i := indexOfNode(w, nodeID)
		if i < 0 {
			return fmt.Errorf("%w: node %q", ErrNotFound, nodeID)
		}
		parent := w.Nodes[i].ParentID

		removed := map[string]bool{nodeID: true}
		if cascade {
			for grew := true; grew; {
				grew = false
				for _, n := range w.Nodes {
					if n != nil && !removed[n.ID] && removed[n.ParentID] {
						removed[n.ID] = true
						grew = true
					}
				}
			}
		}

		kept := w.Nodes[:0]
		for _, n := range w.Nodes {
			if n == nil || removed[n.ID] {
				continue
			}
			if n.ParentID == nodeID {
				n.ParentID = parent
			}
			kept = append(kept, n)
		}
		w.Nodes = kept

		conns := w.Connections[:0]
		for _, c := range w.Connections {
			if c == nil || removed[c.SourceNode] || removed[c.TargetNode] {
				continue
			}
			conns = append(conns, c)
		}
		w.Connections = conns
		return nil
	})
	return err
}

// AddConnection links two existing nodes of a workflow.
func (s *Store) AddConnection(workflowID string, c workflow.Connection) (*workflow.Connection, error) {
	var added workflow.Connection
	_, err := s.edit(workflowID, func(w *Workflow) error {
		if c.SourceNode == "" || c.TargetNode == "" {
			return fmt.Errorf("%w: connection needs source_node and target_node", ErrInvalid)
		}
		if c.SourceNode == c.TargetNode {
			return fmt.Errorf("%w: node %q cannot connect to itself", ErrInvalid, c.SourceNode)
		}
		for _, id := range []string{c.SourceNode, c.TargetNode} {
			if indexOfNode(w, id) < 0 {
				return fmt.Errorf("%w: connection references unknown node %q", ErrInvalid, id)
			}
		}
		if c.ID == "" {
			c.ID = newID("conn")
		}
		for _, existing := range w.Connections {
			if existing != nil && existing.ID == c.ID {
				return fmt.Errorf("%w: connection %q", ErrExists, c.ID)
			}
		}
		added = c
		w.Connections = append(w.Connections, &c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// DeleteConnection removes a connection by id.
func (s *Store) DeleteConnection(workflowID, connID string) error {
	_, err := s.edit(workflowID, func(w *Workflow) error {
		for i, c := range w.Connections {
			if c != nil && c.ID == connID {
				w.Connections = append(w.Connections[:i], w.Connections[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: connection %q", ErrNotFound, connID)
	})
	return err
}

// snapshot is the JSON form written by Save.
type snapshot struct {
	Workflows []*Workflow `json:"workflows"`
}

// Save writes every workflow to a JSON file at path.
func (s *Store) Save(path string) error {
	data, err := json.MarshalIndent(snapshot{Workflows: s.List()}, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("snapshot write: %w", err)
	}
	return nil
}

// Load restores a Store from a file written by Save.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot read: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot unmarshal: %w", err)
	}
	s := New()
	for _, w := range snap.Workflows {
		if w == nil || w.ID == "" {
			continue
		}
		if _, dup := s.workflows[w.ID]; dup {
			return nil, fmt.Errorf("snapshot: %w: workflow %q", ErrExists, w.ID)
		}
		s.workflows[w.ID] = w.clone()
		s.order = append(s.order, w.ID)
	}
	return s, nil
}
