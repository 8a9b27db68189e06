package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/agentblocks/pkg/store"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func TestCreateDefaults(t *testing.T) {
	t.Parallel()
	s := store.New()
	w, err := s.Create(store.Workflow{})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, store.DefaultName, w.Name)
	assert.NotNil(t, w.Nodes)
	assert.NotNil(t, w.Connections)
	assert.False(t, w.CreatedAt.IsZero())

	_, err = s.Create(store.Workflow{ID: w.ID})
	assert.ErrorIs(t, err, store.ErrExists)
}

func TestListGetUpdateDelete(t *testing.T) {
	t.Parallel()
	s := store.New()
	a, err := s.Create(store.Workflow{ID: "a", Name: "A"})
	require.NoError(t, err)
	_, err = s.Create(store.Workflow{ID: "b", Name: "B"})
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	name := "Renamed"
	nodes := []*workflow.Node{{ID: "p1", Type: workflow.NodeTypePrint}}
	up, err := s.Update("a", store.Patch{Name: &name, Nodes: &nodes})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", up.Name)
	assert.Len(t, up.Nodes, 1)
	assert.Equal(t, a.CreatedAt, up.CreatedAt)

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	require.NoError(t, s.Delete("a"))
	_, err = s.Get("a")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete("a"), store.ErrNotFound)
	assert.Len(t, s.List(), 1)
}

func TestResultsAreCopies(t *testing.T) {
	t.Parallel()
	s := store.New()
	_, err := s.Create(store.Workflow{ID: "w"})
	require.NoError(t, err)
	n, err := s.AddNode("w", workflow.Node{ID: "v1", Type: workflow.NodeTypeVariable, Properties: map[string]any{"name": "x"}})
	require.NoError(t, err)
	n.Properties["name"] = "changed"

	w, err := s.Get("w")
	require.NoError(t, err)
	w.Nodes[0].Properties["name"] = "changed too"

	again, err := s.Get("w")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Nodes[0].Properties["name"])
}

func TestAddNode(t *testing.T) {
	t.Parallel()
	s := store.New()
	_, err := s.Create(store.Workflow{ID: "w"})
	require.NoError(t, err)

	n, err := s.AddNode("w", workflow.Node{Type: workflow.NodeTypePrint})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.NotNil(t, n.Properties)

	_, err = s.AddNode("w", workflow.Node{ID: n.ID, Type: workflow.NodeTypePrint})
	assert.ErrorIs(t, err, store.ErrExists)
	_, err = s.AddNode("w", workflow.Node{ID: "x"})
	assert.ErrorIs(t, err, store.ErrInvalid)
	_, err = s.AddNode("missing", workflow.Node{Type: workflow.NodeTypePrint})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConnections(t *testing.T) {
	t.Parallel()
	s := store.New()
	_, err := s.Create(store.Workflow{ID: "w"})
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		_, err := s.AddNode("w", workflow.Node{ID: id, Type: workflow.NodeTypePrint})
		require.NoError(t, err)
	}

	c, err := s.AddConnection("w", workflow.Connection{SourceNode: "a", SourceOutput: "output", TargetNode: "b", TargetInput: "input"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	cases := []workflow.Connection{
		{SourceNode: "a", TargetNode: "ghost"},
		{SourceNode: "ghost", TargetNode: "a"},
		{SourceNode: "a", TargetNode: "a"},
		{TargetNode: "b"},
	}
	for _, tc := range cases {
		_, err := s.AddConnection("w", tc)
		assert.ErrorIs(t, err, store.ErrInvalid, "%+v", tc)
	}

	require.NoError(t, s.DeleteConnection("w", c.ID))
	err = s.DeleteConnection("w", c.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func nested(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	_, err := s.Create(store.Workflow{ID: "w", Nodes: []*workflow.Node{
		{ID: "loop", Type: workflow.NodeTypeForEach},
		{ID: "cond", Type: workflow.NodeTypeIfThen, ParentID: "loop"},
		{ID: "p1", Type: workflow.NodeTypePrint, ParentID: "cond"},
		{ID: "p2", Type: workflow.NodeTypePrint},
	}, Connections: []*workflow.Connection{
		{ID: "c1", SourceNode: "loop", SourceOutput: "item", TargetNode: "p1"},
		{ID: "c2", SourceNode: "p2", TargetNode: "loop"},
	}})
	require.NoError(t, err)
	return s
}

func TestDeleteNode_Reparents(t *testing.T) {
	t.Parallel()
	s := nested(t)
	require.NoError(t, s.DeleteNode("w", "cond", false))

	w, err := s.Get("w")
	require.NoError(t, err)
	parents := map[string]string{}
	for _, n := range w.Nodes {
		parents[n.ID] = n.ParentID
	}
	assert.Equal(t, map[string]string{"loop": "", "p1": "loop", "p2": ""}, parents)
	assert.Len(t, w.Connections, 2)
}

func TestDeleteNode_Cascade(t *testing.T) {
	t.Parallel()
	s := nested(t)
	require.NoError(t, s.DeleteNode("w", "loop", true))

	w, err := s.Get("w")
	require.NoError(t, err)
	require.Len(t, w.Nodes, 1)
	assert.Equal(t, "p2", w.Nodes[0].ID)
	assert.Empty(t, w.Connections)

	assert.ErrorIs(t, s.DeleteNode("w", "loop", true), store.ErrNotFound)
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()
	s := nested(t)
	_, err := s.Create(store.Workflow{ID: "second", Name: "Second"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, s.Save(path))

	loaded, err := store.Load(path)
	require.NoError(t, err)
	list := loaded.List()
	require.Len(t, list, 2)
	assert.Equal(t, "w", list[0].ID)
	assert.Equal(t, "Second", list[1].Name)
	assert.Len(t, list[0].Nodes, 4)
	assert.Equal(t, "cond", list[0].Nodes[2].ParentID)

	_, err = store.Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestWorkflowGraph(t *testing.T) {
	t.Parallel()
	s := nested(t)
	w, err := s.Get("w")
	require.NoError(t, err)
	assert.Empty(t, workflow.Validate(w.Graph()))
	assert.Equal(t, store.DefaultName, w.Metadata().Name)
	assert.Len(t, w.Document().Nodes, 4)
}
