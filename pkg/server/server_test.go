package server_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
	"github.com/ravi-parthasarathy/agentblocks/pkg/server"
	"github.com/ravi-parthasarathy/agentblocks/pkg/store"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func newServer(t *testing.T, cfg server.Config) (*httptest.Server, *store.Store) {
	t.Helper()
	c, err := server.NewConfig(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(server.New(c).Handler())
	t.Cleanup(ts.Close)
	return ts, c.Store
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// seed creates a workflow holding a variable feeding a print.
func seed(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/api/workflows", map[string]any{"name": "Greeter"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	wf := decode[store.Workflow](t, resp)

	resp = do(t, http.MethodPost, ts.URL+"/api/workflows/"+wf.ID+"/nodes", map[string]any{
		"id": "v1", "type": "variable", "position": map[string]any{"x": 0, "y": 0},
		"properties": map[string]any{"name": "greeting", "value": "Hello"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, http.MethodPost, ts.URL+"/api/workflows/"+wf.ID+"/nodes", map[string]any{
		"id": "p1", "node_type": "print", "position": map[string]any{"x": 0, "y": 100},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, http.MethodPost, ts.URL+"/api/workflows/"+wf.ID+"/connections", map[string]any{
		"source_node": "v1", "source_output": "output", "target_node": "p1", "target_input": "input",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return wf.ID
}

func TestNewConfig(t *testing.T) {
	t.Parallel()
	c, err := server.NewConfig(server.Config{})
	require.NoError(t, err)
	assert.Equal(t, server.DefaultAddr, c.Addr)
	assert.Equal(t, codegen.TargetPython, c.Target)
	assert.Equal(t, workflow.OrphanTopLevel, c.Orphans)
	assert.NotNil(t, c.Store)
	assert.Nil(t, c.Runner)

	c, err = server.NewConfig(server.Config{AllowExecute: true})
	require.NoError(t, err)
	assert.NotNil(t, c.Runner)

	_, err = server.NewConfig(server.Config{Target: "cobol"})
	assert.ErrorIs(t, err, codegen.ErrUnknownTarget)
	_, err = server.NewConfig(server.Config{Orphans: "ignore"})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, server.Config{})
	resp := do(t, http.MethodGet, ts.URL+"/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestWorkflowLifecycle(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, server.Config{})
	id := seed(t, ts)

	resp := do(t, http.MethodGet, ts.URL+"/api/workflows", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]store.Workflow](t, resp), 1)

	resp = do(t, http.MethodPut, ts.URL+"/api/workflows/"+id, map[string]any{"description": "says hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	wf := decode[store.Workflow](t, resp)
	assert.Equal(t, "Greeter", wf.Name)
	assert.Equal(t, "says hello", wf.Description)
	require.Len(t, wf.Nodes, 2)
	assert.Equal(t, workflow.NodeTypePrint, wf.Nodes[1].Type)
	require.Len(t, wf.Connections, 1)

	resp = do(t, http.MethodDelete, ts.URL+"/api/workflows/"+id+"/connections/"+wf.Connections[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodDelete, ts.URL+"/api/workflows/"+id+"/nodes/v1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodDelete, ts.URL+"/api/workflows/"+id+"/nodes/v1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodDelete, ts.URL+"/api/workflows/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodGet, ts.URL+"/api/workflows/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decode[map[string]any](t, resp)["error"], "not found")
}

func TestBadRequests(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, server.Config{})
	id := seed(t, ts)

	resp := do(t, http.MethodPost, ts.URL+"/api/workflows/"+id+"/connections", map[string]any{
		"source_node": "v1", "target_node": "ghost",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/workflows/"+id+"/nodes", map[string]any{"id": "v1", "type": "print"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, ts.URL+"/api/workflows", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/workflows/"+id+"/code?target=cobol", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()
	ts, st := newServer(t, server.Config{})
	id := seed(t, ts)

	resp := do(t, http.MethodGet, ts.URL+"/api/workflows/"+id+"/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, true, body["valid"])

	_, err := st.AddNode(id, workflow.Node{ID: "w1", Type: workflow.NodeTypeWriteFile})
	require.NoError(t, err)
	resp = do(t, http.MethodGet, ts.URL+"/api/workflows/"+id+"/validate", nil)
	body = decode[map[string]any](t, resp)
	assert.Equal(t, false, body["valid"])
	assert.NotEmpty(t, body["errors"])
}

func TestCodeAndGenerate(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, server.Config{})
	id := seed(t, ts)

	resp := do(t, http.MethodGet, ts.URL+"/api/workflows/"+id+"/code", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[codegen.Output](t, resp)
	assert.Equal(t, codegen.TargetPython, out.Target)
	assert.Contains(t, out.Source, "# Workflow: Greeter")
	assert.Contains(t, out.Source, "greeting = \"Hello\"\nprint(greeting)\n")

	resp = do(t, http.MethodGet, ts.URL+"/api/workflows/"+id+"/code?target=rust", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decode[codegen.Output](t, resp)
	assert.Contains(t, out.Source, "println!(\"{}\", greeting);")

	doc := map[string]any{
		"nodes": []any{map[string]any{"id": "x", "type": "mystery"}},
	}
	resp = do(t, http.MethodPost, ts.URL+"/api/generate", doc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decode[codegen.Output](t, resp)
	assert.Contains(t, out.Source, "mystery")
}

func TestExportEndpoint(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, server.Config{})
	id := seed(t, ts)

	resp := do(t, http.MethodGet, ts.URL+"/api/workflows/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "greeter.py")
	assert.Contains(t, resp.Header.Get("Content-Type"), "python")

	resp = do(t, http.MethodGet, ts.URL+"/api/workflows/"+id+"/export?format=bundle&target=rust", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, filepath.Base(f.Name))
	}
	assert.ElementsMatch(t, []string{"greeter.rs", "workflow.json", "manifest.json"}, names)

	resp = do(t, http.MethodPost, ts.URL+"/api/workflows", map[string]any{"id": "empty", "name": "Empty"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, http.MethodGet, ts.URL+"/api/workflows/empty/export", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.NotEmpty(t, body["errors"])
}

func TestExecute(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, server.Config{})
	id := seed(t, ts)
	resp := do(t, http.MethodPost, ts.URL+"/api/execute/"+id, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	ts, _ = newServer(t, server.Config{AllowExecute: true})
	id = seed(t, ts)
	resp = do(t, http.MethodPost, ts.URL+"/api/execute/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Hello\n", body["stdout"])
	assert.Equal(t, id, body["workflow_id"])
}

func TestDefinitions(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, server.Config{})

	resp := do(t, http.MethodGet, ts.URL+"/api/definitions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, len(decode[[]map[string]any](t, resp)), 12)

	resp = do(t, http.MethodGet, ts.URL+"/api/definitions/http", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http_request", decode[map[string]any](t, resp)["type"])

	resp = do(t, http.MethodGet, ts.URL+"/api/definitions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/definitions/while/validate", map[string]any{
		"properties": map[string]any{"condition": "x < 3", "max_iterations": "lots"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[map[string]any](t, resp)
	assert.Equal(t, false, res["valid"])

	resp = do(t, http.MethodPost, ts.URL+"/api/definitions/while/validate", map[string]any{"condition": "x < 3"})
	res = decode[map[string]any](t, resp)
	assert.Equal(t, true, res["valid"])
}

func TestCORS(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t, server.Config{})
	req, err := http.NewRequestWithContext(t.Context(), http.MethodOptions, ts.URL+"/api/workflows", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
