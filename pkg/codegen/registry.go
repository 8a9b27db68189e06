package codegen

import (
	"fmt"
	"sort"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// Emitter turns one node into statements. Emitters are language-agnostic:
// they resolve inputs and build a data record, and Context.Render applies the
// target language's rule to it.
type Emitter interface {
	Emit(ctx *Context, n *workflow.Node) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx *Context, n *workflow.Node) error

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx *Context, n *workflow.Node) error { return f(ctx, n) }

// Registry maps node types to emitters.
type Registry struct {
	emitters map[workflow.NodeType]Emitter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{emitters: make(map[workflow.NodeType]Emitter)}
}

// DefaultRegistry returns a registry with an emitter for every built-in node type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(workflow.NodeTypeVariable, EmitterFunc(emitVariable))
	r.Register(workflow.NodeTypePrint, EmitterFunc(emitPrint))
	r.Register(workflow.NodeTypeAssignment, EmitterFunc(emitAssignment))
	r.Register(workflow.NodeTypeIfThen, EmitterFunc(emitIf))
	r.Register(workflow.NodeTypeForEach, EmitterFunc(emitForEach))
	r.Register(workflow.NodeTypeWhile, EmitterFunc(emitWhile))
	r.Register(workflow.NodeTypeFunction, EmitterFunc(emitFunction))
	r.Register(workflow.NodeTypeExecute, EmitterFunc(emitExecute))
	r.Register(workflow.NodeTypeHTTPRequest, EmitterFunc(emitHTTP))
	r.Register(workflow.NodeTypeReadFile, EmitterFunc(emitReadFile))
	r.Register(workflow.NodeTypeWriteFile, EmitterFunc(emitWriteFile))
	r.Register(workflow.NodeTypeGrep, EmitterFunc(emitGrep))
	return r
}

// Register associates an emitter with a node type, replacing any previous one.
func (r *Registry) Register(nodeType workflow.NodeType, e Emitter) {
	r.emitters[nodeType] = e
}

// Get returns the emitter for a node type or one of its aliases.
func (r *Registry) Get(nodeType workflow.NodeType) (Emitter, error) {
	if e, ok := r.emitters[nodeType]; ok {
		return e, nil
	}
	if e, ok := r.emitters[nodeType.Canonical()]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("no emitter registered for node type %q", nodeType)
}

// Types lists the registered node types, sorted.
func (r *Registry) Types() []workflow.NodeType {
	out := make([]workflow.NodeType, 0, len(r.emitters))
	for t := range r.emitters {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
