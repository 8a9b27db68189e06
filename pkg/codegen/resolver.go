package codegen

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnresolved is matched by every *ResolutionError.
var ErrUnresolved = errors.New("unresolved reference")

// ResolutionError reports a connection whose producer has no identifier for
// the requested slot at the point the consumer is emitted. It indicates an
// ordering or emission fault, not a user error.
type ResolutionError struct {
	NodeID string
	Source string
	Slot   string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("node %q: %s", e.NodeID, e.Detail())
}

// Detail is the message without the consumer's node id.
func (e *ResolutionError) Detail() string {
	return fmt.Sprintf("cannot resolve %s.%s: %s", e.Source, e.Slot, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return ErrUnresolved }

type slotKey struct {
	node string
	slot string
}

// bodyOnly is the frame of a binding that exists only inside its producer's
// own body, such as a loop variable.
const bodyOnly = 0

type binding struct {
	ident string
	frame int
}

type scope struct {
	id    int
	names map[string]bool
	// function scopes make every assignment local, so lookups of an
	// assigned name stop here.
	function bool
}

// Resolver maps producer outputs to the identifiers that hold them and
// tracks which names are declared in the scopes currently open. A Resolver
// belongs to a single compilation.
type Resolver struct {
	lang     Language
	bindings map[slotKey]binding
	debug    map[string]bool
	owners   map[string]string
	scopes   []scope
	frames   int
}

// NewResolver returns a resolver with the outermost scope open.
func NewResolver(lang Language) *Resolver {
	return &Resolver{
		lang:     lang,
		bindings: make(map[slotKey]binding),
		debug:    make(map[string]bool),
		owners:   make(map[string]string),
		scopes:   []scope{{id: 1, names: map[string]bool{}}},
		frames:   1,
	}
}

// Push opens a nested scope.
func (r *Resolver) Push() { r.push(false) }

// PushFunction opens a function scope in which assigning to a name always
// creates a local, even when an enclosing scope declares it.
func (r *Resolver) PushFunction() { r.push(true) }

func (r *Resolver) push(function bool) {
	r.frames++
	r.scopes = append(r.scopes, scope{id: r.frames, names: map[string]bool{}, function: function})
}

// Pop closes the innermost scope. The outermost scope is never closed.
func (r *Resolver) Pop() {
	if len(r.scopes) > 1 {
		r.scopes = r.scopes[:len(r.scopes)-1]
	}
}

// Depth is the number of open scopes.
func (r *Resolver) Depth() int { return len(r.scopes) }

// Declare records name in the innermost scope.
func (r *Resolver) Declare(name string) { r.scopes[len(r.scopes)-1].names[name] = true }

// Declared reports whether name is visible from the innermost scope.
func (r *Resolver) Declared(name string) bool {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if r.scopes[i].names[name] {
			return true
		}
	}
	return false
}

// Bind records that slot of nodeID is held by ident. The binding lives in
// the scope that already declares ident, or in the innermost scope.
func (r *Resolver) Bind(nodeID, slot, ident string) {
	r.bindings[slotKey{nodeID, slot}] = binding{ident: ident, frame: r.frameOf(ident)}
}

func (r *Resolver) frameOf(ident string) int {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if r.scopes[i].names[ident] {
			return r.scopes[i].id
		}
		if r.scopes[i].function {
			break
		}
	}
	return r.scopes[len(r.scopes)-1].id
}

// BindLocal records a binding that only exists inside nodeID's own body.
func (r *Resolver) BindLocal(nodeID, slot, ident string) {
	r.bindings[slotKey{nodeID, slot}] = binding{ident: ident, frame: bodyOnly}
}

// Unbind removes a binding made by Bind.
func (r *Resolver) Unbind(nodeID, slot string) {
	delete(r.bindings, slotKey{nodeID, slot})
}

// MarkDebug flags ident as holding a value without a plain display form.
func (r *Resolver) MarkDebug(ident string) { r.debug[ident] = true }

// IsDebug reports whether ident was flagged by MarkDebug.
func (r *Resolver) IsDebug(ident string) bool { return r.debug[ident] }

// Lookup returns the identifier bound to slot of nodeID. A slot the producer
// does not expose falls back to its "output" binding.
func (r *Resolver) Lookup(nodeID, slot string) (string, bool) {
	b, ok := r.lookup(nodeID, slot)
	return b.ident, ok
}

// InScope reports whether the identifier Lookup returns for slot of nodeID
// is declared in a scope that is still open. Bindings made with BindLocal
// are never in scope here; their producer decides where they are visible.
func (r *Resolver) InScope(nodeID, slot string) bool {
	b, ok := r.lookup(nodeID, slot)
	if !ok || b.frame == bodyOnly {
		return false
	}
	for _, s := range r.scopes {
		if s.id == b.frame {
			return true
		}
	}
	return false
}

func (r *Resolver) lookup(nodeID, slot string) (binding, bool) {
	if b, ok := r.bindings[slotKey{nodeID, slot}]; ok {
		return b, true
	}
	b, ok := r.bindings[slotKey{nodeID, "output"}]
	return b, ok
}

// Bound reports whether nodeID has any binding at all.
func (r *Resolver) Bound(nodeID string) bool {
	for k := range r.bindings {
		if k.node == nodeID {
			return true
		}
	}
	return false
}

// Claim returns a valid identifier derived from base that no other node has
// claimed. The same node may claim the same name repeatedly, which is how
// variable nodes that share a name reassign one variable.
func (r *Resolver) Claim(nodeID, base string, shared bool) string {
	name := r.lang.Sanitize(base)
	if shared {
		if _, taken := r.owners[name]; !taken {
			r.owners[name] = nodeID
		}
		return name
	}
	candidate := name
	for i := 2; ; i++ {
		owner, taken := r.owners[candidate]
		if !taken || owner == nodeID {
			r.owners[candidate] = nodeID
			return candidate
		}
		candidate = name + "_" + strconv.Itoa(i)
	}
}
