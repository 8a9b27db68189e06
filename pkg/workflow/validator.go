package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Severity grades a LintError.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// LintError describes a structural problem in a workflow.
type LintError struct {
	NodeID   string   `json:"node_id,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (e LintError) Error() string {
	msg := e.Message
	if e.NodeID != "" {
		msg = fmt.Sprintf("node %q: %s", e.NodeID, e.Message)
	}
	if e.Severity == SeverityWarning {
		return "warning: " + msg
	}
	return msg
}

// PropertyValidator checks a node's properties against its type's schema and
// returns one message per problem.
type PropertyValidator interface {
	ValidateProperties(nodeType NodeType, props map[string]any) []string
}

type validateConfig struct {
	orphans    OrphanPolicy
	properties PropertyValidator
}

// ValidateOption configures Validate.
type ValidateOption func(*validateConfig)

// WithOrphans selects how orphans are graded. The default is OrphanTopLevel,
// which reports them as warnings.
func WithOrphans(p OrphanPolicy) ValidateOption {
	return func(c *validateConfig) { c.orphans = p }
}

// WithProperties enables per-node property checks.
func WithProperties(v PropertyValidator) ValidateOption {
	return func(c *validateConfig) { c.properties = v }
}

// Validate checks a workflow for structural correctness.
// Returns all discovered problems (not just the first), in a stable order.
func Validate(g *Graph, opts ...ValidateOption) []LintError {
	cfg := validateConfig{orphans: OrphanTopLevel}
	for _, o := range opts {
		o(&cfg)
	}

	var errs []LintError
	seen := make(map[string]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		if n == nil {
			errs = append(errs, LintError{Severity: SeverityError, Message: fmt.Sprintf("node at index %d is null", i)})
			continue
		}
		if n.ID == "" {
			errs = append(errs, LintError{Severity: SeverityError, Message: fmt.Sprintf("node at index %d has no id", i)})
			continue
		}
		if seen[n.ID] {
			errs = append(errs, LintError{NodeID: n.ID, Severity: SeverityError, Message: "duplicate node id"})
			continue
		}
		seen[n.ID] = true
		if n.Type == "" {
			errs = append(errs, LintError{NodeID: n.ID, Severity: SeverityError, Message: "node has no type"})
		}
	}

	// All connection endpoints must reference existing nodes.
	for _, c := range g.Connections {
		if c == nil {
			continue
		}
		if _, ok := g.Node(c.SourceNode); !ok {
			errs = append(errs, LintError{Severity: SeverityError, Message: fmt.Sprintf("connection references unknown source node %q", c.SourceNode)})
		}
		if _, ok := g.Node(c.TargetNode); !ok {
			errs = append(errs, LintError{Severity: SeverityError, Message: fmt.Sprintf("connection references unknown target node %q", c.TargetNode)})
		}
	}

	sev := SeverityWarning
	if cfg.orphans == OrphanError {
		sev = SeverityError
	}
	for _, n := range g.Nodes {
		if n == nil || n.ID == "" {
			continue
		}
		if reason := g.OrphanReason(n); reason != "" {
			errs = append(errs, LintError{NodeID: n.ID, Severity: sev, Message: "orphaned node: " + reason})
		}
	}

	if err := DetectCycles(g); err != nil {
		errs = append(errs, LintError{Severity: SeverityError, Message: err.Error()})
	}

	if cfg.properties != nil {
		for _, n := range g.Nodes {
			if n == nil || n.ID == "" {
				continue
			}
			for _, msg := range cfg.properties.ValidateProperties(n.Type, n.Properties) {
				errs = append(errs, LintError{NodeID: n.ID, Severity: SeverityError, Message: msg})
			}
		}
	}

	return errs
}

// HasErrors reports whether any entry is graded as an error.
func HasErrors(errs []LintError) bool {
	for _, e := range errs {
		if e.Severity != SeverityWarning {
			return true
		}
	}
	return false
}

// ErrInvalid is matched by the error ValidateErr returns.
var ErrInvalid = errors.New("invalid workflow")

// ValidateErr calls Validate and returns nil if there are no errors, or a
// combined error message listing all of them. Warnings are not included.
func ValidateErr(g *Graph, opts ...ValidateOption) error {
	var msgs []string
	for _, e := range Validate(g, opts...) {
		if e.Severity == SeverityWarning {
			continue
		}
		msgs = append(msgs, e.Error())
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: workflow validation failed:\n  %s", ErrInvalid, strings.Join(msgs, "\n  "))
}
