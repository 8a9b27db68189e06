package definitions

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

//go:embed builtin.yaml
var builtinYAML []byte

// Catalog is a read-only set of definitions keyed by node type. Aliases
// resolve to their canonical entry.
type Catalog struct {
	defs    map[string]*Definition
	aliases map[string]string
}

type catalogFile struct {
	Definitions []*Definition `yaml:"definitions" json:"definitions"`
}

var (
	builtinOnce sync.Once
	builtin     *Catalog
	builtinErr  error
)

// Builtin returns the catalog shipped with the binary.
func Builtin() *Catalog {
	builtinOnce.Do(func() {
		builtin, builtinErr = Parse(builtinYAML)
	})
	if builtinErr != nil {
		panic(fmt.Sprintf("definitions: builtin catalog is invalid: %v", builtinErr))
	}
	return builtin
}

// Parse decodes a catalog from YAML (or JSON, which is valid YAML).
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{defs: make(map[string]*Definition), aliases: make(map[string]string)}
	for i, d := range f.Definitions {
		if d == nil || d.Type == "" {
			return nil, fmt.Errorf("definition %d has no type", i)
		}
		if _, dup := c.defs[d.Type]; dup {
			return nil, fmt.Errorf("duplicate definition for type %q", d.Type)
		}
		for lang, t := range d.CodeGeneration {
			if t == nil {
				continue
			}
			switch t.Syntax {
			case "", SyntaxGo, SyntaxJinja, SyntaxFString:
			default:
				return nil, fmt.Errorf("definition %q: %s template has unknown syntax %q", d.Type, lang, t.Syntax)
			}
		}
		c.defs[d.Type] = d
		for _, a := range d.Aliases {
			c.aliases[a] = d.Type
		}
	}
	return c, nil
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Merge returns a catalog holding c's definitions overlaid with other's.
// Neither input is modified.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{defs: make(map[string]*Definition), aliases: make(map[string]string)}
	for _, src := range []*Catalog{c, other} {
		if src == nil {
			continue
		}
		for k, v := range src.defs {
			out.defs[k] = v
		}
		for k, v := range src.aliases {
			out.aliases[k] = v
		}
	}
	return out
}

// Get returns the definition for a node type or one of its aliases.
func (c *Catalog) Get(nodeType string) (*Definition, bool) {
	if c == nil {
		return nil, false
	}
	if d, ok := c.defs[nodeType]; ok {
		return d, true
	}
	if canon, ok := c.aliases[nodeType]; ok {
		return c.defs[canon], true
	}
	if canon := string(workflow.NodeType(nodeType).Canonical()); canon != nodeType {
		d, ok := c.defs[canon]
		return d, ok
	}
	return nil, false
}

// List returns all definitions sorted by category, then type.
func (c *Catalog) List() []*Definition {
	out := make([]*Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Result is the outcome of validating a node's properties.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks props against the schema for nodeType. Hidden properties
// (whose showIf rule does not hold) are not required. Properties the schema
// does not declare are ignored.
func (c *Catalog) Validate(nodeType string, props map[string]any) Result {
	d, ok := c.Get(nodeType)
	if !ok {
		return Result{Errors: []string{fmt.Sprintf("unknown node type %q", nodeType)}}
	}
	errs := d.validate(props)
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidateProperties implements workflow.PropertyValidator. Types without a
// definition pass.
func (c *Catalog) ValidateProperties(nodeType workflow.NodeType, props map[string]any) []string {
	d, ok := c.Get(string(nodeType))
	if !ok {
		return nil
	}
	return d.validate(props)
}

func (d *Definition) validate(props map[string]any) []string {
	errs := []string{}
	for _, p := range d.Properties {
		if p.ShowIf != nil && !d.visible(p, props) {
			continue
		}
		v, present := props[p.Name]
		text := strings.TrimSpace(workflow.Stringify(v))
		if !present || v == nil || text == "" {
			if p.Required {
				errs = append(errs, fmt.Sprintf("missing required property %q", p.Name))
			}
			continue
		}
		if msg := checkType(p, v, text); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

func (d *Definition) visible(p Property, props map[string]any) bool {
	cond := p.ShowIf
	got, ok := props[cond.Property]
	if !ok {
		if dep, found := d.Property(cond.Property); found {
			got = dep.Default
		}
	}
	return workflow.Stringify(got) == workflow.Stringify(cond.Equals)
}

func checkType(p Property, v any, text string) string {
	switch p.Type {
	case TypeNumber:
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return fmt.Sprintf("property %q must be a number, got %q", p.Name, text)
		}
	case TypeInteger:
		if f, err := strconv.ParseFloat(text, 64); err != nil || f != float64(int64(f)) {
			return fmt.Sprintf("property %q must be an integer, got %q", p.Name, text)
		}
	case TypeBoolean:
		if _, isBool := v.(bool); !isBool {
			if _, err := strconv.ParseBool(text); err != nil {
				return fmt.Sprintf("property %q must be a boolean, got %q", p.Name, text)
			}
		}
	case TypeSelect:
		for _, o := range p.Options {
			if o == text {
				return ""
			}
		}
		return fmt.Sprintf("property %q must be one of [%s], got %q", p.Name, strings.Join(p.Options, ", "), text)
	}
	return ""
}
