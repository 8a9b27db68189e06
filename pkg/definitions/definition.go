// Package definitions holds the node-definition catalog: display metadata,
// property schemas and per-language code templates keyed by node type.
package definitions

import (
	"sort"
)

// Property describes one configurable property of a node type.
type Property struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type" json:"type"`
	Label       string   `yaml:"label,omitempty" json:"label,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Default     any      `yaml:"default,omitempty" json:"default,omitempty"`
	Required    bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Options     []string `yaml:"options,omitempty" json:"options,omitempty"`
	ShowIf      *ShowIf  `yaml:"showIf,omitempty" json:"showIf,omitempty"`
}

// ShowIf hides a property unless another property holds a given value.
type ShowIf struct {
	Property string `yaml:"property" json:"property"`
	Equals   any    `yaml:"equals" json:"equals"`
}

// Property types understood by Validate. Anything else is treated as free text.
const (
	TypeString  = "string"
	TypeText    = "text"
	TypeCode    = "code"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeSelect  = "select"
	TypeJSON    = "json"
)

// Syntax selects the template engine for a CodeTemplate.
type Syntax string

const (
	// SyntaxGo renders with text/template. It is the default.
	SyntaxGo Syntax = "go"
	// SyntaxJinja renders with gonja.
	SyntaxJinja Syntax = "jinja"
	// SyntaxFString renders Python str.format style templates with pyfmt.
	SyntaxFString Syntax = "fstring"
)

// CodeTemplate is the emission rule for one node type in one language.
type CodeTemplate struct {
	Syntax    Syntax            `yaml:"syntax,omitempty" json:"syntax,omitempty"`
	Imports   []string          `yaml:"imports,omitempty" json:"imports,omitempty"`
	Crates    []string          `yaml:"crates,omitempty" json:"crates,omitempty"`
	Template  string            `yaml:"template" json:"template"`
	Functions map[string]string `yaml:"functions,omitempty" json:"functions,omitempty"`
}

// Definition is a catalog entry for one node type.
type Definition struct {
	Type           string                   `yaml:"type" json:"type"`
	Name           string                   `yaml:"name" json:"name"`
	Icon           string                   `yaml:"icon,omitempty" json:"icon,omitempty"`
	Category       string                   `yaml:"category,omitempty" json:"category,omitempty"`
	Description    string                   `yaml:"description,omitempty" json:"description,omitempty"`
	Aliases        []string                 `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Outputs        []string                 `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Properties     []Property               `yaml:"properties,omitempty" json:"properties,omitempty"`
	CodeGeneration map[string]*CodeTemplate `yaml:"codeGeneration,omitempty" json:"codeGeneration,omitempty"`
}

// Property looks up a property schema by name.
func (d *Definition) Property(name string) (*Property, bool) {
	for i := range d.Properties {
		if d.Properties[i].Name == name {
			return &d.Properties[i], true
		}
	}
	return nil, false
}

// Defaults returns the default value of every property that declares one.
func (d *Definition) Defaults() map[string]any {
	out := make(map[string]any)
	for _, p := range d.Properties {
		if p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

// Template returns the code template for a language ("python", "rust").
func (d *Definition) Template(language string) (*CodeTemplate, bool) {
	t, ok := d.CodeGeneration[language]
	if !ok || t == nil || t.Template == "" {
		return nil, false
	}
	return t, true
}

// Languages lists the languages the definition has templates for.
func (d *Definition) Languages() []string {
	var out []string
	for lang, t := range d.CodeGeneration {
		if t != nil && t.Template != "" {
			out = append(out, lang)
		}
	}
	sort.Strings(out)
	return out
}

// FunctionNames returns the helper names a template declares, sorted.
func (t *CodeTemplate) FunctionNames() []string {
	names := make([]string, 0, len(t.Functions))
	for n := range t.Functions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
