package codegen

import (
	"fmt"
	"strings"
	"text/template"
)

// Language is the per-target strategy the compiler is parameterized by. It
// owns literal spelling, identifier rules, the declarative emission rules and
// the layout of the final program.
type Language interface {
	Target() Target

	// FormatLiteral turns a raw property value into a literal expression.
	// hint is a declared type ("string", "number", "boolean" or "").
	FormatLiteral(raw, hint string) Literal
	StringLiteral(s string) string
	BoolLiteral(b bool) string
	IntLiteral(digits string) string
	NoneLiteral() string
	interpolate(segs []segment) string

	// Sanitize turns arbitrary text into a valid, non-keyword identifier.
	Sanitize(name string) string
	Comment(text string) string
	Indent() string
	// BlockScoped reports whether every block opens a new variable scope.
	// When false, only function bodies do.
	BlockScoped() bool
	// EmptyBody is the statement that fills a block with nothing else in it,
	// or "" when an empty block is legal.
	EmptyBody() string

	// Rule returns the emission rule for a node kind.
	Rule(name string) (*Rule, bool)
	Helper(name string) (string, bool)
	StandardImports() []string

	// Program assembles the final source text.
	Program(p Program) string
	// EmptyProgram is returned for a workflow without nodes.
	EmptyProgram(header []string) string
}

// Program is the material the compiler hands to Language.Program.
type Program struct {
	Header       []string
	Imports      []string
	Dependencies []string
	Helpers      []string
	Body         []string
}

// Rule is a declarative emission rule: a text/template rendered with the data
// record an emitter builds, plus the imports, helper functions and external
// packages any program using it needs.
type Rule struct {
	Template string
	Imports  []string
	Helpers  []string
	Requires []string

	tmpl *template.Template
}

// compileRules parses every rule template once. It panics on a malformed
// template, which can only come from a programming error in this package.
func compileRules(lang string, rules map[string]*Rule) map[string]*Rule {
	for name, r := range rules {
		t, err := template.New(lang + "/" + name).Option("missingkey=error").Parse(r.Template)
		if err != nil {
			panic(fmt.Sprintf("codegen: %s rule %q: %v", lang, name, err))
		}
		r.tmpl = t
	}
	return rules
}

// render executes the rule and returns its non-blank lines.
func (r *Rule) render(data map[string]any) ([]string, error) {
	var sb strings.Builder
	if err := r.tmpl.Execute(&sb, data); err != nil {
		return nil, err
	}
	return nonBlankLines(sb.String()), nil
}

func nonBlankLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// languageFor returns the strategy for a target.
func languageFor(t Target) (Language, error) {
	switch t {
	case TargetPython, "":
		return pythonLanguage, nil
	case TargetRust:
		return rustLanguage, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, t)
}

// LanguageFor exposes the strategy for a target, for callers that need
// literal formatting without compiling a whole workflow.
func LanguageFor(t Target) (Language, error) { return languageFor(t) }

func keywordSet(words string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		out[w] = true
	}
	return out
}

func indentLines(lines []string, indent string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if l == "" {
			out[i] = l
			continue
		}
		out[i] = indent + l
	}
	return out
}
