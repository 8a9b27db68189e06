package definitions

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/config"
	"github.com/nikolalohinski/gonja/nodes"
	"github.com/nikolalohinski/gonja/parser"
	"github.com/slongfield/pyfmt"
)

// Render expands the template with vars using the engine its Syntax names.
func (t *CodeTemplate) Render(vars map[string]any) (string, error) {
	switch t.Syntax {
	case SyntaxGo, "":
		tmpl, err := template.New("definition").Option("missingkey=error").Parse(t.Template)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		if err := tmpl.Execute(&sb, vars); err != nil {
			return "", err
		}
		return sb.String(), nil
	case SyntaxFString:
		return pyfmt.Fmt(t.Template, vars)
	case SyntaxJinja:
		env, err := jinjaEnv()
		if err != nil {
			return "", err
		}
		tpl, err := env.FromString(t.Template)
		if err != nil {
			return "", err
		}
		return tpl.Execute(vars)
	}
	return "", fmt.Errorf("unknown template syntax %q", t.Syntax)
}

var (
	jinjaOnce    sync.Once
	jinjaShared  *gonja.Environment
	jinjaInitErr error
)

// jinjaEnv returns the shared gonja environment. Statements that would let a
// catalog template read other files are disabled.
func jinjaEnv() (*gonja.Environment, error) {
	jinjaOnce.Do(func() {
		env := gonja.NewEnvironment(config.DefaultConfig, gonja.DefaultLoader)
		for _, kw := range []string{"include", "extends", "import", "from"} {
			if !env.Statements.Exists(kw) {
				continue
			}
			err := env.Statements.Replace(kw, func(_ *parser.Parser, _ *parser.Parser) (nodes.Statement, error) {
				return nil, fmt.Errorf("keyword[%s] has been disabled", kw)
			})
			if err != nil {
				jinjaInitErr = fmt.Errorf("init jinja env: %w", err)
				return
			}
		}
		jinjaShared = env
	})
	return jinjaShared, jinjaInitErr
}
