package codegen

import (
	"fmt"
	"sort"
	"strings"
)

type python struct{}

var pythonLanguage Language = python{}

var pythonKeywords = keywordSet(`False None True and as assert async await break class continue def del
elif else except finally for from global if import in is lambda nonlocal not or pass raise return try
while with yield print open len range str int float list dict`)

func (python) Target() Target { return TargetPython }

func (p python) FormatLiteral(raw, hint string) Literal { return formatLiteral(p, raw, hint) }

func (python) StringLiteral(s string) string {
	return `"` + escapeString(s, func(r rune) string { return fmt.Sprintf(`\x%02x`, r) }) + `"`
}

func (python) BoolLiteral(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func (python) IntLiteral(digits string) string { return digits }

func (python) NoneLiteral() string { return "None" }

func (python) interpolate(segs []segment) string {
	var sb strings.Builder
	sb.WriteString(`f"`)
	for _, s := range segs {
		if s.name != "" {
			sb.WriteString("{" + s.name + "}")
			continue
		}
		text := escapeString(s.text, func(r rune) string { return fmt.Sprintf(`\x%02x`, r) })
		text = strings.ReplaceAll(text, "{", "{{")
		text = strings.ReplaceAll(text, "}", "}}")
		sb.WriteString(text)
	}
	sb.WriteString(`"`)
	return sb.String()
}

func (python) Sanitize(name string) string { return sanitize(name, pythonKeywords) }

func (python) Comment(text string) string { return "# " + oneLine(text) }

func (python) Indent() string { return "    " }

func (python) BlockScoped() bool { return false }

func (python) EmptyBody() string { return "pass" }

func (python) StandardImports() []string { return []string{"os", "sys"} }

func (python) Rule(name string) (*Rule, bool) {
	r, ok := pythonRules[name]
	return r, ok
}

func (python) Helper(name string) (string, bool) {
	h, ok := pythonHelpers[name]
	return h, ok
}

func (p python) Program(prog Program) string {
	var sb strings.Builder
	sb.WriteString("#!/usr/bin/env python3\n")
	for _, h := range prog.Header {
		sb.WriteString(p.Comment(h) + "\n")
	}
	if len(prog.Dependencies) > 0 {
		sb.WriteString("#\n# Requires: " + strings.Join(prog.Dependencies, ", ") + "\n")
	}
	sb.WriteString("\n")
	for _, line := range pythonImportLines(prog.Imports) {
		sb.WriteString(line + "\n")
	}
	for _, h := range prog.Helpers {
		sb.WriteString("\n\n" + strings.TrimRight(h, "\n") + "\n")
	}
	if len(prog.Helpers) > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	for _, line := range prog.Body {
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (p python) EmptyProgram(header []string) string {
	var sb strings.Builder
	sb.WriteString("#!/usr/bin/env python3\n")
	for _, h := range header {
		sb.WriteString(p.Comment(h) + "\n")
	}
	sb.WriteString("# The workflow has no nodes yet.\n\n")
	sb.WriteString(`print("Empty workflow: nothing to run")` + "\n")
	return sb.String()
}

// pythonImportLines renders plain module names as "import x" and passes
// full statements ("from x import y") through.
func pythonImportLines(imports []string) []string {
	var plain, from []string
	for _, imp := range imports {
		switch {
		case strings.HasPrefix(imp, "from "), strings.HasPrefix(imp, "import "):
			from = append(from, imp)
		default:
			plain = append(plain, "import "+imp)
		}
	}
	sort.Strings(plain)
	sort.Strings(from)
	return append(plain, from...)
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

var pythonRules = compileRules("python", map[string]*Rule{
	"variable": {Template: `{{.Name}} = {{.Value}}`},

	"print": {Template: `{{if .Empty}}print(){{else}}print({{.Message}}){{end}}`},

	"assignment": {Template: `{{.Name}} = {{.Expr}}`},

	"if": {Template: `
if {{.Cond}}:
{{.Then}}
{{if .Else}}else:
{{.Else}}{{end}}`},

	"foreach": {Template: `
{{- $items := .Items}}{{if eq .Kind "range"}}{{$items = printf "range(%s)" .Items}}{{end -}}
{{if .IndexVar}}for {{.IndexVar}}, {{.ItemVar}} in enumerate({{$items}}):
{{else}}for {{.ItemVar}} in {{$items}}:
{{end}}{{.Body}}`},

	"while": {Template: `
{{.Counter}} = 0
while ({{.Cond}}) and {{.Counter}} < {{.Max}}:
    {{.Counter}} += 1
{{.Body}}
if {{.Counter}} >= {{.Max}}:
    print({{.Warning}}, file=sys.stderr)`},

	"function": {Template: `
def {{.Name}}({{.Params}}):
{{.Body}}
{{.Result}} = {{.Name}}({{.Args}})`},

	"execute": {
		Imports: []string{"subprocess"},
		Template: `
try:
    {{.Var}}_proc = subprocess.run(
        {{.Command}},
        shell=True,
        capture_output=True,
        text=True,
{{- if .Cwd}}
        cwd={{.Cwd}},
{{- end}}
{{- if .Timeout}}
        timeout={{.Timeout}},
{{- end}}
    )
    {{.Stdout}} = {{.Var}}_proc.stdout
    {{.Stderr}} = {{.Var}}_proc.stderr
    {{.ExitCode}} = {{.Var}}_proc.returncode
except subprocess.TimeoutExpired as e:
    {{.Stdout}} = e.stdout or ""
    {{.Stderr}} = f"Command timed out after {e.timeout} seconds"
    {{.ExitCode}} = -1
except Exception as e:
    {{.Stdout}} = ""
    {{.Stderr}} = str(e)
    {{.ExitCode}} = -1`,
	},

	"http_request": {
		Imports:  []string{"json", "requests"},
		Requires: []string{"requests"},
		Template: `
{{- define "call"}}requests.request({{.Method}}, {{.URL}}{{if .Headers}}, headers={{.Headers}}{{end}}{{if .Timeout}}, timeout={{.Timeout}}{{end}}{{end -}}
try:
{{- if .HasBody}}
    {{.Var}}_body = {{.Body}}
    try:
        {{.Var}}_payload = json.loads({{.Var}}_body) if isinstance({{.Var}}_body, str) else {{.Var}}_body
        {{.Var}}_resp = {{template "call" .}}, json={{.Var}}_payload)
    except ValueError:
        {{.Var}}_resp = {{template "call" .}}, data={{.Var}}_body)
{{- else}}
    {{.Var}}_resp = {{template "call" .}})
{{- end}}
    {{.Status}} = {{.Var}}_resp.status_code
    {{.Response}} = {{.Var}}_resp.text
    {{.Success}} = {{.Var}}_resp.ok
except Exception as e:
    {{.Status}} = 0
    {{.Response}} = str(e)
    {{.Success}} = False`,
	},

	"read_file": {Template: `
try:
    with open({{.Path}}, "r", encoding={{.Encoding}}) as {{.Var}}_file:
        {{.Content}} = {{.Var}}_file.read()
    {{.Success}} = True
    {{.Error}} = None
except Exception as e:
    {{.Content}} = None
    {{.Success}} = False
    {{.Error}} = str(e)`},

	"write_file": {Template: `
try:
{{- if .CreateDirs}}
    os.makedirs(os.path.dirname(os.path.abspath({{.Path}})), exist_ok=True)
{{- end}}
    with open({{.Path}}, {{if .Append}}"a"{{else}}"w"{{end}}, encoding={{.Encoding}}) as {{.Var}}_file:
        {{.Var}}_file.write(str({{.Content}}))
    {{.Success}} = True
    {{.Error}} = None
except Exception as e:
    {{.Success}} = False
    {{.Error}} = str(e)`},

	"grep": {
		Helpers: []string{"grep"},
		Template: `
{{.Matches}}, {{.Count}}, {{.Success}}, {{.Error}} = _agentblocks_grep(
    {{.Pattern}},
    text={{if .Text}}{{.Text}}{{else}}None{{end}},
    path={{if .Path}}{{.Path}}{{else}}None{{end}},
    recursive={{.Recursive}},
    include={{if .Include}}{{.Include}}{{else}}None{{end}},
    ignore_case={{.IgnoreCase}},
    whole_word={{.WholeWord}},
    invert={{.Invert}},
    line_numbers={{.LineNumbers}},
    before={{.Before}},
    after={{.After}},
    max_count={{.MaxCount}},
    count_only={{.CountOnly}},
)`,
	},

	"return": {Template: `return {{.Value}}`},

	"unsupported": {Template: `# Unsupported node type {{.Type}} (id {{.ID}}): {{.Props}}`},

	"placeholder": {Template: `# Node {{.ID}} ({{.Type}}) could not be generated: {{.Reason}}`},
})

var pythonHelpers = map[string]string{
	"grep": `def _agentblocks_grep(pattern, text=None, path=None, recursive=False, include=None,
                     ignore_case=False, whole_word=False, invert=False, line_numbers=False,
                     before=0, after=0, max_count=0, count_only=False):
    import fnmatch
    import re

    if whole_word:
        pattern = r"\b(?:" + pattern + r")\b"
    try:
        regex = re.compile(pattern, re.IGNORECASE if ignore_case else 0)
    except re.error as e:
        return [], 0, False, f"invalid pattern: {e}"

    inputs = []
    errors = []
    if path is None:
        inputs.append((None, text or ""))
    elif os.path.isdir(path):
        files = []
        if recursive:
            for root, _dirs, names in os.walk(path):
                files.extend(os.path.join(root, n) for n in names)
        else:
            files = [os.path.join(path, n) for n in os.listdir(path)
                     if os.path.isfile(os.path.join(path, n))]
        for name in sorted(files):
            if include and not fnmatch.fnmatch(os.path.basename(name), include):
                continue
            try:
                with open(name, "r", encoding="utf-8", errors="replace") as f:
                    inputs.append((name, f.read()))
            except OSError as e:
                errors.append(f"{name}: {e}")
    else:
        try:
            with open(path, "r", encoding="utf-8", errors="replace") as f:
                inputs.append((None, f.read()))
        except OSError as e:
            errors.append(f"{path}: {e}")

    matches = []
    count = 0
    for label, content in inputs:
        lines = content.splitlines()
        next_unprinted = 0
        for i, line in enumerate(lines):
            if bool(regex.search(line)) == invert:
                continue
            if max_count and count >= max_count:
                break
            count += 1
            if count_only:
                continue
            start = max(i - before, next_unprinted, 0)
            end = min(i + after + 1, len(lines))
            for j in range(start, end):
                entry = lines[j]
                if line_numbers:
                    entry = f"{j + 1}:{entry}"
                if label is not None:
                    entry = f"{label}:{entry}"
                matches.append(entry)
            next_unprinted = max(next_unprinted, end)
    return matches, count, not errors, "; ".join(errors) if errors else None
`,
}
