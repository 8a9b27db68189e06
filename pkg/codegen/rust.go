package codegen

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

type rust struct{}

var rustLanguage Language = rust{}

var rustKeywords = keywordSet(`as async await break const continue crate dyn else enum extern false fn for
if impl in let loop match mod move mut pub ref return self Self static struct super trait true type
unsafe use where while abstract become box do final macro override priv try typeof unsized virtual yield
main`)

var (
	minI32 = big.NewInt(-1 << 31)
	maxI32 = big.NewInt(1<<31 - 1)
)

func (rust) Target() Target { return TargetRust }

func (r rust) FormatLiteral(raw, hint string) Literal { return formatLiteral(r, raw, hint) }

func rustControl(r rune) string { return fmt.Sprintf(`\u{%x}`, r) }

func (rust) StringLiteral(s string) string { return `"` + escapeString(s, rustControl) + `"` }

func (rust) BoolLiteral(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// IntLiteral suffixes values that do not fit the default i32 so the
// generated program still type-checks.
func (rust) IntLiteral(digits string) string {
	var n big.Int
	if _, ok := n.SetString(digits, 10); !ok {
		return digits
	}
	if n.Cmp(minI32) < 0 || n.Cmp(maxI32) > 0 {
		return digits + "_i64"
	}
	return digits
}

func (rust) NoneLiteral() string { return "None::<String>" }

func (rust) interpolate(segs []segment) string {
	var format strings.Builder
	var args []string
	for _, s := range segs {
		if s.name != "" {
			format.WriteString("{}")
			args = append(args, s.name)
			continue
		}
		text := escapeString(s.text, rustControl)
		text = strings.ReplaceAll(text, "{", "{{")
		text = strings.ReplaceAll(text, "}", "}}")
		format.WriteString(text)
	}
	return fmt.Sprintf(`format!("%s", %s)`, format.String(), strings.Join(args, ", "))
}

func (rust) Sanitize(name string) string { return sanitize(name, rustKeywords) }

func (rust) Comment(text string) string { return "// " + oneLine(text) }

func (rust) Indent() string { return "    " }

func (rust) BlockScoped() bool { return true }

func (rust) EmptyBody() string { return "" }

func (rust) StandardImports() []string { return []string{"std::collections::HashMap"} }

func (rust) Rule(name string) (*Rule, bool) {
	r, ok := rustRules[name]
	return r, ok
}

func (rust) Helper(name string) (string, bool) {
	h, ok := rustHelpers[name]
	return h, ok
}

const rustAllow = "#![allow(unused_imports, unused_mut, unused_variables, unused_assignments, dead_code)]"

func (r rust) Program(prog Program) string {
	var sb strings.Builder
	for _, h := range prog.Header {
		sb.WriteString(r.Comment(h) + "\n")
	}
	if len(prog.Dependencies) > 0 {
		sb.WriteString("//\n// Cargo dependencies:\n")
		for _, d := range prog.Dependencies {
			sb.WriteString("//   " + d + "\n")
		}
	}
	sb.WriteString("\n" + rustAllow + "\n\n")
	imports := append([]string(nil), prog.Imports...)
	sort.Strings(imports)
	for _, imp := range imports {
		sb.WriteString("use " + imp + ";\n")
	}
	for _, h := range prog.Helpers {
		sb.WriteString("\n" + strings.TrimRight(h, "\n") + "\n")
	}
	sb.WriteString("\nfn main() {\n")
	for _, line := range indentLines(prog.Body, r.Indent()) {
		sb.WriteString(line + "\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (r rust) EmptyProgram(header []string) string {
	var sb strings.Builder
	for _, h := range header {
		sb.WriteString(r.Comment(h) + "\n")
	}
	sb.WriteString("// The workflow has no nodes yet.\n\n")
	sb.WriteString("fn main() {\n    println!(\"Empty workflow: nothing to run\");\n}\n")
	return sb.String()
}

var rustRules = compileRules("rust", map[string]*Rule{
	"variable": {Template: `
{{- if not .Declared}}let mut {{end}}{{.Name}} = {{.Value}}{{if eq .Kind "string"}}.to_string(){{else if eq .Kind "reference"}}.clone(){{end}};`},

	"print": {Template: `
{{- if .Empty}}println!();{{else if .Debug}}println!("{:?}", {{.Message}});{{else}}println!("{}", {{.Message}});{{end}}`},

	"assignment": {Template: `{{if not .Declared}}let mut {{end}}{{.Name}} = {{.Expr}};`},

	"if": {Template: `
if {{.Cond}} {
{{.Then}}
}{{if .Else}} else {
{{.Else}}
}{{end}}`},

	"foreach": {Template: `
{{- $items := printf "%s.clone().into_iter()" .Items}}
{{- if eq .Kind "range"}}{{$items = printf "(0..%s)" .Items}}{{else if eq .Kind "string"}}{{$items = printf "%s.chars()" .Items}}{{end -}}
{{if .IndexVar}}for ({{.IndexVar}}, {{.ItemVar}}) in {{$items}}.enumerate() {
{{else}}for {{.ItemVar}} in {{$items}} {
{{end}}{{.Body}}
}`},

	"while": {Template: `
let mut {{.Counter}}: u64 = 0;
while ({{.Cond}}) && {{.Counter}} < {{.Max}} {
    {{.Counter}} += 1;
{{.Body}}
}
if {{.Counter}} >= {{.Max}} {
    eprintln!("{}", {{.Warning}});
}`},

	"function": {Template: `
{{if .ParamNote}}// {{.ParamNote}}
{{end}}let mut {{.Name}} = || {
{{.Body}}
};
let {{.Result}} = {{.Name}}();`},

	"return": {Template: `return {{.Value}};`},

	"execute": {
		Helpers: []string{"run_command"},
		Template: `
let ({{.Stdout}}, {{.Stderr}}, {{.ExitCode}}) = agentblocks_run_command(
    &{{.Command}}.to_string(),
    {{if .Cwd}}Some({{.Cwd}}.to_string()){{else}}None{{end}},
    {{if .Timeout}}Some({{.Timeout}} as f64){{else}}None{{end}},
);`,
	},

	"http_request": {
		Helpers:  []string{"http_request"},
		Requires: []string{`reqwest = { version = "0.12", features = ["blocking"] }`, `serde_json = "1"`},
		Template: `
let ({{.Status}}, {{.Response}}, {{.Success}}) = agentblocks_http_request(
    &{{.Method}}.to_string(),
    &{{.URL}}.to_string(),
    &{{if .Headers}}{{.Headers}}{{else}}"{}"{{end}}.to_string(),
    {{if .HasBody}}Some({{.Body}}.to_string()){{else}}None{{end}},
    {{if .Timeout}}Some({{.Timeout}} as f64){{else}}None{{end}},
);`,
	},

	"read_file": {Template: `
let ({{.Content}}, {{.Success}}, {{.Error}}) = match std::fs::read_to_string({{.Path}}.to_string()) {
    Ok(text) => (text, true, String::new()),
    Err(e) => (String::new(), false, e.to_string()),
};`},

	"write_file": {Template: `
let ({{.Success}}, {{.Error}}) = match (|| -> std::io::Result<()> {
    let path = std::path::PathBuf::from({{.Path}}.to_string());
{{- if .CreateDirs}}
    if let Some(dir) = path.parent() {
        if !dir.as_os_str().is_empty() {
            std::fs::create_dir_all(dir)?;
        }
    }
{{- end}}
    let mut file = std::fs::OpenOptions::new()
        .create(true)
{{- if .Append}}
        .append(true)
{{- else}}
        .write(true)
        .truncate(true)
{{- end}}
        .open(&path)?;
    std::io::Write::write_all(&mut file, {{.Content}}.to_string().as_bytes())?;
    Ok(())
})() {
    Ok(()) => (true, String::new()),
    Err(e) => (false, e.to_string()),
};`},

	"grep": {
		Helpers:  []string{"grep"},
		Requires: []string{`regex = "1"`},
		Template: `
let ({{.Matches}}, {{.Count}}, {{.Success}}, {{.Error}}) = agentblocks_grep(
    &{{.Pattern}}.to_string(),
    {{if .Text}}Some({{.Text}}.to_string()){{else}}None{{end}},
    {{if .Path}}Some({{.Path}}.to_string()){{else}}None{{end}},
    {{.Recursive}},
    {{if .Include}}Some({{.Include}}.to_string()){{else}}None{{end}},
    {{.IgnoreCase}},
    {{.WholeWord}},
    {{.Invert}},
    {{.LineNumbers}},
    {{.Before}},
    {{.After}},
    {{.MaxCount}},
    {{.CountOnly}},
);`,
	},

	"unsupported": {Template: `// Unsupported node type {{.Type}} (id {{.ID}}): {{.Props}}`},

	"placeholder": {Template: `// Node {{.ID}} ({{.Type}}) could not be generated: {{.Reason}}`},
})

var rustHelpers = map[string]string{
	"run_command": `fn agentblocks_run_command(command: &str, cwd: Option<String>, timeout: Option<f64>) -> (String, String, i32) {
    use std::io::Read;
    use std::process::{Command, Stdio};
    use std::time::{Duration, Instant};

    let mut cmd = if cfg!(windows) {
        let mut c = Command::new("cmd");
        c.args(["/C", command]);
        c
    } else {
        let mut c = Command::new("sh");
        c.args(["-c", command]);
        c
    };
    if let Some(dir) = cwd {
        cmd.current_dir(dir);
    }
    cmd.stdout(Stdio::piped()).stderr(Stdio::piped());
    let mut child = match cmd.spawn() {
        Ok(child) => child,
        Err(e) => return (String::new(), e.to_string(), -1),
    };

    let mut out_pipe = child.stdout.take().expect("stdout is piped");
    let mut err_pipe = child.stderr.take().expect("stderr is piped");
    let out_reader = std::thread::spawn(move || {
        let mut buf = String::new();
        let _ = out_pipe.read_to_string(&mut buf);
        buf
    });
    let err_reader = std::thread::spawn(move || {
        let mut buf = String::new();
        let _ = err_pipe.read_to_string(&mut buf);
        buf
    });

    let started = Instant::now();
    let status = loop {
        match child.try_wait() {
            Ok(Some(status)) => break Some(status),
            Ok(None) => {
                if let Some(limit) = timeout {
                    if started.elapsed().as_secs_f64() >= limit {
                        let _ = child.kill();
                        let _ = child.wait();
                        break None;
                    }
                }
                std::thread::sleep(Duration::from_millis(10));
            }
            Err(_) => break None,
        }
    };

    let stdout = out_reader.join().unwrap_or_default();
    let mut stderr = err_reader.join().unwrap_or_default();
    match status {
        Some(status) => (stdout, stderr, status.code().unwrap_or(-1)),
        None => {
            if let Some(limit) = timeout {
                stderr = format!("Command timed out after {} seconds", limit);
            }
            (stdout, stderr, -1)
        }
    }
}
`,

	"http_request": `fn agentblocks_http_request(method: &str, url: &str, headers: &str, body: Option<String>, timeout: Option<f64>) -> (u16, String, bool) {
    let client = match reqwest::blocking::Client::builder()
        .timeout(timeout.map(std::time::Duration::from_secs_f64))
        .build()
    {
        Ok(client) => client,
        Err(e) => return (0, e.to_string(), false),
    };
    let method = match reqwest::Method::from_bytes(method.to_uppercase().as_bytes()) {
        Ok(method) => method,
        Err(e) => return (0, e.to_string(), false),
    };
    let mut request = client.request(method.clone(), url);
    if let Ok(serde_json::Value::Object(map)) = serde_json::from_str::<serde_json::Value>(headers) {
        for (key, value) in map {
            let value = match value {
                serde_json::Value::String(s) => s,
                other => other.to_string(),
            };
            request = request.header(key.as_str(), value);
        }
    }
    if let Some(body) = body {
        if method != reqwest::Method::GET {
            if serde_json::from_str::<serde_json::Value>(&body).is_ok() {
                request = request.header("Content-Type", "application/json");
            }
            request = request.body(body);
        }
    }
    match request.send() {
        Ok(resp) => {
            let status = resp.status();
            let text = resp.text().unwrap_or_default();
            (status.as_u16(), text, status.is_success())
        }
        Err(e) => (0, e.to_string(), false),
    }
}
`,

	"grep": `#[allow(clippy::too_many_arguments)]
fn agentblocks_grep(
    pattern: &str,
    text: Option<String>,
    path: Option<String>,
    recursive: bool,
    include: Option<String>,
    ignore_case: bool,
    whole_word: bool,
    invert: bool,
    line_numbers: bool,
    before: usize,
    after: usize,
    max_count: usize,
    count_only: bool,
) -> (Vec<String>, usize, bool, String) {
    fn glob_match(pattern: &str, name: &str) -> bool {
        let p: Vec<char> = pattern.chars().collect();
        let n: Vec<char> = name.chars().collect();
        let (mut pi, mut ni) = (0usize, 0usize);
        let (mut star, mut mark): (Option<usize>, usize) = (None, 0);
        while ni < n.len() {
            if pi < p.len() && (p[pi] == '?' || p[pi] == n[ni]) {
                pi += 1;
                ni += 1;
            } else if pi < p.len() && p[pi] == '*' {
                star = Some(pi);
                mark = ni;
                pi += 1;
            } else if let Some(s) = star {
                pi = s + 1;
                mark += 1;
                ni = mark;
            } else {
                return false;
            }
        }
        while pi < p.len() && p[pi] == '*' {
            pi += 1;
        }
        pi == p.len()
    }

    fn collect(dir: &std::path::Path, recursive: bool, out: &mut Vec<std::path::PathBuf>) -> std::io::Result<()> {
        for entry in std::fs::read_dir(dir)? {
            let path = entry?.path();
            if path.is_dir() {
                if recursive {
                    collect(&path, recursive, out)?;
                }
            } else {
                out.push(path);
            }
        }
        Ok(())
    }

    let mut source = pattern.to_string();
    if whole_word {
        source = format!(r"\b(?:{})\b", source);
    }
    let re = match regex::RegexBuilder::new(&source).case_insensitive(ignore_case).build() {
        Ok(re) => re,
        Err(e) => return (Vec::new(), 0, false, format!("invalid pattern: {}", e)),
    };

    let mut inputs: Vec<(Option<String>, String)> = Vec::new();
    let mut errors: Vec<String> = Vec::new();
    match path {
        None => inputs.push((None, text.unwrap_or_default())),
        Some(root) => {
            let root_path = std::path::PathBuf::from(&root);
            if root_path.is_dir() {
                let mut files = Vec::new();
                if let Err(e) = collect(&root_path, recursive, &mut files) {
                    errors.push(format!("{}: {}", root, e));
                }
                files.sort();
                for file in files {
                    let name = file
                        .file_name()
                        .map(|n| n.to_string_lossy().to_string())
                        .unwrap_or_default();
                    if let Some(glob) = &include {
                        if !glob_match(glob, &name) {
                            continue;
                        }
                    }
                    match std::fs::read(&file) {
                        Ok(bytes) => inputs.push((Some(file.display().to_string()), String::from_utf8_lossy(&bytes).to_string())),
                        Err(e) => errors.push(format!("{}: {}", file.display(), e)),
                    }
                }
            } else {
                match std::fs::read(&root_path) {
                    Ok(bytes) => inputs.push((None, String::from_utf8_lossy(&bytes).to_string())),
                    Err(e) => errors.push(format!("{}: {}", root, e)),
                }
            }
        }
    }

    let mut matches = Vec::new();
    let mut count = 0usize;
    'sources: for (label, content) in &inputs {
        let lines: Vec<&str> = content.lines().collect();
        let mut next_unprinted = 0usize;
        for (i, line) in lines.iter().enumerate() {
            if re.is_match(line) == invert {
                continue;
            }
            if max_count > 0 && count >= max_count {
                break 'sources;
            }
            count += 1;
            if count_only {
                continue;
            }
            let start = i.saturating_sub(before).max(next_unprinted);
            let end = (i + after + 1).min(lines.len());
            for (j, entry_line) in lines.iter().enumerate().take(end).skip(start) {
                let mut entry = entry_line.to_string();
                if line_numbers {
                    entry = format!("{}:{}", j + 1, entry);
                }
                if let Some(label) = label {
                    entry = format!("{}:{}", label, entry);
                }
                matches.push(entry);
            }
            next_unprinted = next_unprinted.max(end);
        }
    }
    let success = errors.is_empty();
    (matches, count, success, errors.join("; "))
}
`,
}
