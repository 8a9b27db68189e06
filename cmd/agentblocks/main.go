package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agentblocks/pkg/batch"
	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
	"github.com/ravi-parthasarathy/agentblocks/pkg/definitions"
	"github.com/ravi-parthasarathy/agentblocks/pkg/export"
	"github.com/ravi-parthasarathy/agentblocks/pkg/runner"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	logLevel    string
	logFormat   string
	orphans     string
	definitions string
}

func (g *globals) catalog() (*definitions.Catalog, error) {
	if g.definitions == "" {
		return definitions.Builtin(), nil
	}
	extra, err := definitions.LoadFile(g.definitions)
	if err != nil {
		return nil, err
	}
	return definitions.Builtin().Merge(extra), nil
}

func (g *globals) orphanPolicy() (workflow.OrphanPolicy, error) {
	return workflow.ParseOrphanPolicy(g.orphans)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func rootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "agentblocks",
		Short: "AgentBlocks: compile visual workflows to Python or Rust",
		Long: `AgentBlocks turns a visual workflow (nodes on a canvas plus data-flow
connections) into a standalone program.

Workflows are read from JSON, YAML, HCL or Graphviz DOT files. Python is the
primary target; Rust output is experimental.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initLogger(g.logLevel, g.logFormat)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", envOr("AGENTBLOCKS_LOG_LEVEL", "warn"), "log level: debug, info, warn or error")
	pf.StringVar(&g.logFormat, "log-format", envOr("AGENTBLOCKS_LOG_FORMAT", "text"), "log format: text or json")
	pf.StringVar(&g.orphans, "orphans", envOr("AGENTBLOCKS_ORPHANS", string(workflow.OrphanTopLevel)), "orphan policy: top-level or error")
	pf.StringVar(&g.definitions, "definitions", os.Getenv("AGENTBLOCKS_DEFINITIONS"), "extra node definition catalog (YAML or JSON)")

	root.AddCommand(generateCmd(g))
	root.AddCommand(validateCmd(g))
	root.AddCommand(graphCmd())
	root.AddCommand(exportCmd(g))
	root.AddCommand(runCmd(g))
	root.AddCommand(serveCmd(g))
	root.AddCommand(definitionsCmd(g))
	return root
}

// ─── generate ────────────────────────────────────────────────────────────────

func parseTargets(list string) ([]codegen.Target, error) {
	var out []codegen.Target
	for _, s := range strings.Split(list, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		t, err := codegen.ParseTarget(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		out = []codegen.Target{codegen.TargetPython}
	}
	return out, nil
}

func generateCmd(g *globals) *cobra.Command {
	var (
		targets string
		output  string
		outDir  string
		workers int
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "generate <workflow|glob>...",
		Short: "Compile workflows to source code",
		Long: `Compile one workflow to stdout (or --output), or many workflows at once.

Arguments may be glob patterns, including "**". With several inputs, several
targets or --out-dir, each result is written to a file named after its input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseTargets(targets)
			if err != nil {
				return err
			}
			policy, err := g.orphanPolicy()
			if err != nil {
				return err
			}
			defs, err := g.catalog()
			if err != nil {
				return err
			}
			inputs, err := batch.Expand(args)
			if err != nil {
				return err
			}

			if len(inputs) == 1 && len(ts) == 1 && outDir == "" {
				out, err := compileFile(inputs[0], ts[0], policy, defs)
				if err != nil {
					return err
				}
				reportDiagnostics(cmd.ErrOrStderr(), inputs[0], out.Diagnostics)
				if err := writeOutput(cmd.OutOrStdout(), output, out.Source); err != nil {
					return err
				}
				if strict && out.Incomplete {
					return fmt.Errorf("%s: generated program is incomplete", inputs[0])
				}
				return nil
			}
			if output != "" {
				return errors.New("--output needs exactly one input and one target; use --out-dir")
			}

			ctx := signalContext(cmd.Context())
			results, err := batch.Run(ctx, inputs, batch.Options{
				Targets:     ts,
				OutDir:      outDir,
				Workers:     workers,
				Orphans:     policy,
				Definitions: defs,
				Logger:      slog.Default(),
			})
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				reportDiagnostics(cmd.ErrOrStderr(), r.Input, r.Diagnostics)
				switch {
				case r.Err != nil:
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %s (%s): %v\n", r.Input, r.Target, r.Err)
				case r.Incomplete:
					if strict {
						failed++
					}
					fmt.Fprintf(cmd.OutOrStdout(), "WARN  %s -> %s (incomplete)\n", r.Input, r.Output)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "OK    %s -> %s\n", r.Input, r.Output)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d compilations failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&targets, "target", "t", envOr("AGENTBLOCKS_TARGET", "python"), "comma-separated targets: python, rust")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the program to this file instead of stdout")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory for generated files")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent compilations (default GOMAXPROCS)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any node could not be generated")
	return cmd
}

func compileFile(path string, target codegen.Target, policy workflow.OrphanPolicy, defs *definitions.Catalog) (*codegen.Output, error) {
	doc, err := workflow.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return codegen.CompileDocument(doc,
		codegen.WithTarget(target),
		codegen.WithOrphanPolicy(policy),
		codegen.WithDefinitions(defs),
	)
}

func reportDiagnostics(w io.Writer, input string, diags []workflow.LintError) {
	for _, d := range diags {
		fmt.Fprintf(w, "%s: %v\n", input, d)
	}
}

// writeOutput writes src to path, or to stdout when path is empty or "-".
func writeOutput(stdout io.Writer, path, src string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(stdout, src)
		return err
	}
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// ─── validate ────────────────────────────────────────────────────────────────

func validateCmd(g *globals) *cobra.Command {
	var fix string

	cmd := &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Check a workflow for structural problems without generating code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := g.orphanPolicy()
			if err != nil {
				return err
			}
			defs, err := g.catalog()
			if err != nil {
				return err
			}
			doc, err := workflow.LoadFile(args[0])
			if err != nil {
				return err
			}
			graph := doc.Graph()
			if fix != "" {
				repaired, fixes, err := repairTo(fix, doc, policy)
				if err != nil {
					return err
				}
				for _, f := range fixes {
					fmt.Fprintln(cmd.ErrOrStderr(), "fixed: "+f.Error())
				}
				graph = repaired
			}
			errs := workflow.Validate(graph, workflow.WithOrphans(policy), workflow.WithProperties(defs))
			for _, e := range errs {
				fmt.Fprintln(cmd.ErrOrStderr(), e.Error())
			}
			if workflow.HasErrors(errs) {
				return fmt.Errorf("%w: %s", workflow.ErrInvalid, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: workflow %q is valid (%d nodes, %d connections)\n",
				documentName(doc, args[0]), len(graph.IDs()), len(graph.Connections))
			return nil
		},
	}

	cmd.Flags().StringVar(&fix, "fix", "", "write a repaired copy (orphans and dangling connections resolved) to this file")
	return cmd
}

// repairTo applies the orphan policy to doc and writes the result to path,
// encoded according to its extension.
func repairTo(path string, doc *workflow.Document, policy workflow.OrphanPolicy) (*workflow.Graph, []workflow.LintError, error) {
	format, err := workflow.FormatFromPath(path)
	if err != nil {
		return nil, nil, err
	}
	repaired, fixes := workflow.Repair(doc.Graph(), policy)
	out := &workflow.Document{
		Nodes:       repaired.Nodes,
		Connections: repaired.Connections,
		Panels:      doc.Panels,
		Metadata:    doc.Metadata,
	}
	data, err := workflow.Encode(out, format)
	if err != nil {
		return nil, nil, fmt.Errorf("encode repaired workflow: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, nil, fmt.Errorf("write repaired workflow: %w", err)
	}
	return repaired, fixes, nil
}

func documentName(doc *workflow.Document, path string) string {
	if doc.Metadata != nil && doc.Metadata.Name != "" {
		return doc.Metadata.Name
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// ─── export ──────────────────────────────────────────────────────────────────

func exportCmd(g *globals) *cobra.Command {
	var (
		target string
		outDir string
		bundle bool
		name   string
	)

	cmd := &cobra.Command{
		Use:   "export <workflow>",
		Short: "Validate a workflow and write it as a runnable program or zip bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := codegen.ParseTarget(target)
			if err != nil {
				return err
			}
			policy, err := g.orphanPolicy()
			if err != nil {
				return err
			}
			defs, err := g.catalog()
			if err != nil {
				return err
			}
			doc, err := workflow.LoadFile(args[0])
			if err != nil {
				return err
			}
			meta := &workflow.Metadata{}
			if doc.Metadata != nil {
				*meta = *doc.Metadata
			}
			if name != "" {
				meta.Name = name
			}

			build := export.Export
			if bundle {
				build = export.Bundle
			}
			art, err := build(doc.Graph(), meta,
				export.WithTarget(t),
				export.WithOrphanPolicy(policy),
				export.WithDefinitions(defs),
				export.WithLogger(slog.Default()),
			)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			path := filepath.Join(outDir, art.Filename)
			if err := os.WriteFile(path, art.Content, 0o644); err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}
			reportDiagnostics(cmd.ErrOrStderr(), args[0], art.Output.Diagnostics)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", envOr("AGENTBLOCKS_TARGET", "python"), "target language: python or rust")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", ".", "directory to write the artifact to")
	cmd.Flags().BoolVar(&bundle, "bundle", false, "write a zip with the program, the workflow and a manifest")
	cmd.Flags().StringVar(&name, "name", "", "workflow name (overrides the document metadata)")
	return cmd
}

// ─── run ─────────────────────────────────────────────────────────────────────

func runCmd(g *globals) *cobra.Command {
	var (
		timeout time.Duration
		python  string
		workdir string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Compile a workflow to Python and execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := g.orphanPolicy()
			if err != nil {
				return err
			}
			defs, err := g.catalog()
			if err != nil {
				return err
			}
			out, err := compileFile(args[0], codegen.TargetPython, policy, defs)
			if err != nil {
				return err
			}
			reportDiagnostics(cmd.ErrOrStderr(), args[0], out.Diagnostics)

			r := &runner.Runner{Interpreter: python, Workdir: workdir, Timeout: timeout, Logger: slog.Default()}
			res, err := r.Run(signalContext(cmd.Context()), out)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
			if !res.Success {
				return fmt.Errorf("program exited with code %d", res.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", runner.DefaultTimeout, "maximum run time (negative for none)")
	cmd.Flags().StringVar(&python, "python", envOr("AGENTBLOCKS_PYTHON", "python3"), "python interpreter")
	cmd.Flags().StringVar(&workdir, "workdir", "", "working directory for the program")
	return cmd
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			slog.Warn("interrupted, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
