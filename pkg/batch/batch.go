// Package batch compiles many workflow files concurrently.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/panjf2000/ants/v2"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
	"github.com/ravi-parthasarathy/agentblocks/pkg/definitions"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// ErrNoMatch is returned when a pattern matches no files.
var ErrNoMatch = errors.New("pattern matched no files")

// ErrOutputCollision is recorded for an input whose generated file would
// overwrite one produced from an earlier input in the same run.
var ErrOutputCollision = errors.New("output collides with another input")

// Expand resolves glob patterns (including "**") into a sorted,
// de-duplicated list of workflow files. Patterns without glob syntax are
// taken literally and must exist.
func Expand(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoMatch, p)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if _, err := workflow.FormatFromPath(m); err != nil {
				continue
			}
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// Options configures Run.
type Options struct {
	// Targets lists the languages each input is compiled to; Python when empty.
	Targets []codegen.Target
	// OutDir receives the generated files. When empty each file is written
	// next to its input.
	OutDir string
	// Workers bounds concurrency; GOMAXPROCS when zero.
	Workers     int
	Orphans     workflow.OrphanPolicy
	Definitions *definitions.Catalog
	Logger      *slog.Logger
}

// Result reports the outcome of one input/target pair.
type Result struct {
	Input       string               `json:"input"`
	Target      codegen.Target       `json:"target"`
	Output      string               `json:"output,omitempty"`
	Incomplete  bool                 `json:"incomplete,omitempty"`
	Diagnostics []workflow.LintError `json:"diagnostics,omitempty"`
	Err         error                `json:"-"`
}

// Failed reports whether the pair produced no usable program.
func (r Result) Failed() bool { return r.Err != nil || r.Incomplete }

type job struct {
	idx    int
	input  string
	target codegen.Target
	output string
}

// outputPath is where the program for input is written: OutDir when set,
// otherwise the input's own directory, named after the input's stem.
func outputPath(input string, t codegen.Target, outDir string) string {
	dir := outDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, stem+t.Extension())
}

// Run compiles every input for every target. Results come back in input
// order, targets varying fastest, regardless of completion order. Per-file
// failures are recorded in their Result; the returned error covers setup
// problems and cancellation only. When two inputs map to the same output
// file, the first one is written and the later one fails with
// ErrOutputCollision.
func Run(ctx context.Context, inputs []string, opts Options) ([]Result, error) {
	targets := opts.Targets
	if len(targets) == 0 {
		targets = []codegen.Target{codegen.TargetPython}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Definitions == nil {
		opts.Definitions = definitions.Builtin()
	}
	if opts.Orphans == "" {
		opts.Orphans = workflow.OrphanTopLevel
	}
	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var jobs, pending []job
	for _, in := range inputs {
		for _, t := range targets {
			jobs = append(jobs, job{idx: len(jobs), input: in, target: t, output: outputPath(in, t, opts.OutDir)})
		}
	}
	results := make([]Result, len(jobs))
	claimed := make(map[string]string, len(jobs))
	for _, j := range jobs {
		if first, dup := claimed[j.output]; dup {
			results[j.idx] = Result{Input: j.input, Target: j.target,
				Err: fmt.Errorf("%w: %s is also generated from %s", ErrOutputCollision, j.output, first)}
			continue
		}
		claimed[j.output] = j.input
		pending = append(pending, j)
	}
	if len(pending) == 0 {
		return results, nil
	}

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(workers, func(arg any) {
		defer wg.Done()
		j := arg.(job)
		results[j.idx] = compileOne(ctx, j, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	for _, j := range pending {
		wg.Add(1)
		if err := pool.Invoke(j); err != nil {
			wg.Done()
			results[j.idx] = Result{Input: j.input, Target: j.target, Err: fmt.Errorf("schedule: %w", err)}
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func compileOne(ctx context.Context, j job, opts Options) Result {
	res := Result{Input: j.input, Target: j.target}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	doc, err := workflow.LoadFile(j.input)
	if err != nil {
		res.Err = err
		return res
	}
	out, err := codegen.CompileDocument(doc,
		codegen.WithTarget(j.target),
		codegen.WithOrphanPolicy(opts.Orphans),
		codegen.WithDefinitions(opts.Definitions),
		codegen.WithLogger(opts.Logger.With("input", j.input, "target", j.target)),
	)
	if err != nil {
		res.Err = err
		return res
	}
	res.Diagnostics = out.Diagnostics
	res.Incomplete = out.Incomplete

	res.Output = j.output
	if err := os.WriteFile(res.Output, []byte(out.Source), 0o644); err != nil {
		res.Err = fmt.Errorf("write %s: %w", res.Output, err)
		return res
	}
	opts.Logger.Debug("compiled workflow", "input", j.input, "output", res.Output, "incomplete", out.Incomplete)
	return res
}
