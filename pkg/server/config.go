package server

import (
	"errors"
	"log/slog"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
	"github.com/ravi-parthasarathy/agentblocks/pkg/definitions"
	"github.com/ravi-parthasarathy/agentblocks/pkg/runner"
	"github.com/ravi-parthasarathy/agentblocks/pkg/store"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// DefaultAddr matches the port the editor frontend talks to.
const DefaultAddr = ":5000"

// Config holds everything a Server needs.
type Config struct {
	Addr    string
	Target  codegen.Target // used when a request names no target
	Orphans workflow.OrphanPolicy

	Definitions *definitions.Catalog
	Store       *store.Store

	// AllowExecute enables POST /api/execute/{id}, which runs generated
	// programs on the server host.
	AllowExecute bool
	Runner       *runner.Runner

	AllowedOrigins []string
	Logger         *slog.Logger
	// SnapshotPath, when set, is where the store is saved on shutdown.
	SnapshotPath string
}

// NewConfig fills in defaults and checks cfg.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	target, err := codegen.ParseTarget(string(cfg.Target))
	if err != nil {
		return nil, err
	}
	cfg.Target = target
	orphans, err := workflow.ParseOrphanPolicy(string(cfg.Orphans))
	if err != nil {
		return nil, err
	}
	cfg.Orphans = orphans
	if cfg.Definitions == nil {
		cfg.Definitions = definitions.Builtin()
	}
	if cfg.Store == nil {
		cfg.Store = store.New()
	}
	if cfg.AllowExecute && cfg.Runner == nil {
		cfg.Runner = &runner.Runner{}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "" {
			return nil, errors.New("empty entry in AllowedOrigins")
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Runner != nil && cfg.Runner.Logger == nil {
		cfg.Runner.Logger = cfg.Logger
	}
	return &cfg, nil
}
