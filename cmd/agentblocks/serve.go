package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
	"github.com/ravi-parthasarathy/agentblocks/pkg/server"
	"github.com/ravi-parthasarathy/agentblocks/pkg/store"
)

func serveCmd(g *globals) *cobra.Command {
	var (
		addr     string
		target   string
		snapshot string
		execute  bool
		origins  []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor HTTP API",
		Long: `Serve workflows, node definitions and code generation over HTTP.

With --snapshot, workflows are loaded from the file at startup (when it
exists) and saved back on shutdown. --allow-execute enables running generated
programs on this host.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policy, err := g.orphanPolicy()
			if err != nil {
				return err
			}
			defs, err := g.catalog()
			if err != nil {
				return err
			}
			st, err := openStore(snapshot)
			if err != nil {
				return err
			}
			cfg, err := server.NewConfig(server.Config{
				Addr:           addr,
				Target:         codegen.Target(target),
				Orphans:        policy,
				Definitions:    defs,
				Store:          st,
				AllowExecute:   execute,
				AllowedOrigins: origins,
				Logger:         slog.Default(),
				SnapshotPath:   snapshot,
			})
			if err != nil {
				return fmt.Errorf("server config: %w", err)
			}
			return server.New(cfg).ListenAndServe(signalContext(cmd.Context()))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envOr("AGENTBLOCKS_ADDR", server.DefaultAddr), "listen address")
	cmd.Flags().StringVarP(&target, "target", "t", envOr("AGENTBLOCKS_TARGET", "python"), "default target language")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "JSON file workflows are loaded from and saved to")
	cmd.Flags().BoolVar(&execute, "allow-execute", false, "enable POST /api/execute/{id}")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "allowed CORS origins (default any)")
	return cmd
}

// openStore loads the snapshot at path, or returns an empty store when path
// is empty or the file does not exist yet.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		return store.New(), nil
	}
	st, err := store.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("no snapshot yet, starting empty", "path", path)
		return store.New(), nil
	}
	if err != nil {
		return nil, err
	}
	slog.Info("loaded workflows", "path", path, "count", len(st.List()))
	return st, nil
}
