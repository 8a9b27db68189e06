package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <workflow>",
		Short: "Print a human-readable summary of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := workflow.LoadFile(args[0])
			if err != nil {
				return err
			}
			name := documentName(doc, args[0])

			switch strings.ToLower(format) {
			case "dot":
				s, err := workflow.RenderDOT(doc.Graph(), name)
				if err != nil {
					return fmt.Errorf("render dot: %w", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), s)
			case "text", "":
				fmt.Fprint(cmd.OutOrStdout(), renderText(doc.Graph(), name))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// truncate shortens s to maxLen chars, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// renderText lists nodes in generation order, indented by nesting depth,
// followed by the connections.
func renderText(g *workflow.Graph, name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Workflow: %s  (%d nodes, %d connections)\n", name, len(g.IDs()), len(g.Connections))

	maxIDLen := 4
	for _, id := range g.IDs() {
		maxIDLen = max(maxIDLen, len(id))
	}

	fmt.Fprintf(&sb, "\nNodes:\n")
	var walk func(parent string, depth int)
	walk = func(parent string, depth int) {
		members := g.ScopeMembers(parent, workflow.OrphanTopLevel)
		order, err := g.SequenceScope(members)
		var cyc *workflow.CycleError
		if errors.As(err, &cyc) {
			for _, id := range cyc.NodeIDs {
				if n, ok := g.Node(id); ok {
					order = append(order, n)
				}
			}
		}
		for _, n := range order {
			keys := make([]string, 0, len(n.Properties))
			for k := range n.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var props []string
			for _, k := range keys {
				props = append(props, k+"="+truncate(n.Prop(k), 40))
			}
			indent := strings.Repeat("  ", depth)
			fmt.Fprintf(&sb, "  %s%-*s  %-12s  %s\n", indent, maxIDLen, n.ID, string(n.Type), strings.Join(props, " "))
			if n.Type.OwnsScope() {
				walk(n.ID, depth+1)
			}
		}
	}
	walk("", 0)

	fmt.Fprintf(&sb, "\nConnections:\n")
	maxFromLen := 4
	for _, c := range g.Connections {
		if c != nil {
			maxFromLen = max(maxFromLen, len(c.SourceNode)+len(c.Output())+1)
		}
	}
	for _, c := range g.Connections {
		if c == nil {
			continue
		}
		fmt.Fprintf(&sb, "  %-*s  →  %s.%s\n", maxFromLen, c.SourceNode+"."+c.Output(), c.TargetNode, c.Input())
	}
	return sb.String()
}
