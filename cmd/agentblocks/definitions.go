package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func definitionsCmd(g *globals) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "definitions [type]",
		Short: "List node types, or show one type's definition",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := g.catalog()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if len(args) == 0 {
				list := defs.List()
				if format == "json" {
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(list)
				}
				for _, d := range list {
					gen := "built-in"
					if langs := d.Languages(); len(langs) > 0 {
						gen = "template: " + strings.Join(langs, ", ")
					}
					fmt.Fprintf(w, "%-10s  %-16s  %-22s  %s\n", d.Category, d.Type, d.Name, gen)
				}
				return nil
			}

			d, ok := defs.Get(args[0])
			if !ok {
				return fmt.Errorf("no definition for node type %q", args[0])
			}
			switch format {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			case "yaml", "text", "":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(d); err != nil {
					return err
				}
				return enc.Close()
			}
			return fmt.Errorf("unknown format %q: use text, yaml or json", format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text, yaml or json")
	return cmd
}
