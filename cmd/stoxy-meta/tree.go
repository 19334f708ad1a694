package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stoxy/stoxy/internal/serialization"
)

func newTreeCmd(a *app) *cobra.Command {
	var path string
	var showIDs bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the hierarchy as an indented tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := serialization.Export(cmd.Context(), store, &serialization.ExportOptions{Path: splitPath(path)})
			if err != nil {
				return err
			}

			depth := make(map[string]int, len(doc.Entities))
			out := cmd.OutOrStdout()
			for i, rec := range doc.Entities {
				d := 0
				if i > 0 {
					d = depth[rec.ParentID] + 1
				}
				depth[rec.ID] = d

				name := rec.Name
				if rec.Kind == "container" && name != "/" {
					name += "/"
				}
				line := strings.Repeat("  ", d) + name
				if rec.Kind == "object" {
					line += fmt.Sprintf(" (%d bytes", rec.ContentLength)
					if rec.Value != "" {
						line += ", " + rec.Value
					}
					line += ")"
				}
				if showIDs {
					line += "  " + rec.ID
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "print only the subtree at this container path")
	cmd.Flags().BoolVar(&showIDs, "ids", false, "show object IDs")
	return cmd
}
