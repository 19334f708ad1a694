package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stoxy/stoxy/internal/serialization"
)

func newExportCmd(a *app) *cobra.Command {
	var format, output, path string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the hierarchy to a JSON or CBOR document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := serialization.ParseFormat(format)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := serialization.Export(cmd.Context(), store, &serialization.ExportOptions{Path: splitPath(path)})
			if err != nil {
				return fmt.Errorf("exporting: %w", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer file.Close()
				w = file
			}
			if err := serialization.Encode(w, doc, f); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			if output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entities to %s\n", len(doc.Entities), output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or cbor")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file path (- for stdout)")
	cmd.Flags().StringVar(&path, "path", "", "export only the subtree at this container path")
	return cmd
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
