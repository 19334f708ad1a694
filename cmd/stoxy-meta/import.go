package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stoxy/stoxy/internal/serialization"
)

func newImportCmd(a *app) *cobra.Command {
	var format, input string
	var replace bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a hierarchy document into the store",
		Long: `Load a document written by "stoxy-meta export". Existing entities are
kept and matching IDs are skipped; with --replace everything below the root
is removed first. The whole import runs in one transaction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := serialization.ParseFormat(format)
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if input != "-" {
				file, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("opening %s: %w", input, err)
				}
				defer file.Close()
				r = file
			}
			doc, err := serialization.Decode(r, f)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := serialization.Import(cmd.Context(), store, doc, &serialization.ImportOptions{Replace: replace})
			if err != nil {
				return fmt.Errorf("importing: %w", err)
			}
			errOut := cmd.ErrOrStderr()
			for _, w := range result.Warnings {
				fmt.Fprintf(errOut, "Warning: %s\n", w)
			}
			fmt.Fprintf(errOut, "Imported %d entities (%d skipped, %d removed)\n", result.Inserted, result.Skipped, result.Removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "input format: json or cbor")
	cmd.Flags().StringVarP(&input, "input", "i", "-", "input file path (- for stdin)")
	cmd.Flags().BoolVar(&replace, "replace", false, "remove existing entities before importing")
	return cmd
}
