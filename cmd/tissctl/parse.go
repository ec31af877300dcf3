package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/farxc/tiss_wrapper/internal/tiss/parser"
	"github.com/farxc/tiss_wrapper/internal/tiss/xmltree"
)

func parseCmd(opts *rootOptions) *cobra.Command {
	var tree bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a TISS XML and print it as JSON without touching the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const component = "Parse"
			appLogger := opts.newLogger(cmd)

			var out any
			if tree {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()

				root, err := xmltree.Decode(f)
				if err != nil {
					return err
				}
				out = root.ToMap()
			} else {
				doc, err := parser.ParseFile(args[0])
				if err != nil {
					return err
				}
				if match, comparable := doc.HashMatches(); comparable && !match {
					appLogger.Warn(component, "Hash mismatch: declared=%s computed=%s", doc.Hash, doc.ComputedHash)
				}
				for _, gap := range doc.Gaps {
					appLogger.Info(component, "Validation gap: %s", gap)
				}
				out = doc
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&tree, "tree", false, "Print the normalized element tree instead of the typed document")
	return cmd
}
