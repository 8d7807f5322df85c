package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"gopherai-kbqa/internal/config"
	"gopherai-kbqa/internal/vectorindex"
)

func inspectIndexCMD() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "inspect-index",
		Short: "Print size, dimension and per-source chunk counts of a persisted index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.Index.Path
			}

			ix, err := vectorindex.Load(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:       %s\n", path)
			fmt.Fprintf(out, "documents:  %d\n", ix.Len())
			fmt.Fprintf(out, "dimension:  %d\n", ix.Dimension())

			counts := make(map[string]int)
			for i := range ix.Len() {
				record, err := ix.Record(vectorindex.Handle(i))
				if err != nil {
					return err
				}
				counts[record.Metadata.Source()]++
			}
			sources := make([]string, 0, len(counts))
			for source := range counts {
				sources = append(sources, source)
			}
			sort.Strings(sources)
			fmt.Fprintf(out, "sources:    %d\n", len(sources))
			for _, source := range sources {
				fmt.Fprintf(out, "  %4d  %s\n", counts[source], source)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "index directory (default from config)")
	return cmd
}
