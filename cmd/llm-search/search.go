package main

import (
	"encoding/json"
	"fmt"

	"github.com/FranksOps/llmsearch/internal/pipeline"
	"github.com/spf13/cobra"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var req pipeline.SearchRequest

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Run one search and print the tool's JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = args[0]

			a, err := newApp(cmd.Context(), root.cfg, root.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.pipeline.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("context: %w", err)
			}
			// Stdout stays pure JSON; the paging hint goes to stderr.
			if resp.NextStart >= 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "more results: --start %d\n", resp.NextStart)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Location, "location", "", "location the search should originate from")
	cmd.Flags().IntVar(&req.Start, "start", 0, "result offset (0, 10, 20, ...)")
	cmd.Flags().BoolVar(&req.Crawl, "crawl", false, "fetch each result page as Markdown")
	return cmd
}
