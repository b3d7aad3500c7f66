package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/llmsearch/internal/report"
	"github.com/FranksOps/llmsearch/internal/storage"
	"github.com/FranksOps/llmsearch/internal/storage/backend"
	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		filter  storage.Filter
		outcome string
		since   time.Duration
		summary bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded crawl attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg.Audit
			if cfg.Backend == backend.None {
				return errors.New("audit backend is disabled; set audit.backend and audit.dsn")
			}
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q", format)
			}
			filter.Outcome = storage.Outcome(outcome)
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}

			ctx := cmd.Context()
			b, err := backend.Open(ctx, cfg.Backend, cfg.DSN)
			if err != nil {
				return fmt.Errorf("audit backend: %w", err)
			}
			defer b.Close()

			if summary {
				// Aggregate over every match, not one page.
				filter.Limit = 0
			}
			records, err := b.Query(ctx, filter)
			if err != nil {
				return fmt.Errorf("query history: %w", err)
			}

			out := cmd.OutOrStdout()
			switch {
			case summary && format == "json":
				return report.WriteJSON(out, report.GenerateSummary(records))
			case summary:
				return report.WriteText(out, report.GenerateSummary(records))
			case format == "json":
				enc := json.NewEncoder(out)
				for _, r := range records {
					if err := enc.Encode(r); err != nil {
						return fmt.Errorf("context: %w", err)
					}
				}
				return nil
			default:
				return report.WriteTable(out, records)
			}
		},
	}

	cmd.Flags().StringVar(&filter.URL, "url", "", "only records for this URL")
	cmd.Flags().StringVar(&filter.RequestID, "request-id", "", "only records for one tool call")
	cmd.Flags().StringVar(&outcome, "outcome", "", "only records with this outcome (ok, fetch_error, ...)")
	cmd.Flags().DurationVar(&since, "since", 0, "only records newer than this, e.g. 24h")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum records to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "print aggregate statistics instead of records")
	cmd.Flags().StringVar(&format, "format", "text", "text or json")
	return cmd
}
