package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tryon/internal/domain"
)

func newHistoryCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and clean up job history",
	}
	cmd.AddCommand(newHistoryListCmd(d), newHistoryDeleteCmd(d), newHistoryPurgeCmd(d))
	return cmd
}

func newHistoryListCmd(d *deps) *cobra.Command {
	var (
		page, perPage int
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List history records newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, _, err := d.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			items, total, err := b.Store.List(ctx, page, perPage)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(d.out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"items": items, "total": total})
			}
			_, _ = fmt.Fprintf(d.errOut, "%d record(s) in %s history\n", total, b.Name)
			w := tabwriter.NewWriter(d.out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "JOB ID\tSTATUS\tVIDEO\tSTYLE\tCREATED")
			for _, rec := range items {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.JobID,
					rec.Status,
					dash(string(rec.VideoStatus)),
					dash(rec.StyleName),
					rec.CreatedAt.Format(time.RFC3339),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number (1-based)")
	cmd.Flags().IntVar(&perPage, "per-page", domain.DefaultPageSize, "Records per page (max 100)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newHistoryDeleteCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Soft delete a history record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, _, err := d.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.Store.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			_, _ = fmt.Fprintf(d.out, "deleted %s\n", args[0])
			return nil
		},
	}
}

func newHistoryPurgeCmd(d *deps) *cobra.Command {
	var olderThan string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove soft-deleted records for good",
		Long: `Physically remove history records that were soft deleted more than
--older-than ago. Live records are never touched.

Examples:
  tryonctl history purge --older-than 30d
  tryonctl history purge --older-than 12h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			age, err := parseDuration(olderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than: %w", err)
			}
			ctx := cmd.Context()
			b, _, err := d.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := b.Store.Purge(ctx, age)
			if err != nil {
				return fmt.Errorf("purge history: %w", err)
			}
			_, _ = fmt.Fprintf(d.out, "purged %d record(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "30d", "Minimum time since deletion (e.g. 30d, 720h)")
	return cmd
}

// parseDuration accepts Go durations plus a whole-day "Nd" form.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 0 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil || days < 0 {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration: %s", s)
	}
	return d, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
