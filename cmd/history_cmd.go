package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/researcher/internal/history"
	"github.com/nextlevelbuilder/researcher/internal/render"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past research runs",
	}
	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historySearchCmd())
	cmd.AddCommand(historyShowCmd())
	return cmd
}

func historyListCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(ctx context.Context, store history.Store) error {
				recs, err := store.List(ctx, limit)
				if err != nil {
					return err
				}
				return printRecords(os.Stdout, recs, jsonOutput)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func historySearchCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search past queries, topics and summaries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.Join(args, " ")
			return withHistory(func(ctx context.Context, store history.Store) error {
				recs, err := store.Search(ctx, q, limit)
				if err != nil {
					return err
				}
				return printRecords(os.Stdout, recs, jsonOutput)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func historyShowCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			return withHistory(func(ctx context.Context, store history.Store) error {
				rec, err := store.Get(ctx, id)
				if err != nil {
					return err
				}
				return printRecord(os.Stdout, rec, jsonOutput, renderOptions(false))
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// withHistory opens the configured store for the duration of fn.
func withHistory(fn func(ctx context.Context, store history.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := history.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func printRecords(w io.Writer, recs []history.Record, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tQUERY\tTOPIC")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(r.Query, 40), truncate(r.Response.Preview(), 40))
	}
	return tw.Flush()
}

func printRecord(w io.Writer, rec *history.Record, jsonOutput bool, opts render.Options) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	fmt.Fprintf(w, "Query:  %s\n", rec.Query)
	fmt.Fprintf(w, "When:   %s (%s, %dms)\n", rec.CreatedAt.Local().Format(time.RFC1123), rec.Model, rec.DurationMS)
	if len(rec.ToolsUsed) > 0 {
		fmt.Fprintf(w, "Tools:  %s\n", strings.Join(rec.ToolsUsed, ", "))
	}
	fmt.Fprintln(w)
	_, err := io.WriteString(w, render.Text(rec.Response, opts))
	return err
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
