package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notebrain/internal/mcp"
	"github.com/Aman-CERP/notebrain/internal/output"
	"github.com/Aman-CERP/notebrain/internal/search"
	"github.com/Aman-CERP/notebrain/internal/store"
)

// queryOptions holds CLI flags for query.
type queryOptions struct {
	k        int
	tags     []string
	docs     []string
	budget   int
	format   string // "text", "json"
	fusion   string
	noExpand bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the vault",
		Long: `Search the vault with hybrid retrieval.

Vector and keyword results are fused with Reciprocal Rank Fusion, then
notes linked from the top results are added. With --budget the ranked
chunks are packed into a context bundle of at most that many tokens.

Examples:
  notebrain query "how do I prune tomatoes"
  notebrain query "standup notes" --tag work --k 5
  notebrain query "quarterly plan" --budget 2000
  notebrain query "compost" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of results (default: retrieval.max_results)")
	cmd.Flags().StringSliceVarP(&opts.tags, "tag", "t", nil, "Only notes with this tag (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.docs, "doc", "d", nil, "Only this note path (repeatable)")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "Build a context bundle of at most this many tokens")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.fusion, "fusion", "", "Fusion mode: rrf, weighted (default: retrieval.fusion)")
	cmd.Flags().BoolVar(&opts.noExpand, "no-expand", false, "Do not add results from linked notes")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, text string, opts queryOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q (valid options: text, json)", opts.format)
	}
	if opts.budget < 0 {
		return fmt.Errorf("budget must not be negative: %d", opts.budget)
	}

	v, err := openVault(ctx, vaultDir, openOptions{})
	if err != nil {
		return err
	}
	defer v.Close()

	retriever, err := v.retriever(ctx, nil)
	if err != nil {
		return err
	}

	v.logger.Info("query_started", slog.String("query", text), slog.Int("k", opts.k))
	resp, err := retriever.Retrieve(ctx, search.Query{
		Text:     text,
		K:        opts.k,
		Filter:   store.Filter{DocIDs: opts.docs, Tags: opts.tags},
		Fusion:   opts.fusion,
		NoExpand: opts.noExpand,
	})
	if err != nil {
		return err
	}

	out := output.NewAuto(cmd.OutOrStdout())
	if opts.budget > 0 {
		bundle := v.builder().Build(resp.Results, opts.budget)
		if opts.format == "json" {
			return out.JSON(bundle)
		}
		out.Raw(bundle.Render())
		return nil
	}

	if opts.format == "json" {
		results := make([]mcp.ResultOutput, 0, len(resp.Results))
		for _, r := range resp.Results {
			if r.Chunk != nil {
				results = append(results, mcp.ToResultOutput(r))
			}
		}
		return out.JSON(mcp.SearchNotesOutput{
			Results:      results,
			Fusion:       resp.Fusion,
			Degraded:     resp.Degraded,
			DegradedPath: resp.DegradedPath,
			TookMS:       resp.Duration.Milliseconds(),
		})
	}
	out.Results(resp)
	return nil
}
