package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notebrain/internal/output"
	"github.com/Aman-CERP/notebrain/internal/validation"
)

// DefaultQueriesFile is looked up in the vault root when --queries is unset.
const DefaultQueriesFile = "notebrain-queries.yaml"

type evalOptions struct {
	queries    string
	jsonOutput bool
	minMRR     float64
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score retrieval against golden queries",
		Long: `Run golden queries from a YAML file against the index and report
where the expected notes rank.

The file has tier1, tier2 and negative sections:

  tier1:
    - id: T1-Q1
      name: compost
      query: turn the compost heap
      expected: [garden.md]     # note IDs, or folders ending in /
  negative:
    - id: N-Q1
      query: ""

Fails when a tier 1 query misses or MRR drops below --min-mrr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.queries, "queries", "", "Query file (default: <vault>/"+DefaultQueriesFile+")")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().Float64Var(&opts.minMRR, "min-mrr", 0, "Fail when mean reciprocal rank is below this value")

	return cmd
}

func runEval(ctx context.Context, w io.Writer, opts evalOptions) error {
	if opts.minMRR < 0 || opts.minMRR > 1 {
		return fmt.Errorf("--min-mrr must be between 0 and 1, got %g", opts.minMRR)
	}
	v, err := openVault(ctx, vaultDir, openOptions{})
	if err != nil {
		return err
	}
	defer v.Close()

	path := opts.queries
	if path == "" {
		path = filepath.Join(v.cfg.Vault.Path, DefaultQueriesFile)
	}
	queries, err := validation.LoadQueries(path)
	if err != nil {
		return err
	}

	retriever, err := v.retriever(ctx, nil)
	if err != nil {
		return err
	}
	result := validation.NewValidator(retriever).RunAll(ctx, queries)

	out := output.New(w)
	if opts.jsonOutput {
		if err := out.JSON(result); err != nil {
			return err
		}
	} else {
		printEval(out, result)
	}

	if result.Tier1Pass < result.Tier1Total {
		return fmt.Errorf("%d of %d tier 1 queries failed", result.Tier1Total-result.Tier1Pass, result.Tier1Total)
	}
	if result.MRR < opts.minMRR {
		return fmt.Errorf("MRR %.3f is below %.3f", result.MRR, opts.minMRR)
	}
	return nil
}

func printEval(out *output.Writer, result *validation.ValidationResult) {
	sections := []struct {
		name    string
		results []validation.TestResult
	}{
		{"Tier 1", result.Tier1},
		{"Tier 2", result.Tier2},
		{"Negative", result.Negative},
	}
	for _, section := range sections {
		if len(section.results) == 0 {
			continue
		}
		out.Statusf("", "%s", section.name)
		for _, r := range section.results {
			label := r.Spec.ID
			if r.Spec.Name != "" {
				label += " " + r.Spec.Name
			}
			switch {
			case r.Error != "":
				out.Errorf("%s: %s", label, r.Error)
			case !r.Passed:
				out.Errorf("%s: expected %v, got %v", label, r.Spec.Expected, r.TopResults)
			case r.MatchedAt >= 0:
				out.Successf("%s: rank %d", label, r.MatchedAt+1)
			default:
				out.Successf("%s", label)
			}
		}
	}
	out.Newline()
	out.Statusf("📊", "tier1 %d/%d  tier2 %d/%d  negative %d/%d  MRR %.3f",
		result.Tier1Pass, result.Tier1Total, result.Tier2Pass, result.Tier2Total,
		result.NegPass, result.NegTotal, result.MRR)
}
