package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/aristath/allocator/internal/modules/optimization"
)

type optimizeCmd struct {
	out    io.Writer
	source sourceFlags
	target float64
	chart  string
	asJSON bool
}

func (*optimizeCmd) Name() string     { return "optimize" }
func (*optimizeCmd) Synopsis() string { return "compute minimum-variance weights for a target return" }
func (*optimizeCmd) Usage() string {
	return `allocator optimize -prices <file.csv> [-target r] [-start d] [-end d] [-chart out.png] [-json] <asset>...

  Computes long-only minimum-variance weights reaching the target annual return.
`
}

func (c *optimizeCmd) SetFlags(f *flag.FlagSet) {
	c.source.register(f)
	f.Float64Var(&c.target, "target", 0.10, "Target annualized return")
	f.StringVar(&c.chart, "chart", "", "Write an allocation pie chart PNG to this path")
	f.BoolVar(&c.asJSON, "json", false, "Print the JSON response instead of a table")
}

func (c *optimizeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	assets := f.Args()
	if len(assets) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one asset is required")
		return subcommands.ExitUsageError
	}
	service, err := c.source.service(c.target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	target := c.target
	resp, err := service.Optimize(ctx, optimization.OptimizeRequest{
		AssetIDs:     assets,
		TargetReturn: &target,
		StartDate:    c.source.start,
		EndDate:      c.source.end,
	})
	if err != nil {
		return fail(err)
	}

	if c.asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return fail(err)
		}
	} else {
		c.render(assets, resp)
	}

	if c.chart != "" {
		labels := uniqueAssets(assets)
		weights := make([]float64, len(labels))
		for i, id := range labels {
			weights[i] = resp.OptimizedWeights[id]
		}
		png, err := optimization.RenderAllocationChart("Allocation", labels, weights)
		if err != nil {
			return fail(err)
		}
		if err := os.WriteFile(c.chart, png, 0644); err != nil {
			return fail(err)
		}
	}

	return subcommands.ExitSuccess
}

func (c *optimizeCmd) render(assets []string, resp *optimization.OptimizeResponse) {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tWEIGHT\tALLOCATION")
	for _, id := range uniqueAssets(assets) {
		w := resp.OptimizedWeights[id]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, formatWeight(w), formatPercent(w))
	}
	tw.Flush()

	fmt.Fprintf(c.out, "\nExpected return: %s\n", formatPercent(resp.Performance.ExpectedReturn))
	fmt.Fprintf(c.out, "Risk:            %s\n", formatPercent(resp.Performance.Risk))
	fmt.Fprintf(c.out, "Sharpe ratio:    %s\n", formatWeight(resp.Performance.SharpeRatio))
}

// uniqueAssets drops repeated IDs, keeping first-seen order. The response
// already holds the combined weight of a repeated ID.
func uniqueAssets(assets []string) []string {
	seen := make(map[string]bool, len(assets))
	out := make([]string, 0, len(assets))
	for _, id := range assets {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
