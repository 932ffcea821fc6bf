package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/aristath/allocator/internal/modules/optimization"
)

type frontierCmd struct {
	out    io.Writer
	source sourceFlags
	points int
}

func (*frontierCmd) Name() string     { return "frontier" }
func (*frontierCmd) Synopsis() string { return "trace the efficient frontier of a set of assets" }
func (*frontierCmd) Usage() string {
	return `allocator frontier -prices <file.csv> [-points n] [-start d] [-end d] <asset>...

  Sweeps target returns from the lowest to the highest expected asset return
  and prints the minimum-variance portfolio at each step.
`
}

func (c *frontierCmd) SetFlags(f *flag.FlagSet) {
	c.source.register(f)
	f.IntVar(&c.points, "points", optimization.DefaultFrontierPoints, "Number of frontier points (2-200)")
}

func (c *frontierCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	assets := f.Args()
	if len(assets) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one asset is required")
		return subcommands.ExitUsageError
	}
	service, err := c.source.service(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	resp, err := service.Frontier(ctx, optimization.FrontierRequest{
		AssetIDs:  assets,
		StartDate: c.source.start,
		EndDate:   c.source.end,
		Points:    c.points,
	})
	if err != nil {
		return fail(err)
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RETURN\tRISK\tSHARPE\t%s\n", strings.Join(resp.AssetIDs, "\t"))
	for _, p := range resp.Points {
		cells := make([]string, len(p.Weights))
		for i, w := range p.Weights {
			cells[i] = formatWeight(w)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			formatPercent(p.ExpectedReturn),
			formatPercent(p.Risk),
			formatWeight(p.SharpeRatio),
			strings.Join(cells, "\t"))
	}
	tw.Flush()

	return subcommands.ExitSuccess
}
