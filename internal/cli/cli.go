// Package cli implements the allocator command line subcommands.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/optimization"
)

// Register adds the allocator subcommands to c. Reports go to out.
func Register(c *subcommands.Commander, out io.Writer) {
	c.Register(&optimizeCmd{out: out}, "optimization")
	c.Register(&frontierCmd{out: out}, "optimization")
}

// sourceFlags are shared by every subcommand that reads prices.
type sourceFlags struct {
	prices string
	start  string
	end    string
	solver string
}

func (s *sourceFlags) register(f *flag.FlagSet) {
	f.StringVar(&s.prices, "prices", "", "Wide CSV of prices (date,ID1,ID2,...)")
	f.StringVar(&s.start, "start", "", "Start date YYYY-MM-DD (defaults to 2020-01-01)")
	f.StringVar(&s.end, "end", "", "End date YYYY-MM-DD, exclusive (defaults to today)")
	f.StringVar(&s.solver, "solver", optimization.ActiveSetSolverName, "QP solver (active_set, penalty)")
}

// service builds an optimizer service over the CSV file. Runs are not recorded.
func (s *sourceFlags) service(targetReturn float64) (*optimization.OptimizerService, error) {
	if s.prices == "" {
		return nil, fmt.Errorf("-prices is required")
	}
	if _, err := os.Stat(s.prices); err != nil {
		return nil, fmt.Errorf("price file: %w", err)
	}
	solver, err := optimization.NewSolver(s.solver)
	if err != nil {
		return nil, err
	}

	defaults := optimization.ServiceDefaults{
		TargetReturn: targetReturn,
		StartDate:    time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	return optimization.NewOptimizerService(
		historical.NewCSVSource(s.prices),
		optimization.NewMVOptimizer(solver, nil),
		nil,
		defaults,
		zerolog.Nop(),
	), nil
}

// formatWeight renders a weight with four decimals.
func formatWeight(w float64) string {
	return decimal.NewFromFloat(w).Round(4).StringFixed(4)
}

// formatPercent renders a fraction as a percentage with two decimals.
func formatPercent(v float64) string {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).Round(2).StringFixed(2) + "%"
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}
