package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/borzacchiello/strrefine"
	"github.com/spf13/cobra"
)

var (
	showStats bool

	solveCmd = &cobra.Command{
		Use:   "solve [problem.yaml]",
		Short: "Check the constraints of a problem and print a model",
		Args:  cobra.ExactArgs(1),
		RunE:  runSolve,
	}
)

func init() {
	solveCmd.Flags().BoolVar(&showStats, "stats", false, "print the reduction statistics")
}

func runSolve(cmd *cobra.Command, args []string) error {
	r, p, err := newRefinement(args[0])
	if err != nil {
		return err
	}

	result, err := r.DecSolve(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strrefine.ResultString(result))

	if result == strrefine.RESULT_SAT {
		if err := printModel(out, r, p); err != nil {
			return err
		}
	}
	if showStats {
		printStats(out, r.Stats())
	}
	return nil
}

// printModel prints the expressions listed in the problem, or every symbol
// of the constraints when the list is empty.
func printModel(out io.Writer, r *strrefine.StringRefinement, p *problem) error {
	exprs := p.print
	if len(exprs) == 0 {
		seen := make(map[uintptr]bool)
		for _, c := range p.constraints {
			strrefine.ForEachSubexpr(c, func(e *strrefine.ExprPtr) {
				if e.Kind() == strrefine.TY_SYM && !seen[e.Id()] {
					seen[e.Id()] = true
					exprs = append(exprs, e)
				}
			})
		}
		sort.Slice(exprs, func(i, j int) bool {
			return exprs[i].String() < exprs[j].String()
		})
	}

	for _, e := range exprs {
		v, err := r.Get(e)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s = %s\n", e, v)
	}
	return nil
}

func printStats(out io.Writer, stats strrefine.RefinementStats) {
	fmt.Fprintf(out, "equations:          %d\n", stats.Equations)
	fmt.Fprintf(out, "captured:           %d\n", stats.CapturedEquations)
	fmt.Fprintf(out, "unrelated strings:  %d\n", stats.UnrelatedStringEquations)
	fmt.Fprintf(out, "lemmas:             %d\n", stats.Lemmas)
	fmt.Fprintf(out, "full constraints:   %d\n", stats.Dependencies.FullConstraints)
	fmt.Fprintf(out, "length constraints: %d\n", stats.Dependencies.LengthConstraints)
	fmt.Fprintf(out, "eval cache hits:    %d\n", stats.Dependencies.CacheHits)
	fmt.Fprintf(out, "eval cache misses:  %d\n", stats.Dependencies.CacheMisses)
}
