package main

import (
	"os"

	"github.com/spf13/cobra"
)

var dotCmd = &cobra.Command{
	Use:   "dot [problem.yaml]",
	Short: "Print the dependency graph of a problem in the dot format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := newRefinement(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if dotOutput != "" {
			f, err := os.Create(dotOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return r.OutputDot(cmd.Context(), out)
	},
}

var dotOutput string

func init() {
	dotCmd.Flags().StringVarP(&dotOutput, "output", "o", "", "write the graph to this file instead of stdout")
}
