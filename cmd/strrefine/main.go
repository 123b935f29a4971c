package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/borzacchiello/strrefine"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "strrefine",
		Short: "Decide string constraints through a dependency graph of string primitives",
		Long: `strrefine reads constraints from a YAML problem file, builds the
dependency graph of the string primitives they apply and checks them with z3.`,
		SilenceUsage: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the configuration (debug, info, warn, error)")

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(dotCmd)
}

// loadConfig reads the configuration and attaches a logger writing to stderr.
func loadConfig() (strrefine.Config, error) {
	config, err := strrefine.LoadConfig(configPath)
	if err != nil {
		return config, err
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	level, err := config.Level()
	if err != nil {
		return config, err
	}
	config.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return config, nil
}

// newRefinement loads the problem at path into a new refinement loop.
func newRefinement(path string) (*strrefine.StringRefinement, *problem, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	eb := strrefine.NewExprBuilder()
	p, err := loadProblem(eb, path)
	if err != nil {
		return nil, nil, err
	}

	r, err := strrefine.NewStringRefinement(eb, config)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range p.constraints {
		if err := r.SetTo(c); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return r, p, nil
}
