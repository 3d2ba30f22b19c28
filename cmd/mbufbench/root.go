package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var (
	// Global flags
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "mbufbench",
	Short: "Exercise mbuf block pools with a synthetic proxy workload",
	Long: `mbufbench drives one block pool per worker the way a proxy would: each message
is read into a pooled block, split into header and body views, fanned out to
several downstream holders and released. Pool statistics are reported at the end.

Pool settings are read from MBUF_* environment variables and may be overridden
with flags.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
