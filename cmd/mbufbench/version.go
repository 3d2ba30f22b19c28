package main

import (
	"fmt"

	"github.com/memkit/memorykit/mbuf"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mbufbench %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  block header: %d bytes\n", mbuf.BlockHeaderSize)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
