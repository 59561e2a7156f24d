// Command grilobridge exposes media providers as browsable sources over
// HTTP, a read-only FUSE mount and the command line.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/grilobridge/grilobridge/internal/plugin"
)

// Build information, set with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func printVersionInfo(w io.Writer) {
	fmt.Fprintf(w, "%s %s (%s)\n", plugin.DisplayName, Version, GitCommit)
	fmt.Fprintf(w, "Built: %s\n", BuildTime)
	fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   plugin.Name,
		Short: "Browse media providers as sources",
		Long: "grilobridge wraps media providers (static catalogs and S3 buckets) in sources " +
			"that can be browsed over HTTP, through a read-only FUSE mount or from the command line.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				printVersionInfo(cmd.OutOrStdout())
				return nil
			}
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("config", "", "Path to config file")
	root.Flags().Bool("version", false, "Show version information and exit")

	root.AddCommand(
		newServeCmd(),
		newSourcesCmd(),
		newBrowseCmd(),
		newMetadataCmd(),
		newMountCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersionInfo(cmd.OutOrStdout())
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
