// Command libsyncd is a thin demo harness binding pkg/remote/remotesrv's
// HTTP server and pkg/reconcile's engine around a single in-memory
// "tracks" table. It exists to exercise the sync core end to end, not
// as a reimplementation of the media library application (spec.md's
// Non-goals).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "libsyncd",
		Short: "Demo daemon for the HLC-based dataset sync core",
		Long: `libsyncd hosts one in-memory table and either serves it as a
sync peer over HTTP, or reconciles it against a remote libsyncd peer.`,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newSyncCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
