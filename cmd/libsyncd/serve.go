package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/remote/remotesrv"
	"github.com/mediasync/libsync/pkg/synclog"
	"github.com/mediasync/libsync/pkg/syncmeta"
)

func newServeCommand() *cobra.Command {
	var (
		addr    string
		nodeID  string
		seed    bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo table as a sync peer over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log := synclog.New(cmd.OutOrStdout(), "libsyncd-serve", level)

			id, err := resolveNodeID(nodeID)
			if err != nil {
				return err
			}

			clock := hlc.New(id)
			engine, tables := newDemoEngine(clock, seed)
			meta := syncmeta.NewMemory()

			srv := remotesrv.New(id, engine, meta, tables, log)
			log.Info().Str("addr", addr).Str("node_id", id.String()).Msg("serving sync peer")
			return http.ListenAndServe(addr, srv)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":7777", "address to listen on")
	cmd.Flags().StringVar(&nodeID, "node-id", "", "this node's UUID (random if empty)")
	cmd.Flags().BoolVar(&seed, "seed", true, "seed the demo table with sample rows")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func resolveNodeID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}
