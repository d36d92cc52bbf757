package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/reconcile"
	"github.com/mediasync/libsync/pkg/remote"
	"github.com/mediasync/libsync/pkg/syncconfig"
	"github.com/mediasync/libsync/pkg/synclog"
	"github.com/mediasync/libsync/pkg/syncmeta"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

// tableRegistry adapts the demo table map to remote.TableRegistry, so
// the HTTP client knows how to encode/decode the one table it syncs.
type tableRegistry map[string]syncrecord.Table

func (r tableRegistry) Table(name string) (syncrecord.Table, error) {
	t, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("libsyncd: no local registration for table %q", name)
	}
	return t, nil
}

func newSyncCommand() *cobra.Command {
	var (
		peerURL    string
		nodeID     string
		configFile string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the demo table against a remote libsyncd peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log := synclog.New(cmd.OutOrStdout(), "libsyncd-sync", level)

			id, err := resolveNodeID(nodeID)
			if err != nil {
				return fmt.Errorf("invalid --node-id: %w", err)
			}

			var cfg syncconfig.Options
			if configFile != "" {
				cfg, err = syncconfig.Load(configFile)
				if err != nil {
					return err
				}
			} else {
				cfg = syncconfig.DefaultOptions()
				cfg.NodeID = id.String()
			}

			clock := hlc.New(id)
			engine, tables := newDemoEngine(clock, false)
			meta := syncmeta.NewMemory()

			registry := tableRegistry(tables)
			client := remote.NewHTTPClient(peerURL, nil, registry)

			ctx := cmd.Context()

			remoteID, err := client.RemoteNodeID(ctx)
			if err != nil {
				return fmt.Errorf("failed to reach peer at %s: %w", peerURL, err)
			}

			recEngine := reconcile.New(engine, meta, log)
			result, err := recEngine.SyncTable(ctx, demoTableName, client, reconcile.Options{
				Direction:    cfg.ReconcileDirection(),
				ChunkSizing:  cfg.ChunkOptions(),
				Threshold:    cfg.ComparisonThreshold,
				LocalNodeID:  id,
				RemoteNodeID: remoteID,
			})
			if err != nil {
				synclog.Event(log, "sync failed", err)
				return err
			}

			log.Info().Str("last_sync_hlc", result.LastSyncHLC.String()).Msg("sync complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&peerURL, "peer", "http://localhost:7777", "base URL of the remote libsyncd peer")
	cmd.Flags().StringVar(&nodeID, "node-id", "", "this node's UUID (random if empty)")
	cmd.Flags().StringVar(&configFile, "config", "", "path to a sync config file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}
