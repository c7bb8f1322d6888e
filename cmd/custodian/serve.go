package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/custodian/pkg/cli"
	"mercator-hq/custodian/pkg/server"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var flags struct {
		listenAddress string
		dryRun        bool
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin API and the retention schedule",
		Long: `Start the Custodian admin API with the specified configuration.

The server exposes detection ingestion, policy administration, deletion
requests, audit queries and reports under /v1, plus /healthz, /readyz and
the Prometheus endpoint. The retention cleanup runs on the configured cron
schedule and the policy seed file is reloaded on change when watching is on.

Examples:
  # Start with defaults (SQLite in the working directory)
  custodian serve

  # Start with a config file and override the listen address
  custodian serve --config /etc/custodian/config.yaml --listen 0.0.0.0:8080

  # Validate config without starting the server
  custodian serve --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if flags.listenAddress != "" {
				cfg.Server.ListenAddress = flags.listenAddress
			}
			if flags.dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration valid")
				return nil
			}

			rt, err := server.NewRuntime(cmd.Context(), cfg, Version)
			if err != nil {
				return cli.NewCommandError("serve", err)
			}
			defer func() {
				if err := rt.Close(); err != nil {
					slog.Error("runtime close failed", "error", err)
				}
			}()

			slog.Info("starting custodian",
				"version", Version,
				"listen_address", cfg.Server.ListenAddress,
				"storage_backend", cfg.Storage.Backend,
				"cleanup_schedule", cfg.Retention.Schedule,
			)
			return cli.NewCommandError("serve", server.New(rt).Start(cmd.Context()))
		},
	}

	cmd.Flags().StringVarP(&flags.listenAddress, "listen", "l", "", "override listen address")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "validate config without starting server")
	return cmd
}
