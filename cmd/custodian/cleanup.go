package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/custodian/pkg/server"
)

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one retention cleanup pass",
		Long: `Soft-delete every detection record whose retention period and grace
period have both elapsed. Records already deleted are skipped, so running
cleanup repeatedly is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				res, err := rt.Enforcer.RunCleanup(ctx)
				if err != nil {
					return err
				}
				slog.InfoContext(ctx, "cleanup finished", "deleted", res.Deleted, "pending", res.Pending, "failed", res.Failed)
				return opts.print(cmd, res)
			})
		},
	}
}
