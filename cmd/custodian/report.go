package main

import (
	"context"

	"github.com/spf13/cobra"

	"mercator-hq/custodian/pkg/compliance/report"
	"mercator-hq/custodian/pkg/server"
)

func newReportCmd(opts *globalOptions) *cobra.Command {
	var flags struct {
		expiringWithin int
		auditFrom      string
		auditTo        string
		framework      string
	}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a compliance report",
		Long: `Summarize detection records by framework, risk level and PII type,
deletion requests by status, audit events in a window and the active
policies. The output is JSON in both output formats.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseTime("audit-from", flags.auditFrom)
			if err != nil {
				return err
			}
			to, err := parseTime("audit-to", flags.auditTo)
			if err != nil {
				return err
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				rep, err := rt.Reports.Generate(ctx, report.Options{
					ExpiringWithinDays: flags.expiringWithin,
					AuditFrom:          from,
					AuditTo:            to,
					Framework:          flags.framework,
				})
				if err != nil {
					return err
				}
				return opts.print(cmd, rep)
			})
		},
	}

	cmd.Flags().IntVar(&flags.expiringWithin, "expiring-within-days", 0, "count records expiring within this many days (report default when 0)")
	cmd.Flags().StringVar(&flags.auditFrom, "audit-from", "", "start of the audit window")
	cmd.Flags().StringVar(&flags.auditTo, "audit-to", "", "end of the audit window")
	cmd.Flags().StringVar(&flags.framework, "framework", "", "restrict the report to one framework")
	return cmd
}
