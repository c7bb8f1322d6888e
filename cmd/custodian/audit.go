package main

import (
	"context"

	"github.com/spf13/cobra"

	"mercator-hq/custodian/pkg/cli"
	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/server"
)

func newAuditCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit trail",
	}
	cmd.AddCommand(newAuditQueryCmd(opts))
	return cmd
}

func newAuditQueryCmd(opts *globalOptions) *cobra.Command {
	var flags struct {
		eventType   string
		detectionID string
		requestID   string
		by          string
		impact      string
		from        string
		to          string
		limit       int
		offset      int
		export      string
	}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query or export audit entries",
		Long: `Print audit entries matching the filters, newest first. With --export
the full matching trail is streamed to stdout as json or csv, ignoring
--limit and --offset.`,
		Example: `  custodian audit query --event-type retention_deletion --from 2026-01-01
  custodian audit query --request-id 5f0c... --export csv > request-audit.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseTime("from", flags.from)
			if err != nil {
				return err
			}
			to, err := parseTime("to", flags.to)
			if err != nil {
				return err
			}
			q := compliance.AuditQuery{
				EventType:         flags.eventType,
				DetectionRecordID: flags.detectionID,
				DeletionRequestID: flags.requestID,
				Actor:             flags.by,
				ComplianceImpact:  compliance.ComplianceImpact(flags.impact),
				From:              from,
				To:                to,
				Limit:             flags.limit,
				Offset:            flags.offset,
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				if flags.export != "" {
					q.Limit, q.Offset = 0, 0
					return rt.Audit.Export(ctx, cmd.OutOrStdout(), flags.export, q)
				}
				page, err := rt.Audit.Query(ctx, &q)
				if err != nil {
					return err
				}
				if format, _ := cli.ParseOutputFormat(opts.output); format == cli.FormatJSON {
					return opts.print(cmd, page)
				}
				return opts.print(cmd, auditTable(page.Entries))
			})
		},
	}

	cmd.Flags().StringVar(&flags.eventType, "event-type", "", "filter by event type")
	cmd.Flags().StringVar(&flags.detectionID, "detection-id", "", "filter by detection record")
	cmd.Flags().StringVar(&flags.requestID, "request-id", "", "filter by deletion request")
	cmd.Flags().StringVar(&flags.by, "by", "", "filter by actor")
	cmd.Flags().StringVar(&flags.impact, "impact", "", "filter by compliance impact (none, low, medium, high)")
	cmd.Flags().StringVar(&flags.from, "from", "", "earliest timestamp")
	cmd.Flags().StringVar(&flags.to, "to", "", "latest timestamp")
	cmd.Flags().IntVar(&flags.limit, "limit", 100, "maximum number of entries")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "number of entries to skip")
	cmd.Flags().StringVar(&flags.export, "export", "", "stream all matches as json or csv")
	return cmd
}
