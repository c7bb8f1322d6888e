package main

import (
	"context"

	"github.com/spf13/cobra"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/erasure"
	"mercator-hq/custodian/pkg/server"
)

func newRequestCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "request",
		Aliases: []string{"requests"},
		Short:   "Manage deletion requests",
		Long: `Deletion requests move from pending to processing and end completed or
rejected. A request must be verified with the token returned by submit before
it can be processed, unless verification is disabled in the configuration.`,
	}
	cmd.AddCommand(
		newRequestSubmitCmd(opts),
		newRequestVerifyCmd(opts),
		newRequestProcessCmd(opts),
		newRequestRejectCmd(opts),
		newRequestShowCmd(opts),
		newRequestListCmd(opts),
	)
	return cmd
}

func newRequestSubmitCmd(opts *globalOptions) *cobra.Command {
	var flags struct {
		requestType string
		requester   string
		scope       string
		piiTypes    []string
		from        string
		to          string
	}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a deletion request",
		Long: `Submit a deletion request for a data subject. The verification token is
printed once; only its hash is stored.`,
		Example: `  custodian request submit --type gdpr_erasure --requester user-42
  custodian request submit --type manual --requester user-42 --scope specific_types --pii-types email,phone
  custodian request submit --type ccpa_deletion --requester user-42 --scope date_range --from 2025-01-01 --to 2025-06-30`,
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
			in := &erasure.SubmitInput{
				Type:      compliance.RequestType(flags.requestType),
				Requester: flags.requester,
				Scope:     compliance.RequestScope(flags.scope),
				PIITypes:  flags.piiTypes,
				From:      from,
				To:        to,
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				sub, err := rt.Requests.Submit(ctx, in)
				if err != nil {
					return err
				}
				return opts.print(cmd, sub)
			})
		},
	}

	cmd.Flags().StringVar(&flags.requestType, "type", "", "request type: gdpr_erasure, ccpa_deletion or manual (required)")
	cmd.Flags().StringVar(&flags.requester, "requester", "", "data subject whose records are erased (required)")
	cmd.Flags().StringVar(&flags.scope, "scope", string(compliance.ScopeAllData), "scope: all_data, specific_types or date_range")
	cmd.Flags().StringSliceVar(&flags.piiTypes, "pii-types", nil, "PII types for the specific_types scope")
	cmd.Flags().StringVar(&flags.from, "from", "", "start of the date_range scope")
	cmd.Flags().StringVar(&flags.to, "to", "", "end of the date_range scope")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("requester")
	return cmd
}

// requestAction builds a subcommand taking one positional argument and
// printing the resulting request.
func requestAction(opts *globalOptions, use, short string, fn func(ctx context.Context, w *erasure.Workflow, arg string) (*compliance.DeletionRequest, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				req, err := fn(ctx, rt.Requests, args[0])
				if err != nil {
					return err
				}
				return opts.print(cmd, req)
			})
		},
	}
}

func newRequestVerifyCmd(opts *globalOptions) *cobra.Command {
	return requestAction(opts, "verify <token>", "Verify a request with its token", func(ctx context.Context, w *erasure.Workflow, token string) (*compliance.DeletionRequest, error) {
		return w.Verify(ctx, token)
	})
}

func newRequestProcessCmd(opts *globalOptions) *cobra.Command {
	cmd := requestAction(opts, "process <id>", "Process a verified request", func(ctx context.Context, w *erasure.Workflow, id string) (*compliance.DeletionRequest, error) {
		return w.Process(ctx, id)
	})
	cmd.Long = `Soft-delete every record in the request's scope and complete it with a
deletion report. A request left in processing by an interrupted run resumes
where it stopped. An internal failure rejects the request with the reason.`
	return cmd
}

func newRequestShowCmd(opts *globalOptions) *cobra.Command {
	return requestAction(opts, "show <id>", "Show a deletion request", func(ctx context.Context, w *erasure.Workflow, id string) (*compliance.DeletionRequest, error) {
		return w.Get(ctx, id)
	})
}

func newRequestRejectCmd(opts *globalOptions) *cobra.Command {
	var reason string
	cmd := requestAction(opts, "reject <id>", "Reject a pending request", func(ctx context.Context, w *erasure.Workflow, id string) (*compliance.DeletionRequest, error) {
		return w.Reject(ctx, id, reason)
	})
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newRequestListCmd(opts *globalOptions) *cobra.Command {
	var flags struct {
		status      string
		requester   string
		requestType string
		overdue     bool
		limit       int
		offset      int
	}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deletion requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				var (
					reqs []*compliance.DeletionRequest
					err  error
				)
				if flags.overdue {
					reqs, err = rt.Requests.Overdue(ctx)
				} else {
					reqs, err = rt.Requests.List(ctx, compliance.RequestQuery{
						Status:    compliance.RequestStatus(flags.status),
						Requester: flags.requester,
						Type:      compliance.RequestType(flags.requestType),
						Limit:     flags.limit,
						Offset:    flags.offset,
					})
				}
				if err != nil {
					return err
				}
				return opts.print(cmd, requestTable(reqs))
			})
		},
	}

	cmd.Flags().StringVar(&flags.status, "status", "", "filter by status")
	cmd.Flags().StringVar(&flags.requester, "requester", "", "filter by data subject")
	cmd.Flags().StringVar(&flags.requestType, "type", "", "filter by request type")
	cmd.Flags().BoolVar(&flags.overdue, "overdue", false, "only open requests past their deadline")
	cmd.Flags().IntVar(&flags.limit, "limit", 50, "maximum number of requests")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "number of requests to skip")
	return cmd
}
