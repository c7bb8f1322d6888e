package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/policy"
	"mercator-hq/custodian/pkg/server"
)

func newPolicyCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage retention policies",
		Long: `Retention policies map a compliance framework, and optionally a PII type,
to a retention period in days. A policy without a PII type is the framework
default. When a record falls under several frameworks the shortest retention
wins.`,
	}
	cmd.AddCommand(
		newPolicyListCmd(opts),
		newPolicyUpsertCmd(opts),
		newPolicyDeleteCmd(opts),
		newPolicySeedCmd(opts),
		newPolicyExpirationCmd(opts),
	)
	return cmd
}

func newPolicyListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List retention policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				policies, err := rt.Registry.List(ctx)
				if err != nil {
					return err
				}
				return opts.print(cmd, policyTable(policies))
			})
		},
	}
}

func newPolicyUpsertCmd(opts *globalOptions) *cobra.Command {
	var flags struct {
		framework     string
		piiType       string
		retentionDays int
		graceDays     int
		autoDeletion  bool
		immediate     bool
		active        bool
		effective     string
		description   string
	}

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or replace a retention policy",
		Example: `  custodian policy upsert --framework gdpr --pii-type email --retention-days 730 --grace-days 30
  custodian policy upsert --framework pci_dss --retention-days 365 --auto-deletion=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			effective, err := parseTime("effective-date", flags.effective)
			if err != nil {
				return err
			}
			p := &compliance.RetentionPolicy{
				Framework:                  flags.framework,
				PIIType:                    flags.piiType,
				RetentionDays:              flags.retentionDays,
				GracePeriodDays:            flags.graceDays,
				AutoDeletion:               flags.autoDeletion,
				ImmediateDeletionOnRequest: flags.immediate,
				Active:                     flags.active,
				Description:                flags.description,
			}
			if effective != nil {
				p.EffectiveDate = *effective
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				stored, err := rt.Registry.Upsert(ctx, p)
				if err != nil {
					return err
				}
				return opts.print(cmd, stored)
			})
		},
	}

	cmd.Flags().StringVar(&flags.framework, "framework", "", "compliance framework (required)")
	cmd.Flags().StringVar(&flags.piiType, "pii-type", "", "PII type; empty sets the framework default")
	cmd.Flags().IntVar(&flags.retentionDays, "retention-days", 0, "retention period in days (required)")
	cmd.Flags().IntVar(&flags.graceDays, "grace-days", 0, "grace period after expiry before deletion")
	cmd.Flags().BoolVar(&flags.autoDeletion, "auto-deletion", true, "delete expired records automatically")
	cmd.Flags().BoolVar(&flags.immediate, "immediate-on-request", false, "erase immediately when a deletion request covers the record")
	cmd.Flags().BoolVar(&flags.active, "active", true, "policy takes part in expiration decisions")
	cmd.Flags().StringVar(&flags.effective, "effective-date", "", "date the policy takes effect (informational)")
	cmd.Flags().StringVar(&flags.description, "description", "", "free-form description")
	_ = cmd.MarkFlagRequired("framework")
	_ = cmd.MarkFlagRequired("retention-days")
	return cmd
}

func newPolicyDeleteCmd(opts *globalOptions) *cobra.Command {
	var framework, piiType string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				if err := rt.Registry.Delete(ctx, framework, piiType); err != nil {
					return err
				}
				return opts.print(cmd, map[string]string{"deleted": policyLabel(framework, piiType)})
			})
		},
	}
	cmd.Flags().StringVar(&framework, "framework", "", "compliance framework (required)")
	cmd.Flags().StringVar(&piiType, "pii-type", "", "PII type; empty deletes the framework default")
	_ = cmd.MarkFlagRequired("framework")
	return cmd
}

func newPolicySeedCmd(opts *globalOptions) *cobra.Command {
	var file string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the built-in or a file's retention policies",
		Long: `Without --file, insert the built-in framework defaults (GDPR, CCPA,
HIPAA, PCI-DSS, SOX, internal audit). With --file, apply the policies of a
YAML seed file. Existing policies are kept unless --overwrite is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			policies := policy.DefaultPolicies()
			if file != "" {
				var err error
				if policies, err = policy.LoadSeedFile(file); err != nil {
					return err
				}
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				res, err := rt.Registry.Seed(ctx, policies, overwrite)
				if err != nil {
					return err
				}
				return opts.print(cmd, res)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace policies that already exist")
	return cmd
}

func newPolicyExpirationCmd(opts *globalOptions) *cobra.Command {
	var frameworks []string
	var piiType, detectedAt string

	cmd := &cobra.Command{
		Use:   "expiration",
		Short: "Compute the expiration of a record under the current policies",
		Example: `  custodian policy expiration --framework gdpr,hipaa --pii-type lab_result --detected-at 2026-01-15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseTime("detected-at", detectedAt)
			if err != nil {
				return err
			}
			if at == nil {
				now := time.Now().UTC()
				at = &now
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *server.Runtime) error {
				expiresAt, decision, err := rt.Registry.CalculateExpiration(ctx, frameworks, piiType, *at)
				if err != nil {
					return err
				}
				return opts.print(cmd, map[string]any{
					"detected_at": *at,
					"expires_at":  expiresAt,
					"decision":    decision,
				})
			})
		},
	}
	cmd.Flags().StringSliceVar(&frameworks, "framework", nil, "applicable frameworks (repeat or comma-separate)")
	cmd.Flags().StringVar(&piiType, "pii-type", "", "PII type of the record")
	cmd.Flags().StringVar(&detectedAt, "detected-at", "", "detection time (now when empty)")
	return cmd
}

func policyLabel(framework, piiType string) string {
	if piiType == "" {
		return framework
	}
	return fmt.Sprintf("%s/%s", framework, piiType)
}
