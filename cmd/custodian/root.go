package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/custodian/pkg/cli"
	"mercator-hq/custodian/pkg/config"
	"mercator-hq/custodian/pkg/server"
	"mercator-hq/custodian/pkg/telemetry/logging"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	cfgFile   string
	output    string
	actor     string
	actorType string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "custodian",
		Short: "Custodian - PII compliance retention and audit engine",
		Long: `Custodian tracks detected personal data, enforces retention policies per
compliance framework (GDPR, CCPA, HIPAA, PCI-DSS, SOX), processes verified
erasure requests and keeps an append-only audit trail of every change.

Run "custodian serve" for the admin API and scheduled cleanup, or use the
subcommands for one-shot administration against the same store.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file path (defaults plus CUSTODIAN_* environment when empty)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format (text, json)")
	cmd.PersistentFlags().StringVar(&opts.actor, "actor", "", "actor recorded in audit entries (system when empty)")
	cmd.PersistentFlags().StringVar(&opts.actorType, "actor-type", "admin", "actor type recorded with --actor")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newCleanupCmd(opts),
		newPolicyCmd(opts),
		newRequestCmd(opts),
		newAuditCmd(opts),
		newReportCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(args []string) int {
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

// loadConfig reads the configuration and installs the logger. Logs go to
// logOut so that command results on stdout stay machine readable.
func (o *globalOptions) loadConfig(logOut io.Writer) (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(o.cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("config", err.Error())
	}
	if o.logLevel != "" {
		cfg.Telemetry.Logging.Level = o.logLevel
	}
	logCfg := logging.FromConfig(cfg.Telemetry.Logging)
	logCfg.Writer = logOut
	if _, err := logging.Setup(logCfg); err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return cfg, nil
}

// openRuntime builds the runtime for a one-shot command. The scheduler and
// seed watcher are not started.
func (o *globalOptions) openRuntime(cmd *cobra.Command) (*server.Runtime, error) {
	cfg, err := o.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return server.NewRuntime(cmd.Context(), cfg, Version)
}

// actorContext returns the command context carrying the --actor identity.
func (o *globalOptions) actorContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if o.actor != "" {
		ctx = logging.WithActor(ctx, o.actor, o.actorType)
	}
	return ctx
}

// print writes data in the --output format.
func (o *globalOptions) print(cmd *cobra.Command, data any) error {
	format, err := cli.ParseOutputFormat(o.output)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), data)
}

// withRuntime opens the runtime, runs fn and closes the runtime. Errors are
// wrapped with the command path.
func (o *globalOptions) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *server.Runtime) error) error {
	if _, err := cli.ParseOutputFormat(o.output); err != nil {
		return err
	}
	rt, err := o.openRuntime(cmd)
	if err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}
	defer func() { _ = rt.Close() }()
	return cli.NewCommandError(cmd.CommandPath(), fn(o.actorContext(cmd), rt))
}
