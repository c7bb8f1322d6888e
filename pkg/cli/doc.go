// Package cli holds the helpers shared by the custodian subcommands: result
// formatting (text tables or JSON), the error types and exit codes, and
// signal handling.
//
//	ctx, stop := cli.SignalContext(context.Background())
//	defer stop()
//	if err := run(ctx); err != nil {
//	    os.Exit(cli.ExitCode(err))
//	}
package cli
