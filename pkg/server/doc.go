// Package server wires a Custodian process together.
//
// NewRuntime opens storage and builds the policy registry, the detection
// service, the deletion request workflow, the retention enforcer and its
// scheduler, the audit log and the report generator from one
// config.Config. Startup seeding (built-in defaults, then the optional seed
// file) runs before NewRuntime returns.
//
// Server serves the admin API for a runtime and runs its background jobs:
//
//	rt, err := server.NewRuntime(ctx, cfg, version)
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	return server.New(rt).Start(ctx) // blocks until ctx is cancelled
package server
