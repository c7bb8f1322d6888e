// Package health implements the liveness and readiness probes of the admin
// server.
//
// Liveness answers as long as the process can serve HTTP. Readiness runs
// every registered check, typically a storage ping, concurrently and with a
// per-check timeout:
//
//	checker := health.New(2*time.Second, version)
//	checker.RegisterPinger("storage", store)
//	router.Get("/healthz", checker.LivenessHandler())
//	router.Get("/readyz", checker.ReadinessHandler())
package health
