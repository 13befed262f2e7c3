// Package health runs dependency probes behind Kubernetes-style
// liveness and readiness endpoints.
//
// Liveness never probes anything: a process that answers is alive.
// Readiness runs every registered probe concurrently under a shared
// timeout and answers 503 while any dependency fails, so rollouts hold
// traffic until storage backends respond.
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterAll(eng.HealthChecks())
//	health.Mount(mux, &cfg.Telemetry.Health, checker, health.BuildInfo{
//		Version: version,
//		Commit:  commit,
//	})
package health
