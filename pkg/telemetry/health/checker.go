package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Check probes one dependency. It returns nil while the dependency can
// serve and should honor the context deadline.
type Check func(ctx context.Context) error

// Status classifies a probe or an aggregate report.
type Status string

const (
	// StatusOK means the probe passed.
	StatusOK Status = "ok"

	// StatusReady means every registered probe passed.
	StatusReady Status = "ready"

	// StatusDegraded means at least one probe failed.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means one probe failed or timed out.
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Report aggregates probe outcomes for one liveness or readiness pass.
type Report struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Checker runs named dependency probes for the liveness and readiness
// surfaces. Safe for concurrent use.
type Checker struct {
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Check
}

// New creates a checker. Probes that run longer than checkTimeout are
// reported unhealthy; zero applies the 5 second default.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		timeout: checkTimeout,
		checks:  make(map[string]Check),
	}
}

// Register adds a probe under the given name, replacing any existing
// probe with that name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RegisterAll adds every probe in the map. Convenient for wiring the
// engine's probe set in one call.
func (c *Checker) RegisterAll(checks map[string]func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, check := range checks {
		c.checks[name] = Check(check)
	}
}

// Deregister removes the named probe.
func (c *Checker) Deregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Names returns the registered probe names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Liveness reports whether the process is up. It runs no probes; a
// process that can answer is alive.
func (c *Checker) Liveness(ctx context.Context) Report {
	return Report{
		Status:    StatusOK,
		Timestamp: time.Now(),
	}
}

// Readiness runs every registered probe concurrently and aggregates
// the outcomes. Any failing probe degrades the report. With no probes
// registered the report is ready.
func (c *Checker) Readiness(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	report := Report{
		Status:    StatusReady,
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now(),
	}
	if len(checks) == 0 {
		return report
	}

	type outcome struct {
		name   string
		result CheckResult
	}
	results := make(chan outcome, len(checks))

	for name, check := range checks {
		go func(name string, check Check) {
			results <- outcome{name: name, result: c.run(ctx, check)}
		}(name, check)
	}

	for range checks {
		o := <-results
		report.Checks[o.name] = o.result
		if o.result.Status != StatusOK {
			report.Status = StatusDegraded
		}
	}

	return report
}

// run executes one probe under the check timeout. A probe that ignores
// its context keeps running in the background, but the result is
// reported as a timeout.
func (c *Checker) run(ctx context.Context, check Check) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- check(checkCtx)
	}()

	select {
	case err := <-done:
		elapsed := time.Since(start)
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Duration: elapsed}
		}
		return CheckResult{Status: StatusOK, Duration: elapsed}

	case <-checkCtx.Done():
		return CheckResult{
			Status:   StatusUnhealthy,
			Message:  "check timed out",
			Duration: time.Since(start),
		}
	}
}
