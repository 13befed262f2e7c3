package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/audit/export"
	"mercator-hq/ganymede/pkg/audit/recorder"
	"mercator-hq/ganymede/pkg/audit/retention"
	auditstorage "mercator-hq/ganymede/pkg/audit/storage"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/pipeline"
	"mercator-hq/ganymede/pkg/ratelimit"
	"mercator-hq/ganymede/pkg/redact"
	"mercator-hq/ganymede/pkg/registry"
	registrystorage "mercator-hq/ganymede/pkg/registry/storage"
	"mercator-hq/ganymede/pkg/rules"
	"mercator-hq/ganymede/pkg/rules/store"
)

// Options carries optional collaborators for the engine. The zero value
// is usable.
type Options struct {
	// Logger receives engine and component logs.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// Collaborator executes resource provisioning and teardown against
	// the outside world. Defaults to registry.NopCollaborator.
	Collaborator registry.Collaborator

	// StaleHandler receives stale-run notifications from the scheduled
	// pipeline scan, in addition to the recorded advisory decisions.
	StaleHandler pipeline.StaleFunc

	// Clock overrides the time source for the pipeline evaluator, the
	// resource registry, and the rate limiter. Nil means time.Now.
	Clock func() time.Time

	// DecisionObserver receives every decision after the recorder has
	// accepted it, across all components. Metrics collection hooks in
	// here. The observer runs on the recording path and must not block.
	DecisionObserver func(*audit.Decision)

	// JobObserver receives the name and duration of every completed
	// scheduled job run: "resource_sweep", "stale_scan", and
	// "bucket_eviction".
	JobObserver func(job string, d time.Duration)
}

// Stats is a point-in-time snapshot of engine activity.
type Stats struct {
	Pipeline       pipeline.Stats  `json:"pipeline"`
	Registry       registry.Stats  `json:"registry"`
	Limiter        ratelimit.Stats `json:"limiter"`
	RuleSetVersion string          `json:"ruleset_version"`
	RuleCount      int             `json:"rule_count"`
}

// Engine wires the pipeline evaluator, the resource registry, the rate
// limiter, and the error redactor to a shared rule store and a shared
// decision recorder, and exposes the event ingestion surface callers
// interact with. Every admit or deny crossing this surface lands in the
// decision log under the rule set version that produced it.
//
// An Engine is safe for concurrent use. Construct with New, optionally
// Start the background schedules, and Close when done.
type Engine struct {
	config *config.Config
	logger *slog.Logger

	rules    *store.Manager
	recorder *recorder.Recorder
	sink     *decisionTee
	auditDB  audit.Storage
	pruner   *retention.Pruner

	pipeline *pipeline.Evaluator
	registry *registry.Registry
	regDB    registry.Storage
	limiter  *ratelimit.Limiter
	redactor *redact.Redactor
	env      redact.Environment

	cron       *cron.Cron
	now        func() time.Time
	observeJob func(job string, d time.Duration)

	mu          sync.Mutex
	started     bool
	closed      bool
	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
}

// New constructs an engine from configuration. Storage backends are
// opened, the rule source is loaded when one is configured, and all
// four evaluation components are wired to the shared rule registry and
// decision recorder. Nothing periodic runs until Start.
//
// A configured rule path that cannot be loaded fails construction:
// running against an empty rule set because the configured source is
// broken would admit traffic the rules were written to stop. An empty
// rules path skips the initial load, for deployments that publish rule
// sets exclusively through the API.
func New(ctx context.Context, cfg *config.Config, opts *Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts == nil {
		opts = &Options{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	collab := opts.Collaborator
	if collab == nil {
		collab = registry.NopCollaborator{}
	}

	manager, err := store.NewManager(&cfg.Rules, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule manager: %w", err)
	}

	if cfg.Rules.Mode == "git" || cfg.Rules.Path != "" {
		if err := manager.Load(); err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
	} else {
		logger.Info("no rule source configured, starting with an empty rule set")
	}

	auditDB, err := openAuditStorage(ctx, &cfg.Audit)
	if err != nil {
		return nil, err
	}

	rec := recorder.NewRecorder(auditDB, recorderConfig(&cfg.Audit.Recorder))
	sink := &decisionTee{recorder: rec, observe: opts.DecisionObserver}

	pruner := retention.NewPruner(auditDB, &retention.Config{
		RetentionDays:       cfg.Audit.Retention.Days,
		PruneSchedule:       cfg.Audit.Retention.PruneSchedule,
		ArchiveBeforeDelete: cfg.Audit.Retention.ArchiveBeforeDelete,
		ArchivePath:         cfg.Audit.Retention.ArchivePath,
		MaxRecords:          cfg.Audit.Retention.MaxRecords,
	})

	if cfg.Audit.Archive.Enabled {
		archiver, err := export.NewObjectArchiver(&export.ObjectStoreConfig{
			Endpoint:  cfg.Audit.Archive.Endpoint,
			AccessKey: cfg.Audit.Archive.AccessKey,
			SecretKey: cfg.Audit.Archive.SecretKey,
			UseSSL:    cfg.Audit.Archive.UseSSL,
			Region:    cfg.Audit.Archive.Region,
			Bucket:    cfg.Audit.Archive.Bucket,
			Prefix:    cfg.Audit.Archive.Prefix,
		})
		if err != nil {
			auditDB.Close()
			return nil, fmt.Errorf("failed to create archive client: %w", err)
		}
		pruner.SetArchiver(archiver)
	}

	regDB, err := openRegistryStorage(&cfg.Registry.Storage)
	if err != nil {
		auditDB.Close()
		return nil, err
	}

	reg, err := registry.NewRegistry(regDB, collab, manager.Registry(), &cfg.Registry)
	if err != nil {
		auditDB.Close()
		regDB.Close()
		return nil, fmt.Errorf("failed to create resource registry: %w", err)
	}
	reg = reg.WithSink(sink).WithLogger(logger)

	eval := pipeline.NewEvaluator(manager.Registry(), &cfg.Pipeline).
		WithSink(sink).
		WithLogger(logger)
	if opts.StaleHandler != nil {
		eval = eval.WithStaleHandler(opts.StaleHandler)
	}

	limiter := ratelimit.NewLimiter(manager.Registry(), &cfg.Limiter)

	if opts.Clock != nil {
		reg = reg.WithClock(opts.Clock)
		eval = eval.WithClock(opts.Clock)
		limiter = limiter.WithClock(opts.Clock)
	}

	e := &Engine{
		config:     cfg,
		logger:     logger.With("component", "engine"),
		rules:      manager,
		recorder:   rec,
		sink:       sink,
		auditDB:    auditDB,
		pruner:     pruner,
		pipeline:   eval,
		registry:   reg,
		regDB:      regDB,
		limiter:    limiter,
		redactor:   redact.NewRedactor(),
		env:        redact.Environment(cfg.Redaction.Environment),
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger}))),
		now:        now,
		observeJob: opts.JobObserver,
	}

	e.logger.Info("engine constructed",
		"ruleset_version", manager.Version(),
		"rules", manager.Active().Len(),
		"audit_backend", cfg.Audit.Backend,
		"registry_backend", cfg.Registry.Storage.Backend,
		"environment", cfg.Redaction.Environment,
	)

	return e, nil
}

// HandleStageEvent ingests one pipeline event. An event carrying a
// check name records that check's verdict, which may auto-advance the
// run when it completes the stage's check set; a bare event asks the
// engine to advance the run out of its current stage. Unseen run ids
// create the run at the start of the pipeline.
//
// The returned decision is nil when the event only recorded state, such
// as a check verdict that left the stage's check set incomplete.
func (e *Engine) HandleStageEvent(ctx context.Context, ev StageEvent) (*audit.Decision, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	run, err := e.pipeline.StartRun(ctx, ev.RunID)
	if err != nil {
		return nil, err
	}

	if ev.Stage != "" && ev.Stage != run.CurrentStage {
		e.logger.Warn("stage event out of step with run",
			"run_id", ev.RunID,
			"reported_stage", ev.Stage,
			"current_stage", run.CurrentStage,
		)
	}

	if ev.CheckName != "" {
		return e.pipeline.SubmitCheckResult(ctx, ev.RunID, ev.CheckName, ev.Result)
	}
	return e.pipeline.Advance(ctx, ev.RunID)
}

// HandleReviewEvent ingests one reviewer verdict. Approvals count once
// per reviewer and trigger gate evaluation while the run awaits review;
// a rejection sends the run back for rework. Unseen run ids create the
// run at the start of the pipeline.
func (e *Engine) HandleReviewEvent(ctx context.Context, ev ReviewEvent) (*audit.Decision, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	if _, err := e.pipeline.StartRun(ctx, ev.RunID); err != nil {
		return nil, err
	}

	if ev.Rejected {
		return e.pipeline.RecordRejection(ctx, ev.RunID, ev.ReviewerID)
	}
	return e.pipeline.RecordApproval(ctx, ev.RunID, ev.ReviewerID, ev.IsCodeOwner)
}

// HandleResourceEvent drives one resource lifecycle operation. A quota
// refusal on provision surfaces as *registry.QuotaExceededError with
// the deny decision already recorded.
func (e *Engine) HandleResourceEvent(ctx context.Context, ev ResourceEvent) (*registry.EphemeralResource, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	switch ev.Action {
	case ResourceProvision:
		return e.registry.Provision(ctx, ev.Kind, ev.HardExpiryIn)
	case ResourceMarkReady:
		return e.registry.MarkReady(ctx, ev.ResourceID)
	case ResourceHeartbeat:
		if err := e.registry.Heartbeat(ctx, ev.ResourceID); err != nil {
			return nil, err
		}
		return e.registry.Get(ctx, ev.ResourceID)
	}
	return nil, fmt.Errorf("unknown resource action: %q", ev.Action)
}

// HandleRequestAttempt consumes tokens for one attempt at a limited
// action and records the verdict. The limiter itself carries no sink,
// so this is the sole path by which rate limit decisions reach the log.
func (e *Engine) HandleRequestAttempt(ctx context.Context, ev RequestAttempt) (*RequestOutcome, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	cost := ev.Cost
	if cost == 0 {
		cost = 1
	}

	res := e.limiter.TryConsume(ev.ActionName, ev.SubjectID, cost)

	outcome := audit.OutcomeDeny
	if res.Allowed {
		outcome = audit.OutcomeAdmit
	}

	d := &audit.Decision{
		EventID:        uuid.NewString(),
		RuleID:         res.RuleID,
		RuleSetVersion: e.rules.Version(),
		Outcome:        outcome,
		Reason:         res.Reason,
		ActionName:     ev.ActionName,
		SubjectID:      ev.SubjectID,
		Component:      audit.ComponentRateLimit,
		Timestamp:      e.now(),
	}

	if err := e.sink.Record(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}

	return &RequestOutcome{
		Allowed:    res.Allowed,
		RetryAfter: res.RetryAfter,
		Remaining:  res.Remaining,
		Decision:   d,
	}, nil
}

// ListDecisions retrieves decisions from the log. A nil query returns
// the most recent page at the configured default limit; query limits
// are clamped to the configured maximum.
func (e *Engine) ListDecisions(ctx context.Context, q *audit.Query) ([]*audit.Decision, error) {
	qc := audit.Query{}
	if q != nil {
		qc = *q
	}

	if qc.Limit <= 0 {
		qc.Limit = e.config.Audit.Query.DefaultLimit
	}
	if max := e.config.Audit.Query.MaxLimit; max > 0 && qc.Limit > max {
		qc.Limit = max
	}

	return e.auditDB.Query(ctx, &qc)
}

// CountDecisions returns how many decisions match the query filters,
// ignoring pagination.
func (e *Engine) CountDecisions(ctx context.Context, q *audit.Query) (int64, error) {
	qc := audit.Query{}
	if q != nil {
		qc = *q
	}
	return e.auditDB.Count(ctx, &qc)
}

// PublishRuleSet validates the given rules, builds a rule set, and
// atomically makes it the active one. All evaluation started after
// publication sees the new set; evaluation already holding the old set
// finishes against it. Returns the content-derived version identifier.
func (e *Engine) PublishRuleSet(list []rules.Rule) (string, error) {
	set, err := rules.NewRuleSet(list)
	if err != nil {
		return "", err
	}
	if err := e.rules.Publish(set); err != nil {
		return "", err
	}
	return set.Version(), nil
}

// ActiveRuleSet returns the rule set currently in force. Never nil.
func (e *Engine) ActiveRuleSet() *rules.RuleSet {
	return e.rules.Active()
}

// RedactError prepares err for surfacing outside the engine. In
// production environments the error is reduced to a generic public
// message for its category; elsewhere full diagnostic detail is kept.
// A nil err stays nil.
func (e *Engine) RedactError(err error) error {
	return e.redactor.Classify(err, e.env)
}

// AbortRun terminates a pipeline run from the operator surface.
func (e *Engine) AbortRun(ctx context.Context, runID, reason string) (*audit.Decision, error) {
	return e.pipeline.Abort(ctx, runID, reason)
}

// Run returns a snapshot of one pipeline run.
func (e *Engine) Run(ctx context.Context, runID string) (*pipeline.PipelineRun, error) {
	return e.pipeline.Run(ctx, runID)
}

// Runs returns snapshots of all tracked pipeline runs, ordered by id.
func (e *Engine) Runs(ctx context.Context) []*pipeline.PipelineRun {
	return e.pipeline.Runs(ctx)
}

// Resource returns one ephemeral resource by id.
func (e *Engine) Resource(ctx context.Context, id string) (*registry.EphemeralResource, error) {
	return e.registry.Get(ctx, id)
}

// Resources lists ephemeral resources, optionally filtered by state.
func (e *Engine) Resources(ctx context.Context, states ...registry.ResourceState) ([]*registry.EphemeralResource, error) {
	return e.registry.List(ctx, states...)
}

// Rules exposes the rule manager for administrative surfaces: dry-run
// validation, manual reloads, and git source operations.
func (e *Engine) Rules() *store.Manager {
	return e.rules
}

// SweepResources runs one expiry sweep immediately, outside the
// schedule.
func (e *Engine) SweepResources(ctx context.Context) (*registry.SweepResult, error) {
	return e.registry.Sweep(ctx)
}

// ScanStaleRuns runs one stale-run scan immediately, outside the
// schedule.
func (e *Engine) ScanStaleRuns(ctx context.Context) (*pipeline.ScanResult, error) {
	return e.pipeline.ScanStale(ctx)
}

// PruneDecisions applies the retention policy immediately, outside the
// schedule. Returns how many records were removed.
func (e *Engine) PruneDecisions(ctx context.Context) (int64, error) {
	return e.pruner.Prune(ctx)
}

// Stats returns a snapshot of engine activity.
func (e *Engine) Stats(ctx context.Context) Stats {
	return Stats{
		Pipeline:       e.pipeline.Stats(),
		Registry:       e.registry.Stats(ctx),
		Limiter:        e.limiter.Stats(),
		RuleSetVersion: e.rules.Version(),
		RuleCount:      e.rules.Active().Len(),
	}
}

// Start begins the background schedules: the resource expiry sweep, the
// stale-run scan, idle bucket eviction, retention pruning, and, when
// configured, rule source watching. Jobs that are still running when
// their next tick arrives are skipped, never stacked. Start may be
// called once; the engine works without it, losing only the periodic
// behaviors.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine is closed")
	}
	if e.started {
		return fmt.Errorf("engine already started")
	}

	if spec := e.config.Registry.SweepSchedule; spec != "" {
		if _, err := e.cron.AddFunc(spec, func() {
			start := time.Now()
			if _, err := e.registry.Sweep(ctx); err != nil {
				e.logger.Error("resource sweep failed", "error", err)
			}
			e.timeJob("resource_sweep", start)
		}); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
		}
	}

	if spec := e.config.Pipeline.StaleScanSchedule; spec != "" {
		if _, err := e.cron.AddFunc(spec, func() {
			start := time.Now()
			if _, err := e.pipeline.ScanStale(ctx); err != nil {
				e.logger.Error("stale run scan failed", "error", err)
			}
			e.timeJob("stale_scan", start)
		}); err != nil {
			return fmt.Errorf("invalid stale scan schedule %q: %w", spec, err)
		}
	}

	if iv := e.config.Limiter.CleanupInterval; iv > 0 {
		e.cron.Schedule(cron.Every(iv), cron.FuncJob(func() {
			start := time.Now()
			if n := e.limiter.EvictIdle(); n > 0 {
				e.logger.Debug("evicted idle rate limit buckets", "count", n)
			}
			e.timeJob("bucket_eviction", start)
		}))
	}

	if err := e.pruner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start retention pruning: %w", err)
	}

	e.cron.Start()

	if e.config.Rules.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		e.watchCancel = cancel
		e.watchWG.Add(1)
		go func() {
			defer e.watchWG.Done()
			if err := e.rules.Watch(watchCtx); err != nil {
				e.logger.Error("rule watcher stopped", "error", err)
			}
		}()
	}

	e.started = true
	e.logger.Info("engine started",
		"sweep_schedule", e.config.Registry.SweepSchedule,
		"stale_scan_schedule", e.config.Pipeline.StaleScanSchedule,
		"prune_schedule", e.config.Audit.Retention.PruneSchedule,
		"watch", e.config.Rules.Watch,
	)

	return nil
}

// Close stops the schedules, drains the recorder so buffered decisions
// reach storage, and closes both storage backends. Safe to call more
// than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	if e.watchCancel != nil {
		e.watchCancel()
		e.watchCancel = nil
	}
	e.mu.Unlock()

	if started {
		<-e.cron.Stop().Done()
		e.pruner.Stop()
	}
	e.watchWG.Wait()

	var errs []error
	if err := e.rules.Close(); err != nil {
		errs = append(errs, fmt.Errorf("rule manager: %w", err))
	}
	if err := e.recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: %w", err))
	}
	if err := e.auditDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audit storage: %w", err))
	}
	if err := e.regDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("registry storage: %w", err))
	}

	e.logger.Info("engine closed")
	return errors.Join(errs...)
}

// HealthChecks returns named probe functions for the engine's storage
// dependencies. Each returns nil while its backend responds; readiness
// surfaces wire these into their check set.
func (e *Engine) HealthChecks() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"audit_storage": func(ctx context.Context) error {
			_, err := e.auditDB.LastHash(ctx)
			return err
		},
		"registry_storage": func(ctx context.Context) error {
			_, err := e.regDB.CountLive(ctx, "")
			return err
		},
	}
}

// timeJob reports a completed scheduled job run to the configured
// observer.
func (e *Engine) timeJob(job string, start time.Time) {
	if e.observeJob != nil {
		e.observeJob(job, time.Since(start))
	}
}

// decisionTee forwards every decision to an observer once the recorder
// has accepted it. A write failure reaches the caller untouched and
// the observer never fires, so observed counts stay reconcilable with
// the log.
type decisionTee struct {
	recorder *recorder.Recorder
	observe  func(*audit.Decision)
}

func (t *decisionTee) Record(ctx context.Context, d *audit.Decision) error {
	if err := t.recorder.Record(ctx, d); err != nil {
		return err
	}
	if t.observe != nil {
		t.observe(d)
	}
	return nil
}

// openAuditStorage opens the configured decision storage backend.
func openAuditStorage(ctx context.Context, cfg *config.AuditConfig) (audit.Storage, error) {
	switch cfg.Backend {
	case "", "memory":
		return auditstorage.NewMemoryStorage(), nil
	case "sqlite":
		s, err := auditstorage.NewSQLiteStorage(&auditstorage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit storage: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := auditstorage.NewPostgresStorage(ctx, &auditstorage.PostgresConfig{
			URL: postgresURL(&cfg.Postgres),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit storage: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown audit backend: %q", cfg.Backend)
}

// openRegistryStorage opens the configured resource state backend.
func openRegistryStorage(cfg *config.RegistryStorageConfig) (registry.Storage, error) {
	switch cfg.Backend {
	case "", "memory":
		return registrystorage.NewMemoryStorage(), nil
	case "sqlite":
		s, err := registrystorage.NewSQLiteStorageWithConfig(registrystorage.SQLiteStorageConfig{
			DBPath:      cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open registry storage: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown registry backend: %q", cfg.Backend)
}

// postgresURL assembles a connection URL from the discrete config
// fields.
func postgresURL(cfg *config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   cfg.Database,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	if cfg.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", cfg.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// recorderConfig maps the configuration file's recorder section onto
// the recorder's own config.
func recorderConfig(cfg *config.RecorderConfig) *recorder.Config {
	rc := recorder.DefaultConfig()
	rc.Sync = cfg.Mode != "async"
	if cfg.AsyncBuffer > 0 {
		rc.AsyncBuffer = cfg.AsyncBuffer
	}
	if cfg.WriteTimeout > 0 {
		rc.WriteTimeout = cfg.WriteTimeout
	}
	return rc
}

// cronLogger adapts slog to the cron logger interface. Scheduler
// chatter goes to debug; only errors surface at error level.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
