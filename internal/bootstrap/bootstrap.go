package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/intake-triage/internal/config"
	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/escalation"
	"github.com/kirillkom/intake-triage/internal/core/ports"
	"github.com/kirillkom/intake-triage/internal/core/risk"
	"github.com/kirillkom/intake-triage/internal/core/safety"
	"github.com/kirillkom/intake-triage/internal/core/usecase"
	"github.com/kirillkom/intake-triage/internal/infrastructure/queue/nats"
	"github.com/kirillkom/intake-triage/internal/infrastructure/repository/memory"
	"github.com/kirillkom/intake-triage/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/intake-triage/internal/infrastructure/resilience"
	"github.com/kirillkom/intake-triage/internal/infrastructure/rulesource/yamlfile"
)

// AssessmentStore reads and writes completed assessments.
type AssessmentStore interface {
	ports.AssessmentReader
	SaveAssessment(ctx context.Context, a *domain.Assessment) error
}

// Options select optional parts of the wiring.
type Options struct {
	Logger *slog.Logger
	// Escalation, Stages and IO receive metrics; any may be nil.
	Escalation usecase.EscalationMetrics
	Stages     usecase.StageMetrics
	IO         resilience.Observer
	// WithoutQueue skips the NATS connection, e.g. for one-shot commands.
	WithoutQueue bool
	// ObserveQueueLag receives the publish-to-consume delay of job events.
	ObserveQueueLag func(time.Duration)
	Resilience      *resilience.Config
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue       *nats.Queue
	Assessments AssessmentStore

	Jobs       *usecase.JobOrchestratorUseCase
	Safety     *usecase.SafetyEvaluationUseCase
	Risk       *usecase.ComputeRiskUseCase
	Escalation *usecase.DetectEscalationUseCase
	Results    *usecase.SaveResultsUseCase
	Rules      *usecase.RuleActivationUseCase
	Readiness  *usecase.ReadinessUseCase

	closeFns []func()
}

type stores struct {
	jobs        ports.JobRepository
	results     ports.ResultRepository
	rules       ports.RuleRepository
	assessments AssessmentStore
	probe       ports.SchemaProbe
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resilienceCfg := resilience.ConfigFromSettings(resilience.Settings{
		MaxAttempts:        cfg.ResilienceRetryMaxAttempts,
		InitialBackoff:     cfg.ResilienceRetryInitialBackoff,
		MaxBackoff:         cfg.ResilienceRetryMaxBackoff,
		BreakerEnabled:     cfg.ResilienceBreakerEnabled,
		BreakerOpenTimeout: cfg.ResilienceBreakerOpenTimeout,
	})
	if opts.Resilience != nil {
		resilienceCfg = *opts.Resilience
	}
	executor := resilience.NewExecutorWithLogger(resilienceCfg, logger)
	executor.SetObserver(opts.IO)

	app := &App{Config: cfg, Logger: logger}

	st, err := app.openStores(ctx, executor)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Assessments = st.assessments

	var queue ports.JobQueue
	if !opts.WithoutQueue {
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: executor,
			Logger:             logger,
			ObserveLag:         opts.ObserveQueueLag,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init job queue: %w", err)
		}
		app.Queue = q
		app.closeFns = append(app.closeFns, q.Close)
		queue = q
	}

	validator, err := safety.NewConfigValidator()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init rule validator: %w", err)
	}

	app.Readiness = usecase.NewReadinessUseCase(st.probe, cfg.ReadinessTTL, logger)
	app.Safety = usecase.NewSafetyEvaluationUseCase(safety.NewEngine(), st.rules, logger)
	app.Risk = usecase.NewComputeRiskUseCase(risk.NewCalculator(nil), cfg.DefaultAlgorithmVersion)
	app.Escalation = usecase.NewDetectEscalationUseCase(escalation.NewDetector(nil), opts.Escalation, logger)
	app.Results = usecase.NewSaveResultsUseCase(st.results, logger)
	app.Rules = usecase.NewRuleActivationUseCase(validator, st.rules, logger)

	app.Jobs = usecase.NewJobOrchestratorUseCase(st.jobs, queue, app.Readiness, logger, usecase.OrchestratorConfig{
		SchemaVersion: cfg.SchemaVersion,
		MaxAttempts:   cfg.JobMaxAttempts,
		ErrorMaxChars: cfg.JobErrorMaxChars,
	})
	app.Jobs.RegisterStage(domain.StageRisk,
		usecase.NewRiskStageHandler(st.assessments, app.Safety, app.Risk, app.Escalation, app.Results))
	app.Jobs.RegisterStage(domain.StageRanking,
		usecase.NewRankingStageHandler(st.assessments, st.results, app.Risk, app.Results))
	if opts.Stages != nil {
		app.Jobs.SetMetrics(opts.Stages)
	}

	if cfg.RulesPath != "" {
		if err := app.SeedRules(ctx, cfg.RulesPath); err != nil {
			app.Close()
			return nil, err
		}
	}
	return app, nil
}

func (a *App) openStores(ctx context.Context, executor *resilience.Executor) (stores, error) {
	switch a.Config.StoreDriver {
	case config.StoreDriverMemory:
		a.Logger.Warn("using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return stores{jobs: store, results: store, rules: store, assessments: store, probe: store}, nil
	case config.StoreDriverPostgres, "":
		db, err := postgres.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return stores{}, fmt.Errorf("open postgres: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return stores{}, fmt.Errorf("ensure schema: %w", err)
		}
		return stores{
			jobs:        postgres.NewJobRepository(db, executor),
			results:     postgres.NewResultRepository(db, executor),
			rules:       postgres.NewRuleRepository(db, executor),
			assessments: postgres.NewAssessmentRepository(db, executor),
			probe:       postgres.NewSchemaProbe(db),
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown store driver %q", a.Config.StoreDriver)
	}
}

// SeedRules activates every rule version found under path. Rejected versions
// are logged and reported together; accepted ones stay active.
func (a *App) SeedRules(ctx context.Context, path string) error {
	reqs, err := yamlfile.Load(path)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	var rejected []error
	for _, req := range reqs {
		res, err := a.Rules.Activate(ctx, req)
		if err != nil {
			return fmt.Errorf("activate rule %s: %w", req.RuleKey, err)
		}
		if !res.OK {
			rejected = append(rejected, fmt.Errorf("rule %s rejected: %v", req.RuleKey, res.Errors))
		}
	}
	a.Logger.Info("rule seed finished", "path", path, "rules", len(reqs), "rejected", len(rejected))
	if len(rejected) > 0 {
		return domain.WrapError(domain.ErrRuleConfigInvalid, "seed rules", errors.Join(rejected...))
	}
	return nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
