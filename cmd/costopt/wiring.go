package main

import (
	"context"
	"fmt"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/config"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/gate"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/journal"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/lifecycle"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/orchestrator"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/ownership"
	awsprov "github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/providers/aws"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/storage"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/telemetry"
)

// engine bundles the wired components one command needs.
type engine struct {
	cfg     *config.Config
	store   storage.RecordStore
	journal *journal.Journal
	orch    *orchestrator.Orchestrator
	gate    *gate.Gate

	shutdownTelemetry func(context.Context) error
}

func (e *engine) Close() error {
	var err error
	if e.journal != nil {
		err = e.journal.Close()
	}
	if e.store != nil {
		if closeErr := e.store.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	if e.shutdownTelemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := e.shutdownTelemetry(shutdownCtx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}
	return err
}

// buildEngine wires the full engine from the loaded config. Instruments bind
// to whatever meter provider is installed, so OTEL setup (when wanted) must
// happen first.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	base, err := awsprov.LoadBaseConfig(ctx)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, base)
	if err != nil {
		return nil, err
	}

	jr, err := journal.Open(cfg.Journal.Dir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// Schedules and notifications are managed from the first configured
	// region; inventory and metric calls go to each resource's own region.
	homeRegion := cfg.Regions[0]

	inventory := awsprov.NewInventory(base)
	metrics := awsprov.NewMetrics(base)
	resolver := ownership.NewResolver(awsprov.NewCreationEvents(base))
	notifier := awsprov.NewNotifier(base, homeRegion, awsprov.NotifierConfig{
		SummaryTopicARN:    cfg.Notify.SummaryTopicARN,
		Sender:             cfg.Notify.Sender,
		OpsFallbackAddress: cfg.Notify.OpsFallbackAddress,
	})
	sched := awsprov.NewDeletionScheduler(base, homeRegion, awsprov.SchedulerConfig{
		TargetARN: cfg.Scheduler.TargetARN,
		RoleARN:   cfg.Scheduler.RoleARN,
		GroupName: cfg.Scheduler.GroupName,
	})
	deleter := awsprov.NewDeleter(base)

	engineMetrics, err := telemetry.InitEngineMetrics(telemetry.Meter)
	if err != nil {
		_ = jr.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	orch := orchestrator.New(orchestrator.Deps{
		Store:     store,
		Inventory: inventory,
		Metrics:   metrics,
		Resolver:  resolver,
		Notifier:  notifier,
		Scheduler: sched,
		Audit:     jr,
		Telemetry: engineMetrics,
	}, orchestrator.Config{
		Regions:                cfg.Regions,
		EvaluationWindow:       cfg.Scan.EvaluationWindow,
		MaxConcurrentPasses:    cfg.Scan.MaxConcurrentPasses,
		MaxConcurrentResources: cfg.Scan.MaxConcurrentResources,
		Lifecycle: lifecycle.Config{
			GracePeriod:          cfg.Lifecycle.GracePeriod,
			IdlePassesToSchedule: cfg.Lifecycle.IdlePassesToSchedule,
		},
		MaxConflictRetries:   cfg.Lifecycle.MaxConflictRetries,
		RetryMaxAttempts:     cfg.Retry.MaxAttempts,
		RetryInitialInterval: cfg.Retry.InitialInterval,
	})

	g := gate.New(gate.Deps{
		Store:     store,
		Inventory: inventory,
		Metrics:   metrics,
		Deleter:   deleter,
		Notifier:  notifier,
		Audit:     jr,
		Telemetry: engineMetrics,
	}, gate.Config{
		EvaluationWindow:   cfg.Scan.EvaluationWindow,
		MaxDeleteAttempts:  cfg.Lifecycle.MaxDeleteAttempts,
		MaxConflictRetries: cfg.Lifecycle.MaxConflictRetries,
	})

	return &engine{
		cfg:     cfg,
		store:   store,
		journal: jr,
		orch:    orch,
		gate:    g,
	}, nil
}

// buildEngineFromFile is the one-shot command path: no OTEL exporters, just
// the engine over the config file.
func buildEngineFromFile(ctx context.Context) (*engine, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return buildEngine(ctx, cfg)
}

func openStore(cfg *config.Config, base awsv2.Config) (storage.RecordStore, error) {
	switch cfg.Store.Backend {
	case "dynamodb":
		region := cfg.Store.Region
		if region == "" {
			region = cfg.Regions[0]
		}
		client := dynamodb.NewFromConfig(base, func(o *dynamodb.Options) { o.Region = region })
		return storage.NewDynamoStore(client, cfg.Store.Table), nil
	default:
		return storage.NewBoltStore(cfg.Store.Path)
	}
}
