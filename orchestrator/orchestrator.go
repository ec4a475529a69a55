// Package orchestrator drives scan passes: it enumerates resources per
// region and type, evaluates each one, steps the lifecycle machine, and
// persists the outcome with optimistic writes. Passes over distinct
// region/type pairs run concurrently under a bound; within one pass,
// per-resource work runs under a second bound so the metric source is not
// hammered.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/journal"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/lifecycle"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/ownership"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/providers"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/storage"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/telemetry"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// Config carries the orchestrator's knobs.
type Config struct {
	Regions []string
	// Types defaults to every audited type when empty.
	Types []types.ResourceType

	// EvaluationWindow is how far back metrics are fetched. Resources
	// younger than the window are skipped as too young to judge fairly.
	EvaluationWindow time.Duration

	MaxConcurrentPasses    int
	MaxConcurrentResources int

	Lifecycle lifecycle.Config

	// MaxConflictRetries bounds re-evaluation after an optimistic-write
	// conflict.
	MaxConflictRetries int

	// RetryMaxAttempts and RetryInitialInterval bound retries of external
	// calls (inventory, metrics).
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
}

// Deps are the orchestrator's external collaborators.
type Deps struct {
	Store     storage.RecordStore
	Inventory providers.InventorySource
	Metrics   providers.MetricSource
	Resolver  *ownership.Resolver
	Notifier  providers.Notifier
	Scheduler providers.Scheduler
	Audit     journal.Sink
	Telemetry *telemetry.EngineMetrics
}

// Orchestrator runs scan passes.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *telemetry.Logger
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if len(cfg.Types) == 0 {
		cfg.Types = types.AllResourceTypes
	}
	if cfg.MaxConcurrentPasses < 1 {
		cfg.MaxConcurrentPasses = 1
	}
	if cfg.MaxConcurrentResources < 1 {
		cfg.MaxConcurrentResources = 1
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: telemetry.NewLogger("orchestrator"),
	}
}

// RunResult aggregates one full scan across all regions and types.
type RunResult struct {
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration"`
	Passes    []providers.PassSummary `json:"passes"`
	Failures  []string                `json:"failures,omitempty"`
}

// Run executes one scan pass per region/type pair. A pass failure (for
// example an inventory listing error) is recorded and does not abort the
// other passes.
func (o *Orchestrator) Run(ctx context.Context, now time.Time) (*RunResult, error) {
	result := &RunResult{StartedAt: now}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrentPasses)

	for _, region := range o.cfg.Regions {
		for _, rt := range o.cfg.Types {
			region, rt := region, rt
			g.Go(func() error {
				summary, err := o.runPass(gctx, region, rt, now)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failures = append(result.Failures,
						fmt.Sprintf("%s/%s: %v", region, rt, err))
					return nil
				}
				result.Passes = append(result.Passes, *summary)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(now)
	o.logger.WithContext(ctx).Info().
		Int("passes", len(result.Passes)).
		Int("failed_passes", len(result.Failures)).
		Dur("duration", result.Duration).
		Msg("scan run complete")
	return result, nil
}

// runPass scans one region/type pair: list, then evaluate each resource
// concurrently. Per-resource failures are isolated in the summary.
func (o *Orchestrator) runPass(ctx context.Context, region string, rt types.ResourceType, now time.Time) (*providers.PassSummary, error) {
	passStart := time.Now()

	descriptors, err := retryExternal(ctx, o.cfg, func() ([]types.ResourceDescriptor, error) {
		return o.deps.Inventory.ListResources(ctx, region, rt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s resources in %s: %w", rt, region, err)
	}

	summary := &providers.PassSummary{
		Region:       region,
		ResourceType: rt,
		StartedAt:    now,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrentResources)

	for _, desc := range descriptors {
		desc := desc
		g.Go(func() error {
			out := o.processResource(gctx, desc, now)

			mu.Lock()
			defer mu.Unlock()
			summary.Scanned++
			if out.skipped {
				summary.Skipped++
			}
			if out.failure != "" {
				summary.Failures = append(summary.Failures,
					fmt.Sprintf("%s: %s", desc.ID, out.failure))
			}
			summary.Transitions = append(summary.Transitions, out.events...)
			if out.line != "" {
				summary.Lines = append(summary.Lines, out.line)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.Duration = time.Since(passStart)
	o.recordPassMetrics(ctx, summary)

	if o.deps.Notifier != nil {
		if err := o.deps.Notifier.PublishSummary(ctx, *summary); err != nil {
			o.logger.WithContext(ctx).Warn().
				Err(err).
				Str("region", region).
				Str("resource_type", string(rt)).
				Msg("failed to publish pass summary")
		}
	}

	o.logger.WithContext(ctx).Info().
		Str("region", region).
		Str("resource_type", string(rt)).
		Int("scanned", summary.Scanned).
		Int("skipped", summary.Skipped).
		Int("transitions", len(summary.Transitions)).
		Int("failures", len(summary.Failures)).
		Dur("duration", summary.Duration).
		Msg("pass complete")
	return summary, nil
}

func (o *Orchestrator) recordPassMetrics(ctx context.Context, summary *providers.PassSummary) {
	if o.deps.Telemetry == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("region", summary.Region),
		attribute.String("resource_type", string(summary.ResourceType)),
	)
	o.deps.Telemetry.ResourcesScanned.Add(ctx, int64(summary.Scanned), attrs)
	o.deps.Telemetry.PassDuration.Record(ctx, summary.Duration.Seconds(), attrs)

	for _, event := range summary.Transitions {
		o.deps.Telemetry.Transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(event.From)),
			attribute.String("to", string(event.To)),
		))
	}
}
