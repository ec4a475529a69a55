package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/evaluator"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/lifecycle"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/providers"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/storage"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// outcome is the per-resource result of one pass.
type outcome struct {
	skipped bool
	failure string
	events  []types.AuditEvent
	// line is the resource's entry in the pass summary.
	line string
}

// processResource evaluates one resource and commits the resulting lifecycle
// step. Metric fetch and owner resolution happen once; the read-step-write
// cycle retries on version conflicts with fresh reads.
func (o *Orchestrator) processResource(ctx context.Context, desc types.ResourceDescriptor, now time.Time) outcome {
	log := o.logger.WithContext(ctx)

	// Too-young resources have not had a fair observation window yet.
	if !desc.CreatedAt.IsZero() && desc.Age(now) < o.cfg.EvaluationWindow {
		log.Debug().
			Str("resource_id", desc.ID).
			Dur("age", desc.Age(now)).
			Msg("resource younger than evaluation window, skipping")
		return outcome{
			skipped: true,
			line:    fmt.Sprintf("%s: skipped, age %s under the evaluation window", desc.ID, desc.Age(now).Round(time.Hour)),
		}
	}

	samples, err := retryExternal(ctx, o.cfg, func() ([]types.MetricSample, error) {
		return o.deps.Metrics.Query(ctx, providers.MetricQuery{
			Resource: desc,
			Window:   o.cfg.EvaluationWindow,
			End:      now,
		})
	})
	if err != nil {
		return outcome{failure: fmt.Sprintf("metric fetch failed: %v", err)}
	}

	eval := evaluator.Evaluate(desc.Type, samples)
	o.countVerdict(ctx, desc.Type, eval.Verdict)

	owner := o.deps.Resolver.Resolve(ctx, desc)

	for attempt := 0; ; attempt++ {
		res, expected, err := o.step(ctx, desc, eval, owner, now)
		if err != nil {
			return outcome{failure: err.Error()}
		}
		line := summaryLine(desc, eval, owner, res.Record.State)
		if !res.Dirty {
			return outcome{line: line}
		}

		err = o.commit(ctx, res, expected)
		if err == nil {
			o.dispatchNotifications(ctx, res)
			return outcome{events: res.Events, line: line}
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return outcome{failure: fmt.Sprintf("write failed: %v", err)}
		}

		if o.deps.Telemetry != nil {
			o.deps.Telemetry.VersionConflicts.Add(ctx, 1)
		}
		if attempt >= o.cfg.MaxConflictRetries {
			return outcome{failure: fmt.Sprintf("gave up after %d version conflicts", attempt+1)}
		}
		log.Debug().
			Str("resource_id", desc.ID).
			Int("attempt", attempt+1).
			Msg("version conflict, re-reading record")
	}
}

// step reads the current record and runs the lifecycle machine over it.
// Returns the step result and the version the subsequent write must expect.
func (o *Orchestrator) step(ctx context.Context, desc types.ResourceDescriptor, eval evaluator.Evaluation, owner types.Owner, now time.Time) (lifecycle.Result, int64, error) {
	var (
		record   *types.ResourceRecord
		expected int64
	)

	stored, err := o.deps.Store.Get(ctx, desc.ID)
	switch {
	case err == nil:
		record = &stored
		expected = stored.Version
	case errors.Is(err, storage.ErrNotFound):
		// First sighting; the write will be a create.
	default:
		return lifecycle.Result{}, 0, fmt.Errorf("failed to read record: %w", err)
	}

	res := lifecycle.Step(o.cfg.Lifecycle, lifecycle.Input{
		Record:     record,
		Descriptor: desc,
		Evaluation: eval,
		Owner:      owner,
		Now:        now,
	})
	return res, expected, nil
}

// commit dispatches scheduling intents, persists the record, and journals
// the transition. Schedule creation happens before the write so the token
// lands in the same record version; a conflicting write cancels the schedule
// it just created so the retry starts clean.
func (o *Orchestrator) commit(ctx context.Context, res lifecycle.Result, expected int64) error {
	var created string

	for _, intent := range res.Intents {
		switch intent.Kind {
		case lifecycle.IntentSchedule:
			token, err := o.deps.Scheduler.Schedule(ctx, res.Record.ID, intent.FireAt)
			if err != nil {
				return fmt.Errorf("failed to schedule deletion: %w", err)
			}
			res.Record.ScheduleToken = token
			created = token

		case lifecycle.IntentCancelSchedule:
			if err := o.deps.Scheduler.Cancel(ctx, intent.Token); err != nil {
				// A dangling schedule is harmless: the safety gate re-checks
				// at fire time. Log and move on.
				o.logger.WithContext(ctx).Warn().
					Err(err).
					Str("resource_id", res.Record.ID).
					Msg("failed to cancel deletion schedule")
			}
		}
	}

	if err := res.Record.CheckInvariants(); err != nil {
		return err
	}

	if err := o.deps.Store.ConditionalPut(ctx, res.Record, expected); err != nil {
		if created != "" && errors.Is(err, storage.ErrVersionConflict) {
			if cancelErr := o.deps.Scheduler.Cancel(ctx, created); cancelErr != nil {
				o.logger.WithContext(ctx).Warn().
					Err(cancelErr).
					Str("resource_id", res.Record.ID).
					Msg("failed to cancel schedule after write conflict")
			}
		}
		return err
	}

	if o.deps.Audit != nil {
		for _, event := range res.Events {
			if err := o.deps.Audit.Append(event); err != nil {
				o.logger.WithContext(ctx).Error().
					Err(err).
					Str("resource_id", res.Record.ID).
					Msg("failed to journal audit event")
			}
		}
	}
	return nil
}

// dispatchNotifications delivers owner notices after the record is durably
// written. Failures are logged, never propagated.
func (o *Orchestrator) dispatchNotifications(ctx context.Context, res lifecycle.Result) {
	if o.deps.Notifier == nil {
		return
	}

	for _, intent := range res.Intents {
		if intent.Kind != lifecycle.IntentNotifyOwner {
			continue
		}

		n := providers.Notification{
			Owner:      res.Record.Owner,
			ResourceID: res.Record.ID,
			Region:     res.Record.Region,
			State:      res.Record.State,
			Reason:     intent.Reason,
		}
		if !intent.FireAt.IsZero() {
			fireAt := intent.FireAt
			n.DeletionAt = &fireAt
		}

		if err := o.deps.Notifier.NotifyOwner(ctx, n); err != nil {
			o.logger.WithContext(ctx).Warn().
				Err(err).
				Str("resource_id", res.Record.ID).
				Str("owner", res.Record.Owner.Identity).
				Msg("owner notification failed")
		}
	}
}

// summaryLine renders one resource's entry for the operator summary.
func summaryLine(desc types.ResourceDescriptor, eval evaluator.Evaluation, owner types.Owner, state types.LifecycleState) string {
	who := owner.Identity
	if owner.Unknown() {
		who = "unknown"
	}
	return fmt.Sprintf("%s: verdict=%s state=%s owner=%s (%s)",
		desc.ID, eval.Verdict, state, who, eval.Reason)
}

func (o *Orchestrator) countVerdict(ctx context.Context, rt types.ResourceType, v types.Verdict) {
	if o.deps.Telemetry == nil {
		return
	}
	o.deps.Telemetry.Verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", string(rt)),
		attribute.String("verdict", string(v)),
	))
}

// retryExternal retries an external call with exponential backoff. Context
// cancellation stops the retry loop.
func retryExternal[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if cfg.RetryInitialInterval > 0 {
		b.InitialInterval = cfg.RetryInitialInterval
	}

	tries := cfg.RetryMaxAttempts
	if tries < 1 {
		tries = 1
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(tries)),
	)
}
