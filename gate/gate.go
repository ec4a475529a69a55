// Package gate implements the deletion safety gate: the mandatory
// re-verification performed immediately before physical deletion. Schedules
// are created during scan passes, but metrics, tags and the record itself may
// all have changed during the grace period, so the gate re-checks everything
// at fire time and aborts on any disagreement. The gate, not the scheduler,
// is the authoritative cancellation check.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/evaluator"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/journal"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/providers"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/storage"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/telemetry"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// Config carries the gate's knobs.
type Config struct {
	// EvaluationWindow is how far back the re-check fetches metrics.
	EvaluationWindow time.Duration
	// MaxDeleteAttempts is how many failed deletion attempts are tolerated
	// before the record is surfaced to operations.
	MaxDeleteAttempts int
	// MaxConflictRetries bounds re-running the safety check after a
	// concurrent write touched the record mid-check.
	MaxConflictRetries int
}

// Deps are the external collaborators the gate talks to.
type Deps struct {
	Store     storage.RecordStore
	Inventory providers.InventorySource
	Metrics   providers.MetricSource
	Deleter   providers.DeletionExecutor
	Notifier  providers.Notifier
	Audit     journal.Sink
	Telemetry *telemetry.EngineMetrics
}

// Gate re-verifies and executes scheduled deletions.
type Gate struct {
	deps   Deps
	cfg    Config
	logger *telemetry.Logger
}

// New creates a safety gate.
func New(deps Deps, cfg Config) *Gate {
	return &Gate{
		deps:   deps,
		cfg:    cfg,
		logger: telemetry.NewLogger("gate"),
	}
}

// Outcome says what the gate did with one due record.
type Outcome string

const (
	OutcomeDeleted     Outcome = "deleted"
	OutcomeReflagged   Outcome = "reflagged"
	OutcomeExempted    Outcome = "exempted"
	OutcomeAlreadyGone Outcome = "already_gone"
	// OutcomeSkipped means the record was no longer an unchanged
	// PendingDeletion at fire time, typically because a concurrent scan
	// cancelled it. Nothing to do; the timer fired spuriously.
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// SweepResult summarizes one sweep over due records.
type SweepResult struct {
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Due       int                `json:"due"`
	Outcomes  map[Outcome]int    `json:"outcomes"`
	Failures  []string           `json:"failures,omitempty"`
	Events    []types.AuditEvent `json:"events,omitempty"`
}

// Sweep re-checks every record whose schedule has come due. Per-record
// failures are isolated; one resource never aborts the sweep for others.
func (g *Gate) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{
		StartedAt: now,
		Outcomes:  make(map[Outcome]int),
	}

	due, err := g.deps.Store.ListDueDeletions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due deletions: %w", err)
	}
	result.Due = len(due)

	for _, rec := range due {
		outcome, event, err := g.Fire(ctx, rec.ID, now)
		if err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", rec.ID, err))
			result.Outcomes[OutcomeFailed]++
			continue
		}
		result.Outcomes[outcome]++
		g.countOutcome(ctx, outcome)
		if event != nil {
			result.Events = append(result.Events, *event)
		}
	}

	result.Duration = time.Since(now)
	g.logger.WithContext(ctx).Info().
		Int("due", result.Due).
		Int("deleted", result.Outcomes[OutcomeDeleted]).
		Int("reflagged", result.Outcomes[OutcomeReflagged]).
		Int("failed", result.Outcomes[OutcomeFailed]).
		Dur("duration", result.Duration).
		Msg("sweep complete")

	return result, nil
}

func (g *Gate) countOutcome(ctx context.Context, outcome Outcome) {
	if g.deps.Telemetry == nil {
		return
	}
	switch outcome {
	case OutcomeDeleted, OutcomeAlreadyGone:
		g.deps.Telemetry.Deletions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(outcome)),
		))
	case OutcomeReflagged, OutcomeExempted:
		g.deps.Telemetry.GateAborts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(outcome)),
		))
	}
}

// Fire runs the full safety check for one resource and deletes it only if
// every check agrees. A version conflict during the commit means a concurrent
// scan touched the record; the whole check re-runs against the fresh record,
// a bounded number of times.
func (g *Gate) Fire(ctx context.Context, resourceID string, now time.Time) (Outcome, *types.AuditEvent, error) {
	for attempt := 0; ; attempt++ {
		outcome, event, err := g.fireOnce(ctx, resourceID, now)
		if err == nil || !errors.Is(err, storage.ErrVersionConflict) {
			return outcome, event, err
		}

		if g.deps.Telemetry != nil {
			g.deps.Telemetry.VersionConflicts.Add(ctx, 1)
		}
		if attempt >= g.cfg.MaxConflictRetries {
			return OutcomeFailed, nil, fmt.Errorf("gave up after %d version conflicts: %w", attempt+1, err)
		}
		g.logger.WithContext(ctx).Debug().
			Str("resource_id", resourceID).
			Int("attempt", attempt+1).
			Msg("version conflict during safety check, re-reading record")
	}
}

// fireOnce performs one full check over the current record. Any disagreement
// aborts the deletion and re-flags; deletion is never optimistic.
func (g *Gate) fireOnce(ctx context.Context, resourceID string, now time.Time) (Outcome, *types.AuditEvent, error) {
	rec, err := g.deps.Store.Get(ctx, resourceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return OutcomeSkipped, nil, nil
		}
		return OutcomeFailed, nil, err
	}

	// Guard against a race with a concurrent cancellation: the record must
	// still be PendingDeletion with its schedule due and unchanged.
	if !rec.DueForDeletion(now) {
		g.logger.WithContext(ctx).Debug().
			Str("resource_id", resourceID).
			Str("state", string(rec.State)).
			Msg("schedule fired for a record no longer pending deletion")
		return OutcomeSkipped, nil, nil
	}

	desc, err := g.deps.Inventory.DescribeResource(ctx, rec.Region, rec.Type, rec.ID)
	if err != nil {
		return OutcomeFailed, nil, fmt.Errorf("failed to re-describe resource: %w", err)
	}
	if desc == nil {
		event, err := g.markDeleted(ctx, rec, "resource already gone at fire time", now)
		if err != nil {
			return OutcomeFailed, nil, err
		}
		return OutcomeAlreadyGone, event, nil
	}

	if types.IsExempt(desc.Tags) {
		event, err := g.exempt(ctx, rec, desc, now)
		if err != nil {
			return OutcomeFailed, nil, err
		}
		return OutcomeExempted, event, nil
	}

	samples, err := g.deps.Metrics.Query(ctx, providers.MetricQuery{
		Resource: *desc,
		Window:   g.cfg.EvaluationWindow,
		End:      now,
	})
	if err != nil {
		return OutcomeFailed, nil, fmt.Errorf("failed to re-fetch metrics: %w", err)
	}

	eval := evaluator.Evaluate(rec.Type, samples)
	if eval.Verdict != types.VerdictIdle {
		event, err := g.reflag(ctx, rec, desc, eval, now)
		if err != nil {
			return OutcomeFailed, nil, err
		}
		return OutcomeReflagged, event, nil
	}

	return g.delete(ctx, rec, now)
}

// delete performs the physical deletion and records the terminal transition.
func (g *Gate) delete(ctx context.Context, rec types.ResourceRecord, now time.Time) (Outcome, *types.AuditEvent, error) {
	token := confirmationToken(rec)

	if err := g.deps.Deleter.Delete(ctx, rec.Type, rec.Region, rec.ID, token); err != nil {
		return g.recordDeleteFailure(ctx, rec, now, err)
	}

	event, err := g.markDeleted(ctx, rec, "idle re-check passed, resource deleted", now)
	if err != nil {
		return OutcomeFailed, nil, err
	}

	g.notify(ctx, providers.Notification{
		Owner:      rec.Owner,
		ResourceID: rec.ID,
		Region:     rec.Region,
		State:      types.StateDeleted,
		Reason:     "idle throughout the grace period",
	})
	return OutcomeDeleted, event, nil
}

// recordDeleteFailure keeps the record in PendingDeletion, counts the
// attempt, and surfaces to operations once the attempt cap is reached. The
// failure is never silently retried forever.
func (g *Gate) recordDeleteFailure(ctx context.Context, rec types.ResourceRecord, now time.Time, cause error) (Outcome, *types.AuditEvent, error) {
	expected := rec.Version
	rec.DeleteAttempts++

	if err := g.put(ctx, rec, expected); err != nil {
		return OutcomeFailed, nil, fmt.Errorf("deletion failed (%v) and attempt count not persisted: %w", cause, err)
	}

	if rec.DeleteAttempts >= g.cfg.MaxDeleteAttempts {
		g.notify(ctx, providers.Notification{
			Owner:      types.OwnerUnknown, // routes to the operations channel
			ResourceID: rec.ID,
			Region:     rec.Region,
			State:      rec.State,
			Reason:     fmt.Sprintf("deletion failed %d times: %v", rec.DeleteAttempts, cause),
		})
	}

	return OutcomeFailed, nil, fmt.Errorf("deletion execution failed (attempt %d): %w", rec.DeleteAttempts, cause)
}

// reflag aborts the deletion and sends the record back to Flagged.
func (g *Gate) reflag(ctx context.Context, rec types.ResourceRecord, desc *types.ResourceDescriptor, eval evaluator.Evaluation, now time.Time) (*types.AuditEvent, error) {
	expected := rec.Version
	from := rec.State

	rec.Tags = desc.Tags
	rec.State = types.StateFlagged
	rec.ScheduledDeletionAt = nil
	rec.ScheduleToken = ""
	rec.IdleStreak = 0
	rec.LastVerdict = types.VerdictRecord{Verdict: eval.Verdict, Reason: eval.Reason, ObservedAt: now}

	event := &types.AuditEvent{
		ResourceID: rec.ID,
		From:       from,
		To:         types.StateFlagged,
		Reason:     "safety gate disagreement: " + eval.Reason,
		Timestamp:  now,
	}
	if err := g.commit(ctx, rec, expected, event); err != nil {
		return nil, err
	}
	return event, nil
}

// exempt honors an exemption tag observed at fire time. Cancellation always
// wins over the timer.
func (g *Gate) exempt(ctx context.Context, rec types.ResourceRecord, desc *types.ResourceDescriptor, now time.Time) (*types.AuditEvent, error) {
	expected := rec.Version
	from := rec.State

	rec.Tags = desc.Tags
	rec.State = types.StateExempted
	rec.ScheduledDeletionAt = nil
	rec.ScheduleToken = ""
	rec.IdleStreak = 0

	event := &types.AuditEvent{
		ResourceID: rec.ID,
		From:       from,
		To:         types.StateExempted,
		Reason:     "exemption tag present at fire time",
		Timestamp:  now,
	}
	if err := g.commit(ctx, rec, expected, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (g *Gate) markDeleted(ctx context.Context, rec types.ResourceRecord, reason string, now time.Time) (*types.AuditEvent, error) {
	expected := rec.Version
	from := rec.State

	rec.State = types.StateDeleted
	rec.ScheduledDeletionAt = nil
	rec.ScheduleToken = ""
	rec.IdleStreak = 0

	event := &types.AuditEvent{
		ResourceID: rec.ID,
		From:       from,
		To:         types.StateDeleted,
		Reason:     reason,
		Timestamp:  now,
	}
	if err := g.commit(ctx, rec, expected, event); err != nil {
		return nil, err
	}
	return event, nil
}

// commit persists the transition and journals its audit event. The
// conditional write comes first: if a concurrent writer won, no event is
// emitted for the losing transition.
func (g *Gate) commit(ctx context.Context, rec types.ResourceRecord, expectedVersion int64, event *types.AuditEvent) error {
	if err := g.put(ctx, rec, expectedVersion); err != nil {
		return err
	}
	if g.deps.Audit != nil {
		if err := g.deps.Audit.Append(*event); err != nil {
			g.logger.WithContext(ctx).Error().
				Err(err).
				Str("resource_id", rec.ID).
				Msg("failed to journal audit event")
		}
	}
	return nil
}

func (g *Gate) put(ctx context.Context, rec types.ResourceRecord, expectedVersion int64) error {
	if err := rec.CheckInvariants(); err != nil {
		return err
	}
	return g.deps.Store.ConditionalPut(ctx, rec, expectedVersion)
}

// notify is fire-and-forget: delivery failure never rolls back a transition.
func (g *Gate) notify(ctx context.Context, n providers.Notification) {
	if g.deps.Notifier == nil {
		return
	}
	if err := g.deps.Notifier.NotifyOwner(ctx, n); err != nil {
		g.logger.WithContext(ctx).Warn().
			Err(err).
			Str("resource_id", n.ResourceID).
			Msg("owner notification failed")
	}
}

func confirmationToken(rec types.ResourceRecord) string {
	return fmt.Sprintf("%s@%d", rec.ID, rec.Version)
}
