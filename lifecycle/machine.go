// Package lifecycle computes state transitions for audited resources. Step is
// pure: it combines the stored record with this pass's verdict, owner and
// tags, and returns the next record plus side-effect intents. All external
// I/O (persisting, notifying, scheduling) is the caller's job.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/evaluator"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// Config carries the lifecycle knobs. Passed explicitly; never read from
// ambient state.
type Config struct {
	// GracePeriod is the delay between entering PendingDeletion and the
	// deletion attempt.
	GracePeriod time.Duration

	// IdlePassesToSchedule is how many consecutive idle passes it takes to
	// schedule deletion. The pass that flags the resource counts as the
	// first, so the default of 1 flags and schedules in the same pass.
	IdlePassesToSchedule int
}

// DefaultConfig returns the stock lifecycle configuration.
func DefaultConfig() Config {
	return Config{
		GracePeriod:          7 * 24 * time.Hour,
		IdlePassesToSchedule: 1,
	}
}

// Input is everything one evaluation pass knows about a resource.
type Input struct {
	// Record is the stored record, or nil when the resource has never been
	// seen before.
	Record     *types.ResourceRecord
	Descriptor types.ResourceDescriptor
	Evaluation evaluator.Evaluation
	Owner      types.Owner
	Now        time.Time
}

// Result is the outcome of one Step.
type Result struct {
	// Record is the next record. The caller persists it with a conditional
	// write carrying the version read at evaluation start.
	Record types.ResourceRecord

	// Dirty reports whether the record changed and needs persisting.
	Dirty bool

	// Events holds one audit event per state change, in transition order. A
	// single step can both flag a resource and schedule its deletion.
	Events []types.AuditEvent

	Intents []Intent
}

// Transitioned reports whether the step changed the lifecycle state.
func (r Result) Transitioned() bool {
	return len(r.Events) > 0
}

// Step computes the next lifecycle state for one resource.
func Step(cfg Config, in Input) Result {
	rec := currentRecord(in)

	// Deleted is terminal; the record stays for audit only.
	if rec.State == types.StateDeleted {
		return Result{Record: rec}
	}

	// Tags, owner and region are externally sourced; refresh them each pass.
	rec.Tags = in.Descriptor.Tags
	rec.Owner = in.Owner
	rec.Region = in.Descriptor.Region

	var res Result

	exempt := types.IsExempt(in.Descriptor.Tags)
	switch {
	case exempt && rec.State.Cancellable():
		res = exemptResource(rec, in)
	case rec.State == types.StateExempted:
		res = stepExempted(rec, in, exempt)
	default:
		res = stepVerdict(cfg, rec, in)
	}

	res.Record.LastVerdict = types.VerdictRecord{
		Verdict:    in.Evaluation.Verdict,
		Reason:     in.Evaluation.Reason,
		ObservedAt: in.Now,
	}
	return res
}

func currentRecord(in Input) types.ResourceRecord {
	if in.Record == nil {
		return types.NewRecord(in.Descriptor, in.Owner)
	}
	return *in.Record
}

// exemptResource moves a Flagged or PendingDeletion resource to Exempted and
// cancels any pending schedule.
func exemptResource(rec types.ResourceRecord, in Input) Result {
	res := Result{Dirty: true}
	from := rec.State

	if rec.ScheduleToken != "" {
		res.Intents = append(res.Intents, Intent{
			Kind:  IntentCancelSchedule,
			Token: rec.ScheduleToken,
		})
	}

	rec.State = types.StateExempted
	rec.ScheduledDeletionAt = nil
	rec.ScheduleToken = ""
	rec.IdleStreak = 0

	res.Record = rec
	res.Events = append(res.Events, transition(rec.ID, from, rec.State, "exemption tag present", in.Now))
	return res
}

// stepExempted handles a resource currently Exempted. When the tag is
// removed, re-evaluate from the current verdict: idle resources go back to
// Flagged, everything else returns to Active.
func stepExempted(rec types.ResourceRecord, in Input, stillExempt bool) Result {
	res := Result{Dirty: true}

	if stillExempt {
		res.Record = rec
		return res
	}

	from := rec.State
	if in.Evaluation.Verdict == types.VerdictIdle {
		rec.State = types.StateFlagged
		rec.IdleStreak = 0
		res.Record = rec
		res.Events = append(res.Events, transition(rec.ID, from, rec.State, "exemption removed: "+in.Evaluation.Reason, in.Now))
		res.Intents = append(res.Intents, notifyIntent(rec, "idle after exemption removed"))
		return res
	}

	rec.State = types.StateActive
	rec.IdleStreak = 0
	res.Record = rec
	res.Events = append(res.Events, transition(rec.ID, from, rec.State, "exemption removed", in.Now))
	return res
}

// stepVerdict applies the verdict to an Active, Flagged or PendingDeletion
// resource.
func stepVerdict(cfg Config, rec types.ResourceRecord, in Input) Result {
	switch in.Evaluation.Verdict {
	case types.VerdictIndeterminate:
		// Missing data breaks the consecutive-idle streak and never
		// triggers a transition.
		rec.IdleStreak = 0
		return Result{Record: rec, Dirty: true}

	case types.VerdictActive:
		return stepActiveVerdict(rec, in)

	case types.VerdictIdle:
		return stepIdleVerdict(cfg, rec, in)
	}

	rec.IdleStreak = 0
	return Result{Record: rec, Dirty: true}
}

func stepActiveVerdict(rec types.ResourceRecord, in Input) Result {
	res := Result{Dirty: true}

	if !rec.State.Cancellable() {
		res.Record = rec
		return res
	}

	from := rec.State
	if rec.ScheduleToken != "" {
		res.Intents = append(res.Intents, Intent{
			Kind:  IntentCancelSchedule,
			Token: rec.ScheduleToken,
		})
	}

	rec.State = types.StateActive
	rec.ScheduledDeletionAt = nil
	rec.ScheduleToken = ""
	rec.IdleStreak = 0

	res.Record = rec
	res.Events = append(res.Events, transition(rec.ID, from, rec.State, "utilization recovered: "+in.Evaluation.Reason, in.Now))
	return res
}

func stepIdleVerdict(cfg Config, rec types.ResourceRecord, in Input) Result {
	res := Result{Dirty: true}

	switch rec.State {
	case types.StateActive:
		// The flagging pass counts as the first idle pass. With the
		// single-pass threshold, deletion is scheduled right here and
		// fires one grace period after the detecting pass.
		rec.State = types.StateFlagged
		rec.IdleStreak = 1
		res.Record = rec
		res.Events = append(res.Events, transition(rec.ID, types.StateActive, types.StateFlagged, "idle: "+in.Evaluation.Reason, in.Now))
		if rec.IdleStreak >= cfg.IdlePassesToSchedule {
			// The scheduling notice subsumes the flagging notice.
			schedule(&res, cfg, in)
			return res
		}
		res.Intents = append(res.Intents, notifyIntent(rec, in.Evaluation.Reason))
		return res

	case types.StateFlagged:
		// Count each distinct observation at most once so replaying an
		// identical pass cannot promote the record a second time.
		if in.Now.After(rec.LastVerdict.ObservedAt) {
			rec.IdleStreak++
		}
		res.Record = rec
		if rec.IdleStreak < cfg.IdlePassesToSchedule {
			return res
		}
		schedule(&res, cfg, in)
		return res

	default:
		// PendingDeletion stays put; the safety gate decides at fire time.
		res.Record = rec
		return res
	}
}

// schedule promotes res.Record from Flagged to PendingDeletion and emits the
// scheduling intents. The owner notice carries the deletion time.
func schedule(res *Result, cfg Config, in Input) {
	rec := res.Record
	fireAt := in.Now.Add(cfg.GracePeriod)

	rec.State = types.StatePendingDeletion
	rec.ScheduledDeletionAt = &fireAt
	res.Record = rec
	res.Events = append(res.Events, transition(rec.ID, types.StateFlagged, types.StatePendingDeletion,
		fmt.Sprintf("idle for %d consecutive passes, deletion scheduled", rec.IdleStreak), in.Now))
	res.Intents = append(res.Intents,
		Intent{Kind: IntentSchedule, FireAt: fireAt},
		notifyIntent(rec, fmt.Sprintf("deletion scheduled for %s", fireAt.UTC().Format(time.RFC3339))),
	)
}

func transition(id string, from, to types.LifecycleState, reason string, at time.Time) types.AuditEvent {
	return types.AuditEvent{
		ResourceID: id,
		From:       from,
		To:         to,
		Reason:     reason,
		Timestamp:  at,
	}
}

func notifyIntent(rec types.ResourceRecord, reason string) Intent {
	return Intent{
		Kind:   IntentNotifyOwner,
		Reason: reason,
		FireAt: derefTime(rec.ScheduledDeletionAt),
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
