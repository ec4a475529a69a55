package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/evaluator"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func idleEval() evaluator.Evaluation {
	return evaluator.Evaluation{Verdict: types.VerdictIdle, Reason: "utilization below thresholds"}
}

func activeEval() evaluator.Evaluation {
	return evaluator.Evaluation{Verdict: types.VerdictActive, Reason: "utilization above thresholds"}
}

func indeterminateEval() evaluator.Evaluation {
	return evaluator.Evaluation{Verdict: types.VerdictIndeterminate, Reason: "no datapoints"}
}

func descriptor(tags map[string]string) types.ResourceDescriptor {
	return types.ResourceDescriptor{
		ID:        "i-0abc",
		Type:      types.ResourceCompute,
		Region:    "us-east-1",
		Tags:      tags,
		CreatedAt: testTime.Add(-30 * 24 * time.Hour),
	}
}

func owner() types.Owner {
	return types.Owner{Identity: "dev@example.com", Source: types.ClaimSourceTag}
}

func TestStepNewIdleResourceGetsFlagged(t *testing.T) {
	cfg := Config{GracePeriod: 7 * 24 * time.Hour, IdlePassesToSchedule: 2}
	res := Step(cfg, Input{
		Record:     nil,
		Descriptor: descriptor(nil),
		Evaluation: idleEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.True(t, res.Dirty)
	assert.Equal(t, types.StateFlagged, res.Record.State)
	assert.Equal(t, 1, res.Record.IdleStreak)
	require.Len(t, res.Events, 1)
	assert.Equal(t, types.StateActive, res.Events[0].From)
	assert.Equal(t, types.StateFlagged, res.Events[0].To)

	require.Len(t, res.Intents, 1)
	assert.Equal(t, IntentNotifyOwner, res.Intents[0].Kind)
}

func TestStepDefaultConfigSchedulesOnFirstIdlePass(t *testing.T) {
	// With the single-pass threshold, the pass that detects idleness both
	// flags the resource and schedules its deletion, so the deletion fires
	// exactly one grace period after that pass.
	cfg := DefaultConfig()
	res := Step(cfg, Input{
		Record:     nil,
		Descriptor: descriptor(nil),
		Evaluation: idleEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.Equal(t, types.StatePendingDeletion, res.Record.State)
	assert.Equal(t, 1, res.Record.IdleStreak)
	require.NotNil(t, res.Record.ScheduledDeletionAt)
	assert.Equal(t, testTime.Add(cfg.GracePeriod), *res.Record.ScheduledDeletionAt)

	require.Len(t, res.Events, 2)
	assert.Equal(t, types.StateActive, res.Events[0].From)
	assert.Equal(t, types.StateFlagged, res.Events[0].To)
	assert.Equal(t, types.StateFlagged, res.Events[1].From)
	assert.Equal(t, types.StatePendingDeletion, res.Events[1].To)

	var kinds []IntentKind
	for _, intent := range res.Intents {
		kinds = append(kinds, intent.Kind)
	}
	assert.Contains(t, kinds, IntentSchedule)
	assert.Contains(t, kinds, IntentNotifyOwner)
	require.NoError(t, res.Record.CheckInvariants())
}

func TestStepNewActiveResourceStaysActive(t *testing.T) {
	res := Step(DefaultConfig(), Input{
		Descriptor: descriptor(nil),
		Evaluation: activeEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.Equal(t, types.StateActive, res.Record.State)
	assert.Empty(t, res.Events)
	assert.Empty(t, res.Intents)
}

func TestStepFlaggedIdleAgainSchedulesDeletion(t *testing.T) {
	rec := types.NewRecord(descriptor(nil), owner())
	rec.State = types.StateFlagged
	rec.Version = 2
	rec.LastVerdict = types.VerdictRecord{Verdict: types.VerdictIdle, ObservedAt: testTime.Add(-24 * time.Hour)}

	cfg := DefaultConfig()
	res := Step(cfg, Input{
		Record:     &rec,
		Descriptor: descriptor(nil),
		Evaluation: idleEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.Equal(t, types.StatePendingDeletion, res.Record.State)
	require.NotNil(t, res.Record.ScheduledDeletionAt)
	assert.Equal(t, testTime.Add(cfg.GracePeriod), *res.Record.ScheduledDeletionAt)

	var kinds []IntentKind
	for _, intent := range res.Intents {
		kinds = append(kinds, intent.Kind)
	}
	assert.Contains(t, kinds, IntentSchedule)
	assert.Contains(t, kinds, IntentNotifyOwner)
	require.NoError(t, res.Record.CheckInvariants())
}

func TestStepReplayedPassDoesNotPromote(t *testing.T) {
	// Same observation timestamp as the stored verdict: the streak must not
	// advance, so a crash-replayed pass cannot schedule deletion early.
	rec := types.NewRecord(descriptor(nil), owner())
	rec.State = types.StateFlagged
	rec.LastVerdict = types.VerdictRecord{Verdict: types.VerdictIdle, ObservedAt: testTime}

	res := Step(DefaultConfig(), Input{
		Record:     &rec,
		Descriptor: descriptor(nil),
		Evaluation: idleEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.Equal(t, types.StateFlagged, res.Record.State)
	assert.Zero(t, res.Record.IdleStreak)
	assert.Empty(t, res.Events)
}

func TestStepMultiPassThreshold(t *testing.T) {
	cfg := Config{GracePeriod: 7 * 24 * time.Hour, IdlePassesToSchedule: 3}

	var rec *types.ResourceRecord
	stepTime := testTime
	for pass := 1; pass <= 3; pass++ {
		res := Step(cfg, Input{
			Record:     rec,
			Descriptor: descriptor(nil),
			Evaluation: idleEval(),
			Owner:      owner(),
			Now:        stepTime,
		})
		next := res.Record
		rec = &next

		if pass < 3 {
			assert.Equal(t, types.StateFlagged, next.State, "pass %d", pass)
			assert.Equal(t, pass, next.IdleStreak)
		} else {
			assert.Equal(t, types.StatePendingDeletion, next.State)
			require.NotNil(t, next.ScheduledDeletionAt)
			assert.Equal(t, stepTime.Add(cfg.GracePeriod), *next.ScheduledDeletionAt)
		}
		stepTime = stepTime.Add(24 * time.Hour)
	}
}

func TestStepRecoveryCancelsPendingDeletion(t *testing.T) {
	fireAt := testTime.Add(3 * 24 * time.Hour)
	rec := types.NewRecord(descriptor(nil), owner())
	rec.State = types.StatePendingDeletion
	rec.ScheduledDeletionAt = &fireAt
	rec.ScheduleToken = "costopt-i-0abc"
	rec.IdleStreak = 2
	rec.LastVerdict = types.VerdictRecord{Verdict: types.VerdictIdle, ObservedAt: testTime.Add(-24 * time.Hour)}

	res := Step(DefaultConfig(), Input{
		Record:     &rec,
		Descriptor: descriptor(nil),
		Evaluation: activeEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.Equal(t, types.StateActive, res.Record.State)
	assert.Nil(t, res.Record.ScheduledDeletionAt)
	assert.Empty(t, res.Record.ScheduleToken)
	assert.Zero(t, res.Record.IdleStreak)

	require.Len(t, res.Intents, 1)
	assert.Equal(t, IntentCancelSchedule, res.Intents[0].Kind)
	assert.Equal(t, "costopt-i-0abc", res.Intents[0].Token)
	require.NoError(t, res.Record.CheckInvariants())
}

func TestStepExemptionTagCancelsEverything(t *testing.T) {
	fireAt := testTime.Add(24 * time.Hour)
	rec := types.NewRecord(descriptor(nil), owner())
	rec.State = types.StatePendingDeletion
	rec.ScheduledDeletionAt = &fireAt
	rec.ScheduleToken = "costopt-i-0abc"

	exemptTags := map[string]string{types.TagExempt: "true"}
	res := Step(DefaultConfig(), Input{
		Record:     &rec,
		Descriptor: descriptor(exemptTags),
		Evaluation: idleEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.Equal(t, types.StateExempted, res.Record.State)
	assert.Nil(t, res.Record.ScheduledDeletionAt)
	require.Len(t, res.Events, 1)
	assert.Equal(t, types.StatePendingDeletion, res.Events[0].From)

	require.Len(t, res.Intents, 1)
	assert.Equal(t, IntentCancelSchedule, res.Intents[0].Kind)
}

func TestStepExemptionBeatsIdleVerdict(t *testing.T) {
	// Exemption wins even when the resource is idle: it never re-enters the
	// deletion path while the tag is present.
	rec := types.NewRecord(descriptor(nil), owner())
	rec.State = types.StateExempted

	res := Step(DefaultConfig(), Input{
		Record:     &rec,
		Descriptor: descriptor(map[string]string{types.TagExempt: "true"}),
		Evaluation: idleEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.Equal(t, types.StateExempted, res.Record.State)
	assert.Empty(t, res.Events)
}

func TestStepExemptionRemoved(t *testing.T) {
	tests := []struct {
		name      string
		eval      evaluator.Evaluation
		wantState types.LifecycleState
	}{
		{"idle goes back to flagged", idleEval(), types.StateFlagged},
		{"active returns to active", activeEval(), types.StateActive},
		{"indeterminate returns to active", indeterminateEval(), types.StateActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := types.NewRecord(descriptor(nil), owner())
			rec.State = types.StateExempted

			res := Step(DefaultConfig(), Input{
				Record:     &rec,
				Descriptor: descriptor(nil),
				Evaluation: tt.eval,
				Owner:      owner(),
				Now:        testTime,
			})
			assert.Equal(t, tt.wantState, res.Record.State)
			require.Len(t, res.Events, 1)
		})
	}
}

func TestStepIndeterminateBreaksStreakAndNeverTransitions(t *testing.T) {
	rec := types.NewRecord(descriptor(nil), owner())
	rec.State = types.StateFlagged
	rec.IdleStreak = 2
	rec.LastVerdict = types.VerdictRecord{Verdict: types.VerdictIdle, ObservedAt: testTime.Add(-24 * time.Hour)}

	res := Step(Config{GracePeriod: time.Hour, IdlePassesToSchedule: 3}, Input{
		Record:     &rec,
		Descriptor: descriptor(nil),
		Evaluation: indeterminateEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.Equal(t, types.StateFlagged, res.Record.State)
	assert.Zero(t, res.Record.IdleStreak)
	assert.Empty(t, res.Events)
	assert.Empty(t, res.Intents)
}

func TestStepDeletedIsTerminal(t *testing.T) {
	rec := types.NewRecord(descriptor(nil), owner())
	rec.State = types.StateDeleted

	res := Step(DefaultConfig(), Input{
		Record:     &rec,
		Descriptor: descriptor(nil),
		Evaluation: activeEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.Equal(t, types.StateDeleted, res.Record.State)
	assert.False(t, res.Dirty)
	assert.Empty(t, res.Events)
}

func TestStepRefreshesTagsAndOwner(t *testing.T) {
	rec := types.NewRecord(descriptor(map[string]string{"team": "old"}), owner())
	rec.State = types.StateActive

	newOwner := types.Owner{Identity: "ops@example.com", Source: types.ClaimSourceCreationEvent}
	res := Step(DefaultConfig(), Input{
		Record:     &rec,
		Descriptor: descriptor(map[string]string{"team": "new"}),
		Evaluation: activeEval(),
		Owner:      newOwner,
		Now:        testTime,
	})

	assert.Equal(t, "new", res.Record.Tags["team"])
	assert.Equal(t, newOwner, res.Record.Owner)
}

func TestStepRecordsLastVerdict(t *testing.T) {
	res := Step(DefaultConfig(), Input{
		Descriptor: descriptor(nil),
		Evaluation: activeEval(),
		Owner:      owner(),
		Now:        testTime,
	})

	assert.Equal(t, types.VerdictActive, res.Record.LastVerdict.Verdict)
	assert.Equal(t, testTime, res.Record.LastVerdict.ObservedAt)
}
