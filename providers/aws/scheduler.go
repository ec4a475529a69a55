package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	schedulertypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"
)

// SchedulerAPI is the slice of the EventBridge Scheduler client we use.
type SchedulerAPI interface {
	CreateSchedule(ctx context.Context, params *scheduler.CreateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
	DeleteSchedule(ctx context.Context, params *scheduler.DeleteScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.DeleteScheduleOutput, error)
}

// Config for the deletion-trigger scheduler.
type SchedulerConfig struct {
	// TargetARN is invoked when a schedule fires.
	TargetARN string
	// RoleARN is assumed by the scheduler service to invoke the target.
	RoleARN string
	// GroupName defaults to the account's default schedule group.
	GroupName string
}

// DeletionScheduler creates one-shot EventBridge schedules as deletion
// triggers. Triggers are best-effort: a fired schedule only prompts a sweep,
// and the safety gate re-verifies everything before any deletion.
type DeletionScheduler struct {
	client SchedulerAPI
	cfg    SchedulerConfig
}

// NewDeletionScheduler creates a scheduler in the given home region.
func NewDeletionScheduler(base awsv2.Config, region string, cfg SchedulerConfig) *DeletionScheduler {
	return &DeletionScheduler{
		client: schedulerFor(base, region),
		cfg:    cfg,
	}
}

// Schedule creates a one-shot trigger at fireAt and returns the schedule
// name as the cancellation token.
func (s *DeletionScheduler) Schedule(ctx context.Context, resourceID string, fireAt time.Time) (string, error) {
	name := scheduleName(resourceID)

	payload, err := json.Marshal(map[string]string{"resource_id": resourceID})
	if err != nil {
		return "", fmt.Errorf("failed to encode schedule payload: %w", err)
	}

	input := &scheduler.CreateScheduleInput{
		Name: awsv2.String(name),
		// One-shot at() expressions take UTC wall-clock time without a zone.
		ScheduleExpression: awsv2.String(fmt.Sprintf("at(%s)", fireAt.UTC().Format("2006-01-02T15:04:05"))),
		FlexibleTimeWindow: &schedulertypes.FlexibleTimeWindow{
			Mode: schedulertypes.FlexibleTimeWindowModeOff,
		},
		Target: &schedulertypes.Target{
			Arn:     awsv2.String(s.cfg.TargetARN),
			RoleArn: awsv2.String(s.cfg.RoleARN),
			Input:   awsv2.String(string(payload)),
		},
		ActionAfterCompletion: schedulertypes.ActionAfterCompletionDelete,
	}
	if s.cfg.GroupName != "" {
		input.GroupName = awsv2.String(s.cfg.GroupName)
	}

	if _, err := s.client.CreateSchedule(ctx, input); err != nil {
		return "", fmt.Errorf("failed to create deletion schedule for %s: %w", resourceID, err)
	}
	return name, nil
}

// Cancel deletes a schedule by token. A schedule that already fired (and
// self-deleted) cancels successfully.
func (s *DeletionScheduler) Cancel(ctx context.Context, token string) error {
	input := &scheduler.DeleteScheduleInput{
		Name: awsv2.String(token),
	}
	if s.cfg.GroupName != "" {
		input.GroupName = awsv2.String(s.cfg.GroupName)
	}

	if _, err := s.client.DeleteSchedule(ctx, input); err != nil {
		var notFound *schedulertypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to delete schedule %s: %w", token, err)
	}
	return nil
}

// scheduleName builds a valid schedule name from a resource ID. Names allow
// only [A-Za-z0-9-_.] and cap at 64 characters; ARNs (load balancers) are
// reduced to their final path segment.
func scheduleName(resourceID string) string {
	id := resourceID
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		id = id[idx+1:]
	}

	var b strings.Builder
	b.WriteString("costopt-")
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	name := b.String()
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
