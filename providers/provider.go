// Package providers defines the boundary contracts the engine consumes.
// Implementations live in subpackages; the core never talks to a cloud SDK
// directly.
package providers

import (
	"context"
	"errors"
	"time"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// ErrNoCreationEvent means the creation-event source has no record of who
// created the resource. Callers treat it as "owner unknown", not a failure.
var ErrNoCreationEvent = errors.New("no creation event found")

// InventorySource enumerates resources per region and resource type. One
// listing per invocation; not restartable mid-pass.
type InventorySource interface {
	ListResources(ctx context.Context, region string, rt types.ResourceType) ([]types.ResourceDescriptor, error)

	// DescribeResource re-fetches a single resource with fresh tags. It
	// returns (nil, nil) when the resource no longer exists.
	DescribeResource(ctx context.Context, region string, rt types.ResourceType, id string) (*types.ResourceDescriptor, error)
}

// MetricQuery describes one metric fetch for a resource.
type MetricQuery struct {
	Resource types.ResourceDescriptor
	Window   time.Duration
	End      time.Time
}

// MetricSource fetches utilization samples. It may return an empty slice;
// the evaluator turns that into an Indeterminate verdict.
type MetricSource interface {
	Query(ctx context.Context, q MetricQuery) ([]types.MetricSample, error)
}

// CreationEventSource looks up who created a resource, typically from an
// audit trail of API calls.
type CreationEventSource interface {
	LookupCreator(ctx context.Context, desc types.ResourceDescriptor) (types.OwnershipClaim, error)
}

// Notification is one owner-facing notice about a resource.
type Notification struct {
	Owner      types.Owner
	ResourceID string
	Region     string
	State      types.LifecycleState
	Reason     string
	// DeletionAt is set when the notice announces a pending deletion.
	DeletionAt *time.Time
}

// PassSummary is the operator-facing digest of one scan pass.
type PassSummary struct {
	Region       string             `json:"region"`
	ResourceType types.ResourceType `json:"resource_type"`
	StartedAt    time.Time          `json:"started_at"`
	Duration     time.Duration      `json:"duration"`
	Scanned      int                `json:"scanned"`
	Skipped      int                `json:"skipped"`
	Failures     []string           `json:"failures,omitempty"`
	Transitions  []types.AuditEvent `json:"transitions,omitempty"`
	// Lines is one human-readable digest per examined resource.
	Lines []string `json:"lines,omitempty"`
}

// Notifier delivers owner notices and operator summaries. Fire-and-forget:
// delivery failure never rolls back a lifecycle transition.
type Notifier interface {
	NotifyOwner(ctx context.Context, n Notification) error
	PublishSummary(ctx context.Context, summary PassSummary) error
}

// Scheduler creates and cancels future deletion triggers. Firing is
// best-effort ("maybe fires"); the safety gate is the authoritative check.
type Scheduler interface {
	Schedule(ctx context.Context, resourceID string, fireAt time.Time) (token string, err error)
	Cancel(ctx context.Context, token string) error
}

// DeletionExecutor performs the physical deletion. Invoked only after the
// safety gate passes.
type DeletionExecutor interface {
	Delete(ctx context.Context, rt types.ResourceType, region, id, confirmationToken string) error
}
