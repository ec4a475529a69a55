package types

import (
	"fmt"
	"time"
)

// ResourceType identifies the kind of cloud resource under audit.
type ResourceType string

const (
	ResourceCompute      ResourceType = "compute"
	ResourceLoadBalancer ResourceType = "load_balancer"
	ResourceNatGateway   ResourceType = "nat_gateway"
)

// AllResourceTypes lists every type the engine audits.
var AllResourceTypes = []ResourceType{
	ResourceCompute,
	ResourceLoadBalancer,
	ResourceNatGateway,
}

// Valid reports whether the type is one the engine knows how to audit.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceCompute, ResourceLoadBalancer, ResourceNatGateway:
		return true
	}
	return false
}

// ResourceDescriptor is what the inventory source hands us for one resource.
// Tags and ownership data are read-only inputs, refreshed each scan pass.
type ResourceDescriptor struct {
	ID        string            `json:"id"`
	Type      ResourceType      `json:"type"`
	Region    string            `json:"region"`
	Name      string            `json:"name,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Age returns how old the resource is at the given instant.
func (d ResourceDescriptor) Age(now time.Time) time.Duration {
	return now.Sub(d.CreatedAt)
}

// ResourceRecord is the persisted lifecycle record for one resource, keyed by
// its globally unique identifier. The engine owns State, LastVerdict,
// ScheduledDeletionAt, ScheduleToken, IdleStreak and DeleteAttempts; Tags,
// Owner and Region are refreshed from the inventory each pass.
type ResourceRecord struct {
	ID     string       `json:"id" dynamodbav:"resource_id"`
	Type   ResourceType `json:"type" dynamodbav:"resource_type"`
	Region string       `json:"region" dynamodbav:"region"`

	Tags  map[string]string `json:"tags,omitempty" dynamodbav:"tags,omitempty"`
	Owner Owner             `json:"owner" dynamodbav:"owner"`

	State       LifecycleState `json:"state" dynamodbav:"state"`
	LastVerdict VerdictRecord  `json:"last_verdict" dynamodbav:"last_verdict"`

	// ScheduledDeletionAt is set iff State == StatePendingDeletion.
	ScheduledDeletionAt *time.Time `json:"scheduled_deletion_at,omitempty" dynamodbav:"scheduled_deletion_at,omitempty"`
	ScheduleToken       string     `json:"schedule_token,omitempty" dynamodbav:"schedule_token,omitempty"`

	// IdleStreak counts consecutive idle passes observed while Flagged.
	IdleStreak     int `json:"idle_streak,omitempty" dynamodbav:"idle_streak,omitempty"`
	DeleteAttempts int `json:"delete_attempts,omitempty" dynamodbav:"delete_attempts,omitempty"`

	// Version is the optimistic-concurrency counter. Every write must carry
	// the version read at evaluation start.
	Version int64 `json:"version" dynamodbav:"version"`
}

// NewRecord builds the initial record for a resource seen for the first time.
func NewRecord(desc ResourceDescriptor, owner Owner) ResourceRecord {
	return ResourceRecord{
		ID:     desc.ID,
		Type:   desc.Type,
		Region: desc.Region,
		Tags:   desc.Tags,
		Owner:  owner,
		State:  StateActive,
	}
}

// CheckInvariants validates the record's internal consistency.
func (r *ResourceRecord) CheckInvariants() error {
	if r.ID == "" {
		return fmt.Errorf("record has no resource ID")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("record %s has unknown resource type %q", r.ID, r.Type)
	}
	if !r.State.Valid() {
		return fmt.Errorf("record %s has unknown lifecycle state %q", r.ID, r.State)
	}
	scheduled := r.ScheduledDeletionAt != nil
	if scheduled != (r.State == StatePendingDeletion) {
		return fmt.Errorf("record %s: scheduled_deletion_at must be set iff state is %s (state=%s, scheduled=%v)",
			r.ID, StatePendingDeletion, r.State, scheduled)
	}
	return nil
}

// DueForDeletion reports whether the deletion schedule has come due.
func (r *ResourceRecord) DueForDeletion(now time.Time) bool {
	return r.State == StatePendingDeletion &&
		r.ScheduledDeletionAt != nil &&
		!r.ScheduledDeletionAt.After(now)
}
