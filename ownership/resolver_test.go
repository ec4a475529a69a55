package ownership

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/providers"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

func TestResolveClaims(t *testing.T) {
	eventClaim := &types.OwnershipClaim{
		Source:   types.ClaimSourceCreationEvent,
		Identity: "trail-user",
	}

	tests := []struct {
		name  string
		tags  map[string]string
		claim *types.OwnershipClaim
		want  types.Owner
	}{
		{
			name:  "creator tag wins over creation event",
			tags:  map[string]string{types.TagCreator: "dev@example.com"},
			claim: eventClaim,
			want:  types.Owner{Identity: "dev@example.com", Source: types.ClaimSourceTag},
		},
		{
			name:  "creation event used without tag",
			tags:  map[string]string{"Name": "web"},
			claim: eventClaim,
			want:  types.Owner{Identity: "trail-user", Source: types.ClaimSourceCreationEvent},
		},
		{
			name: "unknown when nothing available",
			want: types.OwnerUnknown,
		},
		{
			name:  "empty event identity falls through to unknown",
			claim: &types.OwnershipClaim{Source: types.ClaimSourceCreationEvent},
			want:  types.OwnerUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveClaims(tt.tags, tt.claim))
		})
	}
}

type fakeEvents struct {
	claim types.OwnershipClaim
	err   error
	calls int
}

func (f *fakeEvents) LookupCreator(_ context.Context, _ types.ResourceDescriptor) (types.OwnershipClaim, error) {
	f.calls++
	return f.claim, f.err
}

func TestResolverSkipsLookupWhenTagged(t *testing.T) {
	events := &fakeEvents{}
	r := NewResolver(events)

	owner := r.Resolve(context.Background(), types.ResourceDescriptor{
		ID:   "i-0abc",
		Tags: map[string]string{types.TagCreator: "dev@example.com"},
	})

	assert.Equal(t, "dev@example.com", owner.Identity)
	assert.Zero(t, events.calls)
}

func TestResolverUsesCreationEvent(t *testing.T) {
	events := &fakeEvents{
		claim: types.OwnershipClaim{Source: types.ClaimSourceCreationEvent, Identity: "trail-user"},
	}
	r := NewResolver(events)

	owner := r.Resolve(context.Background(), types.ResourceDescriptor{ID: "i-0abc"})
	assert.Equal(t, "trail-user", owner.Identity)
	assert.Equal(t, types.ClaimSourceCreationEvent, owner.Source)
}

func TestResolverDegradesToUnknown(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no creation event", providers.ErrNoCreationEvent},
		{"lookup failure", errors.New("throttled")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakeEvents{err: tt.err})
			owner := r.Resolve(context.Background(), types.ResourceDescriptor{ID: "i-0abc"})
			assert.True(t, owner.Unknown())
		})
	}
}

func TestResolverNilEventSource(t *testing.T) {
	r := NewResolver(nil)
	owner := r.Resolve(context.Background(), types.ResourceDescriptor{ID: "i-0abc"})
	assert.True(t, owner.Unknown())
}
