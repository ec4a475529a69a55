// Package ownership attributes resources to owners. An explicit creator tag
// wins; otherwise the creation-event trail is consulted; failing both, the
// owner is Unknown, a first-class outcome that routes notifications to the
// operations fallback channel instead of a personal address.
package ownership

import (
	"context"
	"errors"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/providers"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/telemetry"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// ResolveClaims picks an owner from a tag map and an optional creation-event
// claim. Pure; the priority order is fixed: tag, then event, then Unknown.
func ResolveClaims(tags map[string]string, eventClaim *types.OwnershipClaim) types.Owner {
	if creator := types.CreatorTag(tags); creator != "" {
		return types.Owner{Identity: creator, Source: types.ClaimSourceTag}
	}
	if eventClaim != nil && eventClaim.Identity != "" {
		return types.Owner{Identity: eventClaim.Identity, Source: types.ClaimSourceCreationEvent}
	}
	return types.OwnerUnknown
}

// Resolver resolves owners, falling back to an external creation-event
// lookup when no creator tag is present.
type Resolver struct {
	events providers.CreationEventSource
	logger *telemetry.Logger
}

// NewResolver creates a resolver backed by the given creation-event source.
func NewResolver(events providers.CreationEventSource) *Resolver {
	return &Resolver{
		events: events,
		logger: telemetry.NewLogger("ownership"),
	}
}

// Resolve attributes one resource. Lookup failures degrade to Unknown; they
// never abort the evaluation of the resource.
func (r *Resolver) Resolve(ctx context.Context, desc types.ResourceDescriptor) types.Owner {
	if creator := types.CreatorTag(desc.Tags); creator != "" {
		return types.Owner{Identity: creator, Source: types.ClaimSourceTag}
	}

	if r.events == nil {
		return types.OwnerUnknown
	}

	claim, err := r.events.LookupCreator(ctx, desc)
	if err != nil {
		if !errors.Is(err, providers.ErrNoCreationEvent) {
			r.logger.WithContext(ctx).Warn().
				Err(err).
				Str("resource_id", desc.ID).
				Msg("creation event lookup failed, owner unknown")
		}
		return types.OwnerUnknown
	}

	return ResolveClaims(desc.Tags, &claim)
}
