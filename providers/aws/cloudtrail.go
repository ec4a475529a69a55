package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/providers"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// creationEventNames maps a resource type to the API call that creates it.
var creationEventNames = map[types.ResourceType]string{
	types.ResourceCompute:      "RunInstances",
	types.ResourceLoadBalancer: "CreateLoadBalancer",
	types.ResourceNatGateway:   "CreateNatGateway",
}

// CloudTrailAPI is the slice of the CloudTrail client the lookup needs.
type CloudTrailAPI interface {
	LookupEvents(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error)
}

// CreationEvents resolves who created a resource from the CloudTrail event
// history. Management events are retained for 90 days, so older resources
// simply have no creation event.
type CreationEvents struct {
	ct func(region string) CloudTrailAPI
}

// NewCreationEvents creates a lookup over the given base SDK config.
func NewCreationEvents(base awsv2.Config) *CreationEvents {
	return &CreationEvents{
		ct: func(region string) CloudTrailAPI { return cloudtrailFor(base, region) },
	}
}

// LookupCreator finds the creation event for a resource and returns the
// caller identity behind it.
func (c *CreationEvents) LookupCreator(ctx context.Context, desc types.ResourceDescriptor) (types.OwnershipClaim, error) {
	wantEvent, ok := creationEventNames[desc.Type]
	if !ok {
		return types.OwnershipClaim{}, fmt.Errorf("no creation event name for resource type %q", desc.Type)
	}

	input := &cloudtrail.LookupEventsInput{
		LookupAttributes: []cttypes.LookupAttribute{{
			AttributeKey:   cttypes.LookupAttributeKeyResourceName,
			AttributeValue: awsv2.String(desc.ID),
		}},
	}
	// Bound the search around the known creation time when we have one.
	if !desc.CreatedAt.IsZero() {
		input.StartTime = awsv2.Time(desc.CreatedAt.Add(-time.Hour))
		input.EndTime = awsv2.Time(desc.CreatedAt.Add(time.Hour))
	}

	for {
		out, err := c.ct(desc.Region).LookupEvents(ctx, input)
		if err != nil {
			return types.OwnershipClaim{}, fmt.Errorf("failed to look up creation event for %s: %w", desc.ID, err)
		}

		for _, event := range out.Events {
			if awsv2.ToString(event.EventName) != wantEvent {
				continue
			}
			if identity := callerIdentity(event); identity != "" {
				return types.OwnershipClaim{
					Source:     types.ClaimSourceCreationEvent,
					Identity:   identity,
					Confidence: 0.8,
				}, nil
			}
		}

		if out.NextToken == nil {
			return types.OwnershipClaim{}, providers.ErrNoCreationEvent
		}
		input.NextToken = out.NextToken
	}
}

// trailEvent is the subset of the raw CloudTrail event payload we parse when
// the summary Username field is empty (assumed-role sessions).
type trailEvent struct {
	UserIdentity struct {
		Type           string `json:"type"`
		ARN            string `json:"arn"`
		SessionContext struct {
			SessionIssuer struct {
				UserName string `json:"userName"`
			} `json:"sessionIssuer"`
		} `json:"sessionContext"`
	} `json:"userIdentity"`
}

func callerIdentity(event cttypes.Event) string {
	if username := awsv2.ToString(event.Username); username != "" {
		return username
	}

	var raw trailEvent
	if err := json.Unmarshal([]byte(awsv2.ToString(event.CloudTrailEvent)), &raw); err != nil {
		return ""
	}
	if name := raw.UserIdentity.SessionContext.SessionIssuer.UserName; name != "" {
		return name
	}
	return raw.UserIdentity.ARN
}
