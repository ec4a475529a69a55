package aws

import (
	"context"
	"testing"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/providers"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

type fakeCloudTrail struct {
	events []cttypes.Event
}

func (f *fakeCloudTrail) LookupEvents(context.Context, *cloudtrail.LookupEventsInput, ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error) {
	return &cloudtrail.LookupEventsOutput{Events: f.events}, nil
}

func testCreationEvents(client CloudTrailAPI) *CreationEvents {
	return &CreationEvents{ct: func(string) CloudTrailAPI { return client }}
}

func instanceDesc() types.ResourceDescriptor {
	return types.ResourceDescriptor{
		ID:        "i-0abc",
		Type:      types.ResourceCompute,
		Region:    "us-east-1",
		CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLookupCreatorFromUsername(t *testing.T) {
	client := &fakeCloudTrail{events: []cttypes.Event{{
		EventName: awsv2.String("RunInstances"),
		Username:  awsv2.String("dev-user"),
	}}}

	claim, err := testCreationEvents(client).LookupCreator(context.Background(), instanceDesc())
	require.NoError(t, err)
	assert.Equal(t, "dev-user", claim.Identity)
	assert.Equal(t, types.ClaimSourceCreationEvent, claim.Source)
}

func TestLookupCreatorParsesAssumedRole(t *testing.T) {
	raw := `{"userIdentity":{"type":"AssumedRole","arn":"arn:aws:sts::123:assumed-role/deployer/session","sessionContext":{"sessionIssuer":{"userName":"deployer"}}}}`
	client := &fakeCloudTrail{events: []cttypes.Event{{
		EventName:       awsv2.String("RunInstances"),
		CloudTrailEvent: awsv2.String(raw),
	}}}

	claim, err := testCreationEvents(client).LookupCreator(context.Background(), instanceDesc())
	require.NoError(t, err)
	assert.Equal(t, "deployer", claim.Identity)
}

func TestLookupCreatorIgnoresOtherEvents(t *testing.T) {
	client := &fakeCloudTrail{events: []cttypes.Event{{
		EventName: awsv2.String("StopInstances"),
		Username:  awsv2.String("someone-else"),
	}}}

	_, err := testCreationEvents(client).LookupCreator(context.Background(), instanceDesc())
	assert.ErrorIs(t, err, providers.ErrNoCreationEvent)
}

func TestLookupCreatorNoEvents(t *testing.T) {
	_, err := testCreationEvents(&fakeCloudTrail{}).LookupCreator(context.Background(), instanceDesc())
	assert.ErrorIs(t, err, providers.ErrNoCreationEvent)
}
