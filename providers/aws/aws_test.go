package aws

import (
	"context"
	"testing"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

type fakeEC2 struct {
	instances   []ec2types.Instance
	natGateways []ec2types.NatGateway
}

func (f *fakeEC2) DescribeInstances(context.Context, *ec2.DescribeInstancesInput, ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: f.instances}},
	}, nil
}

func (f *fakeEC2) DescribeNatGateways(context.Context, *ec2.DescribeNatGatewaysInput, ...func(*ec2.Options)) (*ec2.DescribeNatGatewaysOutput, error) {
	return &ec2.DescribeNatGatewaysOutput{NatGateways: f.natGateways}, nil
}

type fakeELB struct {
	balancers []elbtypes.LoadBalancer
	tags      []elbtypes.TagDescription
}

func (f *fakeELB) DescribeLoadBalancers(context.Context, *elasticloadbalancingv2.DescribeLoadBalancersInput, ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
	return &elasticloadbalancingv2.DescribeLoadBalancersOutput{LoadBalancers: f.balancers}, nil
}

func (f *fakeELB) DescribeTags(context.Context, *elasticloadbalancingv2.DescribeTagsInput, ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTagsOutput, error) {
	return &elasticloadbalancingv2.DescribeTagsOutput{TagDescriptions: f.tags}, nil
}

func testInventory(ec2Client EC2API, elbClient ELBAPI) *Inventory {
	return &Inventory{
		ec2: func(string) EC2API { return ec2Client },
		elb: func(string) ELBAPI { return elbClient },
	}
}

func TestListInstances(t *testing.T) {
	launched := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeEC2{instances: []ec2types.Instance{{
		InstanceId: awsv2.String("i-0abc"),
		LaunchTime: awsv2.Time(launched),
		Tags: []ec2types.Tag{
			{Key: awsv2.String("Name"), Value: awsv2.String("web-1")},
			{Key: awsv2.String(types.TagCreator), Value: awsv2.String("dev@example.com")},
		},
	}}}

	got, err := testInventory(client, nil).ListResources(context.Background(), "us-east-1", types.ResourceCompute)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "i-0abc", got[0].ID)
	assert.Equal(t, types.ResourceCompute, got[0].Type)
	assert.Equal(t, "web-1", got[0].Name)
	assert.Equal(t, "dev@example.com", got[0].Tags[types.TagCreator])
	assert.Equal(t, launched, got[0].CreatedAt)
}

func TestListLoadBalancersJoinsTags(t *testing.T) {
	arn := "arn:aws:elasticloadbalancing:us-east-1:123:loadbalancer/app/web/50dc6c"
	client := &fakeELB{
		balancers: []elbtypes.LoadBalancer{{
			LoadBalancerArn:  awsv2.String(arn),
			LoadBalancerName: awsv2.String("web"),
			CreatedTime:      awsv2.Time(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)),
		}},
		tags: []elbtypes.TagDescription{{
			ResourceArn: awsv2.String(arn),
			Tags: []elbtypes.Tag{
				{Key: awsv2.String(types.TagExempt), Value: awsv2.String("true")},
			},
		}},
	}

	got, err := testInventory(nil, client).ListResources(context.Background(), "us-east-1", types.ResourceLoadBalancer)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, arn, got[0].ID)
	assert.Equal(t, "web", got[0].Name)
	assert.True(t, types.IsExempt(got[0].Tags))
}

func TestDescribeInstanceTerminatedIsGone(t *testing.T) {
	client := &fakeEC2{instances: []ec2types.Instance{{
		InstanceId: awsv2.String("i-0abc"),
		State:      &ec2types.InstanceState{Name: ec2types.InstanceStateNameTerminated},
	}}}

	got, err := testInventory(client, nil).DescribeResource(context.Background(), "us-east-1", types.ResourceCompute, "i-0abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadBalancerDimension(t *testing.T) {
	assert.Equal(t, "app/web/50dc6c",
		loadBalancerDimension("arn:aws:elasticloadbalancing:us-east-1:123:loadbalancer/app/web/50dc6c"))
	assert.Equal(t, "not-an-arn", loadBalancerDimension("not-an-arn"))
}

func TestScheduleName(t *testing.T) {
	tests := []struct {
		resourceID string
		want       string
	}{
		{"i-0abc123", "costopt-i-0abc123"},
		{"arn:aws:elasticloadbalancing:us-east-1:123:loadbalancer/app/web/50dc6c", "costopt-50dc6c"},
		{"nat-0123456789abcdef0", "costopt-nat-0123456789abcdef0"},
	}

	for _, tt := range tests {
		got := scheduleName(tt.resourceID)
		assert.Equal(t, tt.want, got)
		assert.LessOrEqual(t, len(got), 64)
	}
}
