package aws

import (
	"context"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

type fakeEC2Delete struct {
	terminated []string
	natDeleted []string
}

func (f *fakeEC2Delete) TerminateInstances(_ context.Context, params *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.terminated = append(f.terminated, params.InstanceIds...)
	return &ec2.TerminateInstancesOutput{}, nil
}

func (f *fakeEC2Delete) DeleteNatGateway(_ context.Context, params *ec2.DeleteNatGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteNatGatewayOutput, error) {
	f.natDeleted = append(f.natDeleted, awsv2.ToString(params.NatGatewayId))
	return &ec2.DeleteNatGatewayOutput{}, nil
}

type fakeELBDelete struct {
	deleted []string
}

func (f *fakeELBDelete) DeleteLoadBalancer(_ context.Context, params *elasticloadbalancingv2.DeleteLoadBalancerInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DeleteLoadBalancerOutput, error) {
	f.deleted = append(f.deleted, awsv2.ToString(params.LoadBalancerArn))
	return &elasticloadbalancingv2.DeleteLoadBalancerOutput{}, nil
}

func testDeleter(ec2Client EC2DeleteAPI, elbClient ELBDeleteAPI) *Deleter {
	return &Deleter{
		ec2: func(string) EC2DeleteAPI { return ec2Client },
		elb: func(string) ELBDeleteAPI { return elbClient },
	}
}

func TestDeleteByResourceType(t *testing.T) {
	ec2Client := &fakeEC2Delete{}
	elbClient := &fakeELBDelete{}
	d := testDeleter(ec2Client, elbClient)
	ctx := context.Background()

	require.NoError(t, d.Delete(ctx, types.ResourceCompute, "us-east-1", "i-0abc", "i-0abc@3"))
	assert.Equal(t, []string{"i-0abc"}, ec2Client.terminated)

	require.NoError(t, d.Delete(ctx, types.ResourceNatGateway, "us-east-1", "nat-01", "nat-01@1"))
	assert.Equal(t, []string{"nat-01"}, ec2Client.natDeleted)

	arn := "arn:aws:elasticloadbalancing:us-east-1:123:loadbalancer/app/web/50dc6c"
	require.NoError(t, d.Delete(ctx, types.ResourceLoadBalancer, "us-east-1", arn, arn+"@2"))
	assert.Equal(t, []string{arn}, elbClient.deleted)
}

func TestDeleteRefusesMismatchedToken(t *testing.T) {
	ec2Client := &fakeEC2Delete{}
	d := testDeleter(ec2Client, &fakeELBDelete{})

	err := d.Delete(context.Background(), types.ResourceCompute, "us-east-1", "i-0abc", "i-other@3")
	assert.Error(t, err)
	assert.Empty(t, ec2Client.terminated)

	err = d.Delete(context.Background(), types.ResourceCompute, "us-east-1", "i-0abc", "")
	assert.Error(t, err)
	assert.Empty(t, ec2Client.terminated)
}

func TestDeleteUnknownType(t *testing.T) {
	d := testDeleter(&fakeEC2Delete{}, &fakeELBDelete{})
	err := d.Delete(context.Background(), types.ResourceType("mystery"), "us-east-1", "x", "x@1")
	assert.Error(t, err)
}
