package aws

import (
	"context"
	"errors"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/smithy-go"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// EC2API is the slice of the EC2 client the inventory needs.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeNatGateways(ctx context.Context, params *ec2.DescribeNatGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNatGatewaysOutput, error)
}

// ELBAPI is the slice of the ELBv2 client the inventory needs.
type ELBAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elasticloadbalancingv2.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error)
	DescribeTags(ctx context.Context, params *elasticloadbalancingv2.DescribeTagsInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTagsOutput, error)
}

// Inventory enumerates compute instances, load balancers and NAT gateways.
type Inventory struct {
	ec2 func(region string) EC2API
	elb func(region string) ELBAPI
}

// NewInventory creates an inventory over the given base SDK config.
func NewInventory(base awsv2.Config) *Inventory {
	return &Inventory{
		ec2: func(region string) EC2API { return ec2For(base, region) },
		elb: func(region string) ELBAPI { return elbFor(base, region) },
	}
}

// ListResources enumerates all resources of one type in one region.
func (inv *Inventory) ListResources(ctx context.Context, region string, rt types.ResourceType) ([]types.ResourceDescriptor, error) {
	switch rt {
	case types.ResourceCompute:
		return inv.listInstances(ctx, region)
	case types.ResourceLoadBalancer:
		return inv.listLoadBalancers(ctx, region)
	case types.ResourceNatGateway:
		return inv.listNatGateways(ctx, region)
	}
	return nil, fmt.Errorf("unknown resource type %q", rt)
}

// DescribeResource re-fetches one resource with fresh tags. Returns (nil,
// nil) when the resource no longer exists.
func (inv *Inventory) DescribeResource(ctx context.Context, region string, rt types.ResourceType, id string) (*types.ResourceDescriptor, error) {
	switch rt {
	case types.ResourceCompute:
		return inv.describeInstance(ctx, region, id)
	case types.ResourceLoadBalancer:
		return inv.describeLoadBalancer(ctx, region, id)
	case types.ResourceNatGateway:
		return inv.describeNatGateway(ctx, region, id)
	}
	return nil, fmt.Errorf("unknown resource type %q", rt)
}

func (inv *Inventory) listInstances(ctx context.Context, region string) ([]types.ResourceDescriptor, error) {
	client := inv.ec2(region)

	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: awsv2.String("instance-state-name"), Values: []string{"running"}},
		},
	}

	var descriptors []types.ResourceDescriptor
	paginator := ec2.NewDescribeInstancesPaginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				descriptors = append(descriptors, instanceDescriptor(instance, region))
			}
		}
	}
	return descriptors, nil
}

func (inv *Inventory) describeInstance(ctx context.Context, region, id string) (*types.ResourceDescriptor, error) {
	out, err := inv.ec2(region).DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		if isErrorCode(err, "InvalidInstanceID.NotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe instance %s: %w", id, err)
	}

	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			if instance.State != nil && instance.State.Name == ec2types.InstanceStateNameTerminated {
				return nil, nil
			}
			desc := instanceDescriptor(instance, region)
			return &desc, nil
		}
	}
	return nil, nil
}

func (inv *Inventory) listNatGateways(ctx context.Context, region string) ([]types.ResourceDescriptor, error) {
	client := inv.ec2(region)

	var descriptors []types.ResourceDescriptor
	paginator := ec2.NewDescribeNatGatewaysPaginator(client, &ec2.DescribeNatGatewaysInput{
		Filter: []ec2types.Filter{
			{Name: awsv2.String("state"), Values: []string{"available"}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe NAT gateways: %w", err)
		}
		for _, nat := range page.NatGateways {
			descriptors = append(descriptors, natDescriptor(nat, region))
		}
	}
	return descriptors, nil
}

func (inv *Inventory) describeNatGateway(ctx context.Context, region, id string) (*types.ResourceDescriptor, error) {
	out, err := inv.ec2(region).DescribeNatGateways(ctx, &ec2.DescribeNatGatewaysInput{
		NatGatewayIds: []string{id},
	})
	if err != nil {
		if isErrorCode(err, "NatGatewayNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe NAT gateway %s: %w", id, err)
	}

	for _, nat := range out.NatGateways {
		if nat.State == ec2types.NatGatewayStateDeleted || nat.State == ec2types.NatGatewayStateDeleting {
			return nil, nil
		}
		desc := natDescriptor(nat, region)
		return &desc, nil
	}
	return nil, nil
}

func (inv *Inventory) listLoadBalancers(ctx context.Context, region string) ([]types.ResourceDescriptor, error) {
	client := inv.elb(region)

	var balancers []elbtypes.LoadBalancer
	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(client, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe load balancers: %w", err)
		}
		balancers = append(balancers, page.LoadBalancers...)
	}

	tags, err := inv.loadBalancerTags(ctx, client, balancers)
	if err != nil {
		return nil, err
	}

	descriptors := make([]types.ResourceDescriptor, 0, len(balancers))
	for _, lb := range balancers {
		arn := awsv2.ToString(lb.LoadBalancerArn)
		descriptors = append(descriptors, loadBalancerDescriptor(lb, region, tags[arn]))
	}
	return descriptors, nil
}

func (inv *Inventory) describeLoadBalancer(ctx context.Context, region, arn string) (*types.ResourceDescriptor, error) {
	client := inv.elb(region)

	out, err := client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{arn},
	})
	if err != nil {
		var notFound *elbtypes.LoadBalancerNotFoundException
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe load balancer %s: %w", arn, err)
	}
	if len(out.LoadBalancers) == 0 {
		return nil, nil
	}

	tags, err := inv.loadBalancerTags(ctx, client, out.LoadBalancers[:1])
	if err != nil {
		return nil, err
	}

	desc := loadBalancerDescriptor(out.LoadBalancers[0], region, tags[arn])
	return &desc, nil
}

// loadBalancerTags fetches tags for a set of load balancers, keyed by ARN.
// The DescribeTags API caps at 20 ARNs per call.
func (inv *Inventory) loadBalancerTags(ctx context.Context, client ELBAPI, balancers []elbtypes.LoadBalancer) (map[string]map[string]string, error) {
	const batchSize = 20

	tags := make(map[string]map[string]string, len(balancers))
	for start := 0; start < len(balancers); start += batchSize {
		end := min(start+batchSize, len(balancers))

		arns := make([]string, 0, end-start)
		for _, lb := range balancers[start:end] {
			arns = append(arns, awsv2.ToString(lb.LoadBalancerArn))
		}

		out, err := client.DescribeTags(ctx, &elasticloadbalancingv2.DescribeTagsInput{
			ResourceArns: arns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe load balancer tags: %w", err)
		}

		for _, td := range out.TagDescriptions {
			m := make(map[string]string, len(td.Tags))
			for _, tag := range td.Tags {
				m[awsv2.ToString(tag.Key)] = awsv2.ToString(tag.Value)
			}
			tags[awsv2.ToString(td.ResourceArn)] = m
		}
	}
	return tags, nil
}

func instanceDescriptor(instance ec2types.Instance, region string) types.ResourceDescriptor {
	tags := ec2TagMap(instance.Tags)
	return types.ResourceDescriptor{
		ID:        awsv2.ToString(instance.InstanceId),
		Type:      types.ResourceCompute,
		Region:    region,
		Name:      tags["Name"],
		Tags:      tags,
		CreatedAt: awsv2.ToTime(instance.LaunchTime),
	}
}

func natDescriptor(nat ec2types.NatGateway, region string) types.ResourceDescriptor {
	tags := ec2TagMap(nat.Tags)
	return types.ResourceDescriptor{
		ID:        awsv2.ToString(nat.NatGatewayId),
		Type:      types.ResourceNatGateway,
		Region:    region,
		Name:      tags["Name"],
		Tags:      tags,
		CreatedAt: awsv2.ToTime(nat.CreateTime),
	}
}

func loadBalancerDescriptor(lb elbtypes.LoadBalancer, region string, tags map[string]string) types.ResourceDescriptor {
	return types.ResourceDescriptor{
		ID:        awsv2.ToString(lb.LoadBalancerArn),
		Type:      types.ResourceLoadBalancer,
		Region:    region,
		Name:      awsv2.ToString(lb.LoadBalancerName),
		Tags:      tags,
		CreatedAt: awsv2.ToTime(lb.CreatedTime),
	}
}

func ec2TagMap(tags []ec2types.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		m[awsv2.ToString(tag.Key)] = awsv2.ToString(tag.Value)
	}
	return m
}

func isErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}
