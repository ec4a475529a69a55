package aws

import (
	"context"
	"fmt"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// EC2DeleteAPI is the slice of the EC2 client the deleter uses.
type EC2DeleteAPI interface {
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DeleteNatGateway(ctx context.Context, params *ec2.DeleteNatGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteNatGatewayOutput, error)
}

// ELBDeleteAPI is the slice of the ELBv2 client the deleter uses.
type ELBDeleteAPI interface {
	DeleteLoadBalancer(ctx context.Context, params *elasticloadbalancingv2.DeleteLoadBalancerInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DeleteLoadBalancerOutput, error)
}

// Deleter performs the physical deletion. It refuses to act on a
// confirmation token that does not name the resource, which catches wiring
// mistakes between the gate and the executor.
type Deleter struct {
	ec2 func(region string) EC2DeleteAPI
	elb func(region string) ELBDeleteAPI
}

// NewDeleter creates a deleter over the given base SDK config.
func NewDeleter(base awsv2.Config) *Deleter {
	return &Deleter{
		ec2: func(region string) EC2DeleteAPI { return ec2For(base, region) },
		elb: func(region string) ELBDeleteAPI { return elbFor(base, region) },
	}
}

// Delete destroys one resource.
func (d *Deleter) Delete(ctx context.Context, rt types.ResourceType, region, id, confirmationToken string) error {
	if !strings.HasPrefix(confirmationToken, id+"@") {
		return fmt.Errorf("confirmation token %q does not match resource %s", confirmationToken, id)
	}

	switch rt {
	case types.ResourceCompute:
		_, err := d.ec2(region).TerminateInstances(ctx, &ec2.TerminateInstancesInput{
			InstanceIds: []string{id},
		})
		if err != nil {
			return fmt.Errorf("failed to terminate instance %s: %w", id, err)
		}
		return nil

	case types.ResourceLoadBalancer:
		_, err := d.elb(region).DeleteLoadBalancer(ctx, &elasticloadbalancingv2.DeleteLoadBalancerInput{
			LoadBalancerArn: awsv2.String(id),
		})
		if err != nil {
			return fmt.Errorf("failed to delete load balancer %s: %w", id, err)
		}
		return nil

	case types.ResourceNatGateway:
		_, err := d.ec2(region).DeleteNatGateway(ctx, &ec2.DeleteNatGatewayInput{
			NatGatewayId: awsv2.String(id),
		})
		if err != nil {
			return fmt.Errorf("failed to delete NAT gateway %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("unknown resource type %q", rt)
}
