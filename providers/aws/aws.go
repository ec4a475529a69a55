// Package aws implements the provider contracts against AWS: EC2, ELBv2 and
// NAT gateway inventory, CloudWatch metrics, CloudTrail creation events,
// EventBridge Scheduler deletion triggers, and SNS/SES notifications. Every
// component depends on a narrow slice of the SDK client it uses, so tests
// substitute fakes without touching the network.
package aws

import (
	"context"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// LoadBaseConfig resolves AWS credentials and settings from the default
// chain (env, shared config, instance role).
func LoadBaseConfig(ctx context.Context) (awsv2.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return awsv2.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// Per-region client factories. SDK v2 clients are cheap value wrappers over
// the shared HTTP client, so building one per call site is fine.

func ec2For(base awsv2.Config, region string) *ec2.Client {
	return ec2.NewFromConfig(base, func(o *ec2.Options) { o.Region = region })
}

func elbFor(base awsv2.Config, region string) *elasticloadbalancingv2.Client {
	return elasticloadbalancingv2.NewFromConfig(base, func(o *elasticloadbalancingv2.Options) { o.Region = region })
}

func cloudwatchFor(base awsv2.Config, region string) *cloudwatch.Client {
	return cloudwatch.NewFromConfig(base, func(o *cloudwatch.Options) { o.Region = region })
}

func cloudtrailFor(base awsv2.Config, region string) *cloudtrail.Client {
	return cloudtrail.NewFromConfig(base, func(o *cloudtrail.Options) { o.Region = region })
}

func schedulerFor(base awsv2.Config, region string) *scheduler.Client {
	return scheduler.NewFromConfig(base, func(o *scheduler.Options) { o.Region = region })
}

func snsFor(base awsv2.Config, region string) *sns.Client {
	return sns.NewFromConfig(base, func(o *sns.Options) { o.Region = region })
}

func sesFor(base awsv2.Config, region string) *sesv2.Client {
	return sesv2.NewFromConfig(base, func(o *sesv2.Options) { o.Region = region })
}
