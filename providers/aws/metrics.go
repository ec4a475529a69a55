package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/evaluator"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/providers"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// metricPeriod is the aggregation period for fetched datapoints. Hourly
// granularity keeps result sets small over a multi-day window while still
// giving the evaluator several points per series.
const metricPeriod = 3600

// CloudWatchAPI is the slice of the CloudWatch client the metric source needs.
type CloudWatchAPI interface {
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// Metrics fetches utilization samples from CloudWatch.
type Metrics struct {
	cw func(region string) CloudWatchAPI
}

// NewMetrics creates a metric source over the given base SDK config.
func NewMetrics(base awsv2.Config) *Metrics {
	return &Metrics{
		cw: func(region string) CloudWatchAPI { return cloudwatchFor(base, region) },
	}
}

// Query fetches every metric series the resource's idle rule needs, in one
// GetMetricData call. An empty result is a valid answer; the evaluator turns
// missing series into an Indeterminate verdict.
func (m *Metrics) Query(ctx context.Context, q providers.MetricQuery) ([]types.MetricSample, error) {
	names := evaluator.RequiredMetrics(q.Resource.Type)
	if len(names) == 0 {
		return nil, fmt.Errorf("no metrics defined for resource type %q", q.Resource.Type)
	}

	namespace, dimension, err := metricIdentity(q.Resource)
	if err != nil {
		return nil, err
	}

	queries := make([]cwtypes.MetricDataQuery, 0, len(names))
	idToName := make(map[string]string, len(names))
	idToStat := make(map[string]string, len(names))

	for i, name := range names {
		id := fmt.Sprintf("m%d", i)
		stat := evaluator.StatisticFor(q.Resource.Type, name)
		idToName[id] = name
		idToStat[id] = stat

		queries = append(queries, cwtypes.MetricDataQuery{
			Id: awsv2.String(id),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  awsv2.String(namespace),
					MetricName: awsv2.String(name),
					Dimensions: []cwtypes.Dimension{dimension},
				},
				Period: awsv2.Int32(metricPeriod),
				Stat:   awsv2.String(stat),
			},
		})
	}

	start := q.End.Add(-q.Window)
	input := &cloudwatch.GetMetricDataInput{
		StartTime:         awsv2.Time(start),
		EndTime:           awsv2.Time(q.End),
		MetricDataQueries: queries,
	}

	var samples []types.MetricSample
	paginator := cloudwatch.NewGetMetricDataPaginator(m.cw(q.Resource.Region), input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch metrics for %s: %w", q.Resource.ID, err)
		}

		for _, result := range page.MetricDataResults {
			id := awsv2.ToString(result.Id)
			name := idToName[id]
			stat := idToStat[id]

			for i := range result.Values {
				ts := result.Timestamps[i]
				samples = append(samples, types.MetricSample{
					MetricName: name,
					Statistic:  stat,
					Start:      ts,
					End:        ts.Add(metricPeriod * time.Second),
					Value:      result.Values[i],
				})
			}
		}
	}
	return samples, nil
}

// metricIdentity maps a resource to its CloudWatch namespace and dimension.
func metricIdentity(desc types.ResourceDescriptor) (string, cwtypes.Dimension, error) {
	switch desc.Type {
	case types.ResourceCompute:
		return "AWS/EC2", cwtypes.Dimension{
			Name:  awsv2.String("InstanceId"),
			Value: awsv2.String(desc.ID),
		}, nil

	case types.ResourceLoadBalancer:
		return "AWS/ApplicationELB", cwtypes.Dimension{
			Name:  awsv2.String("LoadBalancer"),
			Value: awsv2.String(loadBalancerDimension(desc.ID)),
		}, nil

	case types.ResourceNatGateway:
		return "AWS/NATGateway", cwtypes.Dimension{
			Name:  awsv2.String("NatGatewayId"),
			Value: awsv2.String(desc.ID),
		}, nil
	}
	return "", cwtypes.Dimension{}, fmt.Errorf("unknown resource type %q", desc.Type)
}

// loadBalancerDimension extracts the CloudWatch dimension value from a load
// balancer ARN: the "app/name/id" suffix after "loadbalancer/".
func loadBalancerDimension(arn string) string {
	const marker = ":loadbalancer/"
	if idx := strings.Index(arn, marker); idx >= 0 {
		return arn[idx+len(marker):]
	}
	return arn
}
