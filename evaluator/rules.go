package evaluator

import (
	"fmt"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// Metric names expected from the metric source.
const (
	MetricCPUUtilization     = "CPUUtilization"
	MetricNetworkIn          = "NetworkIn"
	MetricNetworkOut         = "NetworkOut"
	MetricRequestCount       = "RequestCount"
	MetricConnectionAttempts = "ConnectionAttemptCount"
)

const mebibyte = 1024 * 1024

type aggKind string

const (
	aggAverage aggKind = "avg"
	aggSum     aggKind = "sum"
)

// condition is one thresholded comparison. All series named in metrics are
// combined before comparing.
type condition struct {
	metrics   []string
	aggregate aggKind
	threshold float64
	unit      string
}

func (c condition) format(v float64) string {
	switch c.unit {
	case "percent":
		return fmt.Sprintf("%.2f%%", v)
	case "bytes":
		return fmt.Sprintf("%.2fMiB", v/mebibyte)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// rule is the fixed idle rule for one resource type. A resource is idle only
// if every condition holds strictly below its threshold.
type rule struct {
	conditions    []condition
	minDatapoints int
}

// The rule table is fixed in the engine and not externally configurable:
//   - Compute: average CPU < 10% AND summed network in+out < 5 MiB.
//   - LoadBalancer: summed request count < 1000 over the window.
//   - NatGateway: summed connection attempts < 7 over the window.
var rules = map[types.ResourceType]rule{
	types.ResourceCompute: {
		minDatapoints: 1,
		conditions: []condition{
			{metrics: []string{MetricCPUUtilization}, aggregate: aggAverage, threshold: 10, unit: "percent"},
			{metrics: []string{MetricNetworkIn, MetricNetworkOut}, aggregate: aggSum, threshold: 5 * mebibyte, unit: "bytes"},
		},
	},
	types.ResourceLoadBalancer: {
		minDatapoints: 1,
		conditions: []condition{
			{metrics: []string{MetricRequestCount}, aggregate: aggSum, threshold: 1000},
		},
	},
	types.ResourceNatGateway: {
		minDatapoints: 1,
		conditions: []condition{
			{metrics: []string{MetricConnectionAttempts}, aggregate: aggSum, threshold: 7},
		},
	},
}

// RequiredMetrics returns the metric series the rule table needs for a type.
// The metric source uses this to build its query.
func RequiredMetrics(resourceType types.ResourceType) []string {
	r, ok := rules[resourceType]
	if !ok {
		return nil
	}
	var names []string
	for _, cond := range r.conditions {
		names = append(names, cond.metrics...)
	}
	return names
}

// StatisticFor returns the aggregation statistic the metric source should
// request for a given metric series.
func StatisticFor(resourceType types.ResourceType, metricName string) string {
	r, ok := rules[resourceType]
	if !ok {
		return "Sum"
	}
	for _, cond := range r.conditions {
		for _, name := range cond.metrics {
			if name == metricName {
				if cond.aggregate == aggAverage {
					return "Average"
				}
				return "Sum"
			}
		}
	}
	return "Sum"
}
