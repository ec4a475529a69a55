// Package evaluator classifies resources as idle or active from time-series
// utilization metrics. Evaluation is pure: the same samples always produce
// the same verdict, and missing data never produces Idle.
package evaluator

import (
	"fmt"
	"strings"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// Evaluation is a verdict plus the human-readable reason behind it.
type Evaluation struct {
	Verdict types.Verdict
	Reason  string
}

// Evaluate applies the fixed per-type rule table to the given samples.
// Thresholds are strict: a value exactly at the threshold counts as active.
func Evaluate(resourceType types.ResourceType, samples []types.MetricSample) Evaluation {
	rule, ok := rules[resourceType]
	if !ok {
		return Evaluation{
			Verdict: types.VerdictIndeterminate,
			Reason:  fmt.Sprintf("no idle rule for resource type %q", resourceType),
		}
	}

	byMetric := groupByMetric(samples)

	var reasons []string
	idle := true
	for _, cond := range rule.conditions {
		value, points := aggregate(cond, byMetric)
		if points < rule.minDatapoints {
			return Evaluation{
				Verdict: types.VerdictIndeterminate,
				Reason: fmt.Sprintf("%s: %d datapoints, need at least %d",
					strings.Join(cond.metrics, "+"), points, rule.minDatapoints),
			}
		}

		if value < cond.threshold {
			reasons = append(reasons, fmt.Sprintf("%s %s %s below threshold %s",
				strings.Join(cond.metrics, "+"), cond.aggregate, cond.format(value), cond.format(cond.threshold)))
		} else {
			idle = false
			reasons = append(reasons, fmt.Sprintf("%s %s %s at or above threshold %s",
				strings.Join(cond.metrics, "+"), cond.aggregate, cond.format(value), cond.format(cond.threshold)))
		}
	}

	verdict := types.VerdictActive
	if idle {
		verdict = types.VerdictIdle
	}
	return Evaluation{Verdict: verdict, Reason: strings.Join(reasons, "; ")}
}

// groupByMetric buckets samples by metric name.
func groupByMetric(samples []types.MetricSample) map[string][]types.MetricSample {
	byMetric := make(map[string][]types.MetricSample, len(samples))
	for _, s := range samples {
		byMetric[s.MetricName] = append(byMetric[s.MetricName], s)
	}
	return byMetric
}

// aggregate combines the condition's metric series into a single value and
// returns the smallest datapoint count across the required series. A missing
// series counts as zero datapoints, which forces Indeterminate upstream.
func aggregate(cond condition, byMetric map[string][]types.MetricSample) (float64, int) {
	var total float64
	var count int
	minPoints := -1

	for _, name := range cond.metrics {
		series := byMetric[name]
		if minPoints < 0 || len(series) < minPoints {
			minPoints = len(series)
		}
		for _, s := range series {
			total += s.Value
			count++
		}
	}

	if minPoints < 0 {
		minPoints = 0
	}
	if cond.aggregate == aggAverage {
		if count == 0 {
			return 0, 0
		}
		return total / float64(count), minPoints
	}
	return total, minPoints
}
