package types

import "time"

// Verdict classifies a resource's recent utilization.
type Verdict string

const (
	VerdictIdle   Verdict = "idle"
	VerdictActive Verdict = "active"
	// VerdictIndeterminate means required metric data was missing or too
	// sparse. Absence of data never counts as idle.
	VerdictIndeterminate Verdict = "indeterminate"
)

// VerdictRecord is a verdict with the time it was observed, as persisted on
// the resource record.
type VerdictRecord struct {
	Verdict    Verdict   `json:"verdict" dynamodbav:"verdict"`
	Reason     string    `json:"reason,omitempty" dynamodbav:"reason,omitempty"`
	ObservedAt time.Time `json:"observed_at" dynamodbav:"observed_at"`
}

// MetricSample is one aggregated datapoint from the metric source. Samples
// are transient; the engine never persists them.
type MetricSample struct {
	MetricName string    `json:"metric_name"`
	Statistic  string    `json:"statistic"`
	Unit       string    `json:"unit,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Value      float64   `json:"value"`
}
