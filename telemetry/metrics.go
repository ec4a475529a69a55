package telemetry

import "go.opentelemetry.io/otel/metric"

// EngineMetrics holds the lifecycle engine's instruments.
type EngineMetrics struct {
	// Counters
	ResourcesScanned metric.Int64Counter
	Verdicts         metric.Int64Counter
	Transitions      metric.Int64Counter
	VersionConflicts metric.Int64Counter
	Deletions        metric.Int64Counter
	GateAborts       metric.Int64Counter

	// Histograms
	PassDuration metric.Float64Histogram
}

// InitEngineMetrics initializes all engine instruments on the given meter.
func InitEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	m := &EngineMetrics{}

	if err := m.initCounters(meter); err != nil {
		return nil, err
	}
	return m, m.initHistograms(meter)
}

func (m *EngineMetrics) initCounters(meter metric.Meter) error {
	var err error

	m.ResourcesScanned, err = meter.Int64Counter(
		"costopt.resources.scanned.total",
		metric.WithDescription("Total number of resources evaluated"),
		metric.WithUnit("resources"),
	)
	if err != nil {
		return err
	}

	m.Verdicts, err = meter.Int64Counter(
		"costopt.verdicts.total",
		metric.WithDescription("Total number of idle verdicts by outcome"),
		metric.WithUnit("verdicts"),
	)
	if err != nil {
		return err
	}

	m.Transitions, err = meter.Int64Counter(
		"costopt.transitions.total",
		metric.WithDescription("Total number of lifecycle transitions"),
		metric.WithUnit("transitions"),
	)
	if err != nil {
		return err
	}

	m.VersionConflicts, err = meter.Int64Counter(
		"costopt.store.version_conflicts.total",
		metric.WithDescription("Total number of optimistic-write conflicts"),
		metric.WithUnit("conflicts"),
	)
	if err != nil {
		return err
	}

	m.Deletions, err = meter.Int64Counter(
		"costopt.deletions.total",
		metric.WithDescription("Total number of resources deleted"),
		metric.WithUnit("resources"),
	)
	if err != nil {
		return err
	}

	m.GateAborts, err = meter.Int64Counter(
		"costopt.gate.aborts.total",
		metric.WithDescription("Total number of deletions aborted by the safety gate"),
		metric.WithUnit("aborts"),
	)
	return err
}

func (m *EngineMetrics) initHistograms(meter metric.Meter) error {
	var err error

	m.PassDuration, err = meter.Float64Histogram(
		"costopt.pass.duration.seconds",
		metric.WithDescription("Duration of scan passes"),
		metric.WithUnit("s"),
	)
	return err
}
