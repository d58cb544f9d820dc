package sync

import (
	"time"

	"github.com/beautystore/beautypos/domain"
)

// MetricsCollector receives observability hooks from the engine. All
// methods must be safe for concurrent use and must not block.
type MetricsCollector interface {
	// RecordApply is called once per locally applied operation.
	RecordApply(collection domain.Collection, kind domain.OperationKind)

	// RecordReplay is called per remote round-trip attempt, push or drain.
	RecordReplay(success bool)

	// RecordStateChange is called when the connectivity state changes.
	RecordStateChange(state State)

	// RecordDrainDuration is called with the wall time of each drain pass.
	RecordDrainDuration(d time.Duration)
}

// NoOpMetricsCollector discards all metrics. It is the default.
type NoOpMetricsCollector struct{}

var _ MetricsCollector = (*NoOpMetricsCollector)(nil)

func (*NoOpMetricsCollector) RecordApply(domain.Collection, domain.OperationKind) {}
func (*NoOpMetricsCollector) RecordReplay(bool)                                   {}
func (*NoOpMetricsCollector) RecordStateChange(State)                             {}
func (*NoOpMetricsCollector) RecordDrainDuration(time.Duration)                   {}
