package qpsimmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	qpsimmetrics "github.com/dantte-lp/qpixsim/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := qpsimmetrics.NewCollector(reg)

	if c.ActiveAsics == nil {
		t.Error("ActiveAsics is nil")
	}
	if c.DaqRecords == nil {
		t.Error("DaqRecords is nil")
	}
	if c.StateTransitions == nil {
		t.Error("StateTransitions is nil")
	}
	if c.FifoOverflows == nil {
		t.Error("FifoOverflows is nil")
	}
	if c.RunDuration == nil {
		t.Error("RunDuration is nil")
	}

	// Verify all metrics are registered by gathering them.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	// No data yet, so families may be empty -- but registration must not panic.
	_ = families
}

func TestActiveAsicsAndRunDuration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := qpsimmetrics.NewCollector(reg)

	c.SetActiveAsics(5)
	if val := gaugeValue(t, c.ActiveAsics); val != 5 {
		t.Errorf("ActiveAsics = %v, want 5", val)
	}

	c.SetActiveAsics(0)
	if val := gaugeValue(t, c.ActiveAsics); val != 0 {
		t.Errorf("ActiveAsics = %v, want 0", val)
	}

	c.SetRunDuration(1.5)
	if val := gaugeValue(t, c.RunDuration); val != 1.5 {
		t.Errorf("RunDuration = %v, want 1.5", val)
	}
}

func TestDaqRecordCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := qpsimmetrics.NewCollector(reg)

	c.IncDaqRecords("DATA")
	c.IncDaqRecords("DATA")
	c.IncDaqRecords("EVTEND")

	if val := counterVecValue(t, c.DaqRecords, "DATA"); val != 2 {
		t.Errorf("DaqRecords[DATA] = %v, want 2", val)
	}
	if val := counterVecValue(t, c.DaqRecords, "EVTEND"); val != 1 {
		t.Errorf("DaqRecords[EVTEND] = %v, want 1", val)
	}
}

func TestStateTransition(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := qpsimmetrics.NewCollector(reg)

	// Record an Idle->TransmitLocal transition at cell (1,2).
	c.RecordStateTransition(1, 2, "Idle", "TransmitLocal")

	val := counterVecValue(t, c.StateTransitions, "1", "2", "Idle", "TransmitLocal")
	if val != 1 {
		t.Errorf("StateTransitions(Idle->TransmitLocal) = %v, want 1", val)
	}

	// Record a TransmitLocal->Finish transition.
	c.RecordStateTransition(1, 2, "TransmitLocal", "Finish")

	val = counterVecValue(t, c.StateTransitions, "1", "2", "TransmitLocal", "Finish")
	if val != 1 {
		t.Errorf("StateTransitions(TransmitLocal->Finish) = %v, want 1", val)
	}

	// Record another Idle->TransmitLocal -- counter should be 2.
	c.RecordStateTransition(1, 2, "Idle", "TransmitLocal")

	val = counterVecValue(t, c.StateTransitions, "1", "2", "Idle", "TransmitLocal")
	if val != 2 {
		t.Errorf("StateTransitions(Idle->TransmitLocal) = %v, want 2", val)
	}
}

func TestFifoOverflows(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := qpsimmetrics.NewCollector(reg)

	c.IncFifoOverflow(3, 3)
	c.IncFifoOverflow(3, 3)

	val := counterVecValue(t, c.FifoOverflows, "3", "3")
	if val != 2 {
		t.Errorf("FifoOverflows = %v, want 2", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a plain Gauge.
func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

// counterVecValue reads the current value of a CounterVec with the given labels.
func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
