package qpsimmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "qpixsim"
	subsystem = "mesh"
)

// Label names for mesh metrics.
const (
	labelRow       = "row"
	labelCol       = "col"
	labelWordType  = "word_type"
	labelFromState = "from_state"
	labelToState   = "to_state"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Mesh Run Metrics
// -------------------------------------------------------------------------

// Collector holds all Q-Pix mesh simulation Prometheus metrics.
//
// Metrics cover run-level observability:
//   - ActiveAsics tracks how many cells are outside the Idle state.
//   - DaqRecords counts bytes the DAQ node has filed, per word type.
//   - StateTransitions counts FSM state changes per cell, for spotting a
//     cell stuck oscillating between TransmitRemote and TransmitRemoteFull.
//   - FifoOverflows counts sticky FIFO overflow events per cell.
type Collector struct {
	// ActiveAsics tracks the number of cells currently outside StateIdle.
	ActiveAsics prometheus.Gauge

	// DaqRecords counts the total records the DAQ node has filed, labeled
	// by word type (DATA, EVTEND, REGREQ, REGRESP).
	DaqRecords *prometheus.CounterVec

	// StateTransitions counts FSM state transitions per cell. Each counter
	// is labeled with the old state and new state for precise alerting.
	StateTransitions *prometheus.CounterVec

	// FifoOverflows counts sticky FIFO overflow events per cell.
	FifoOverflows *prometheus.CounterVec

	// RunDuration reports the wall-clock simulated time reached so far, in
	// seconds.
	RunDuration prometheus.Gauge
}

// NewCollector creates a Collector with all mesh metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
//
// All metrics are created with the "qpixsim_mesh_" prefix (namespace_subsystem)
// to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ActiveAsics,
		c.DaqRecords,
		c.StateTransitions,
		c.FifoOverflows,
		c.RunDuration,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	cellLabels := []string{labelRow, labelCol}
	transitionLabels := []string{labelRow, labelCol, labelFromState, labelToState}

	return &Collector{
		ActiveAsics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_asics",
			Help:      "Number of mesh cells currently outside the Idle state.",
		}),

		DaqRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "daq_records_total",
			Help:      "Total records filed at the DAQ node, labeled by word type.",
		}, []string{labelWordType}),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total asic routing FSM state transitions.",
		}, transitionLabels),

		FifoOverflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fifo_overflows_total",
			Help:      "Total sticky FIFO overflow events, labeled by cell.",
		}, cellLabels),

		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_seconds",
			Help:      "Simulated wall-clock time reached so far, in seconds.",
		}),
	}
}

// -------------------------------------------------------------------------
// Asic Activity
// -------------------------------------------------------------------------

// SetActiveAsics sets the current count of non-Idle cells.
func (c *Collector) SetActiveAsics(n int) {
	c.ActiveAsics.Set(float64(n))
}

// SetRunDuration records the simulated time reached so far.
func (c *Collector) SetRunDuration(seconds float64) {
	c.RunDuration.Set(seconds)
}

// -------------------------------------------------------------------------
// DAQ Records
// -------------------------------------------------------------------------

// IncDaqRecords increments the DAQ record counter for wordType.
func (c *Collector) IncDaqRecords(wordType string) {
	c.DaqRecords.WithLabelValues(wordType).Inc()
}

// -------------------------------------------------------------------------
// State Transitions
// -------------------------------------------------------------------------

// RecordStateTransition increments the state transition counter with the
// cell coordinate and old/new state labels. Implements qpsim.StateRecorder,
// so Asic can report transitions without the simulation core importing this
// package.
func (c *Collector) RecordStateTransition(row, col int, from, to string) {
	c.StateTransitions.WithLabelValues(strconv.Itoa(row), strconv.Itoa(col), from, to).Inc()
}

// -------------------------------------------------------------------------
// FIFO Overflow
// -------------------------------------------------------------------------

// IncFifoOverflow increments the FIFO overflow counter for the given cell.
func (c *Collector) IncFifoOverflow(row, col int) {
	c.FifoOverflows.WithLabelValues(strconv.Itoa(row), strconv.Itoa(col)).Inc()
}
