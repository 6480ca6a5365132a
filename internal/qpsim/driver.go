package qpsim

import (
	"errors"
	"fmt"
	"log/slog"
)

// Target addresses a single Asic cell for Driver.Schedule.
type Target struct {
	Row, Col int
}

// Driver owns the EventQueue and Mesh together, and is the only component
// that resolves a QueueEntry's destination coordinate into an actual Node.
// Links and Asics never hold a reference to the Mesh or to each other —
// this is where the cyclic topology gets resolved.
type Driver struct {
	mesh     *Mesh
	queue    *EventQueue
	now      float64
	logger   *slog.Logger
	reqIDSeq int64
}

// NewDriver builds a Driver over an already-constructed Mesh.
func NewDriver(mesh *Mesh, opts ...DriverOption) *Driver {
	d := &Driver{
		mesh:   mesh,
		queue:  NewEventQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DriverOption configures optional Driver collaborators at construction.
type DriverOption func(*Driver)

// WithDriverLogger attaches a structured logger to the Driver.
func WithDriverLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Now returns the Driver's current simulation time — the delivery time of
// the most recently processed event, or zero before the first RunUntil.
func (d *Driver) Now() float64 { return d.now }

// Mesh returns the Driver's underlying Mesh.
func (d *Driver) Mesh() *Mesh { return d.mesh }

// Schedule seeds one REGREQ delivery addressed to target, carrying cmd, at
// absolute time t. cmd selects the REGREQ's OpWrite/OpRead tag: RegWrite
// sets OpWrite (cfg is the payload the target Asic applies), RegRead
// sets OpRead (cfg is ignored), and everything else — Interrogate,
// HardInterrogate, Calibrate — leaves both clear so Receive dispatches on
// cmd itself instead of treating it as a register access. The entry is
// injected as if arriving from whichever cardinal direction target already
// has a wired neighbor in — Receive requires a Present link on the ingress
// direction, so an externally-seeded command has to enter through one of
// the cell's real neighbors. ErrNoNeighbor is returned only for a cell with
// no neighbors at all (a 1x1 mesh).
func (d *Driver) Schedule(cmd Command, target Target, cfg *Config, t float64) error {
	if _, err := d.mesh.NodeAt(target.Row, target.Col); err != nil {
		return fmt.Errorf("driver schedule: %w", err)
	}

	ingress, ok := d.mesh.FirstPresentDirection(target.Row, target.Col)
	if !ok {
		return fmt.Errorf("driver schedule: %w", ErrNoNeighbor)
	}

	opWrite := cmd == CommandRegWrite
	opRead := cmd == CommandRegRead
	b := NewRegReq(uint8(target.Row), uint8(target.Col), false, true, opWrite, opRead,
		uint8(target.Row), uint8(target.Col), d.nextReqID(), cfg)

	d.queue.Push(&QueueEntry{
		DestRow:      target.Row,
		DestCol:      target.Col,
		IngressDir:   ingress,
		Byte:         b,
		DeliveryTime: t,
		Command:      cmd,
	})
	return nil
}

// nextReqID hands out a monotonically increasing REGREQ identifier, scoped
// to this Driver, distinguishing broadcasts so Receive's dedup logic can
// tell them apart. Keeping the counter on Driver rather than package-level
// keeps multiple Drivers (e.g. parallel test runs) from perturbing each
// other's reqID sequence and breaking run reproducibility.
func (d *Driver) nextReqID() int64 {
	d.reqIDSeq++
	return d.reqIDSeq
}

// RunUntil drains the EventQueue and advances every Node's Process loop
// until no event remains with DeliveryTime <= endTime. Processing order per
// tick: pop the earliest QueueEntry, deliver it via the destination Node's
// Receive, push whatever it returns, then call Process on every Node up to
// that event's DeliveryTime so FIFOs drain between deliveries rather than
// only at the end of the run.
func (d *Driver) RunUntil(endTime float64) error {
	for {
		entry := d.queue.Peek()
		if entry == nil || entry.DeliveryTime > endTime {
			if err := d.processAll(endTime); err != nil {
				return err
			}
			if next := d.queue.Peek(); next == nil || next.DeliveryTime > endTime {
				return nil
			}
			continue
		}
		entry = d.queue.Pop()
		d.now = entry.DeliveryTime

		node, err := d.mesh.NodeAt(entry.DestRow, entry.DestCol)
		if err != nil {
			return fmt.Errorf("driver run: %w", err)
		}

		out, err := node.Receive(*entry)
		if err != nil {
			return fmt.Errorf("driver run: receive at (%d,%d): %w", entry.DestRow, entry.DestCol, err)
		}
		for _, e := range out {
			e := e
			d.queue.Push(&e)
		}

		if err := d.processAll(d.now); err != nil {
			return err
		}
	}
}

// processAll calls Process on every Node up to now, re-queueing whatever
// outbound entries it produces. ErrUndefinedState is logged and the run
// goes on (the Asic has already reset itself to Idle); any other Process
// error aborts the run.
func (d *Driver) processAll(now float64) error {
	var produced []*QueueEntry
	var firstErr error
	d.mesh.Each(func(row, col int, n Node) {
		if firstErr != nil {
			return
		}
		out, err := n.Process(now)
		if errors.Is(err, ErrUndefinedState) {
			d.logger.Warn("node process error", "row", row, "col", col, "err", err)
			return
		}
		if err != nil {
			firstErr = fmt.Errorf("driver run: process at (%d,%d): %w", row, col, err)
			return
		}
		for _, e := range out {
			e := e
			produced = append(produced, &e)
		}
	})
	if firstErr != nil {
		return firstErr
	}
	for _, e := range produced {
		d.queue.Push(e)
	}
	return nil
}
