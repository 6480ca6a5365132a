package qpsim

// DaqNode is the distinguished mesh cell that terminates remote traffic
// instead of forwarding it: every byte reaching a DaqNode is filed into a
// DaqFifo and tallied by word type rather than queued for further routing.
// It embeds Asic to reuse its clock, Links, and Config machinery — the
// idiomatic substitute for the reference implementation's subclassing.
type DaqNode struct {
	Asic

	daqFifo       *DaqFifo
	receivedAsics map[[2]int]struct{}
}

// NewDaqNode constructs a DaqNode at (row, col). DAQ nodes default to a
// slower 30MHz oscillator, distinct from a regular Asic's 50MHz.
func NewDaqNode(row, col int, cfg Config, seed uint64, opts ...AsicOption) *DaqNode {
	a := newAsic(row, col, DefaultDaqOscillatorHz, cfg, seed, opts...)
	a.IsDaqNode = true
	a.reqID++ // one above the Asic default so the DAQ's own REGREQs never read as self-echoes
	return &DaqNode{
		Asic:          *a,
		daqFifo:       NewDaqFifo(DefaultFifoDepth),
		receivedAsics: make(map[[2]int]struct{}),
	}
}

// DaqFifo exposes the DAQ record FIFO for inspection.
func (d *DaqNode) DaqFifo() *DaqFifo { return d.daqFifo }

// ReceivedAsics returns the (row, col) coordinates of every Asic a byte has
// been received from so far, in no particular order.
func (d *DaqNode) ReceivedAsics() [][2]int {
	out := make([][2]int, 0, len(d.receivedAsics))
	for k := range d.receivedAsics {
		out = append(out, k)
	}
	return out
}

// Receive overrides Asic.Receive: a DaqNode never forwards or responds, it
// only records. REGREQ dedup still applies so a single broadcast command
// isn't double-counted if the mesh topology loops traffic back around.
func (d *DaqNode) Receive(e QueueEntry) ([]QueueEntry, error) {
	if !d.Links[e.IngressDir].Present {
		d.logger.Warn("receive on direction with no neighbor", "dir", e.IngressDir)
		return nil, nil
	}

	b := e.Byte
	if b.WordType == WordRegReq {
		if d.reqID == b.ReqID {
			return nil, nil
		}
		d.reqID = b.ReqID
	}

	d.receivedAsics[[2]int{int(b.OriginRow), int(b.OriginCol)}] = struct{}{}
	// DaqT is stamped from CalcTicks before UpdateTime advances the clock,
	// not after it as the reference implementation does — see DESIGN.md.
	d.daqFifo.Write(DaqRecord{
		DaqT:     d.CalcTicks(e.DeliveryTime),
		WordType: b.WordType,
		Row:      b.OriginRow,
		Col:      b.OriginCol,
		Byte:     b,
	})
	d.UpdateTime(e.DeliveryTime)
	return nil, nil
}

// Process overrides Asic.Process as a no-op: a DaqNode has no routing FSM
// to drive, only its clock, which Receive already advances on each delivery.
func (d *DaqNode) Process(float64) ([]QueueEntry, error) {
	return nil, nil
}

// Drain removes and returns every record currently queued in the DaqFifo,
// in FIFO order.
func (d *DaqNode) Drain() []DaqRecord {
	var out []DaqRecord
	for {
		r, ok := d.daqFifo.Read()
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out
}

// DataWords, EndWords, ReqWords, RespWords report the lifetime count of
// each word type the DaqFifo has tallied, regardless of how much has since
// been drained.
func (d *DaqNode) DataWords() int { return d.daqFifo.DataWords() }
func (d *DaqNode) EndWords() int  { return d.daqFifo.EndWords() }
func (d *DaqNode) ReqWords() int  { return d.daqFifo.ReqWords() }
func (d *DaqNode) RespWords() int { return d.daqFifo.RespWords() }
