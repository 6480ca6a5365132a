package qpsim_test

import (
	"testing"

	"github.com/dantte-lp/qpixsim/internal/qpsim"
)

func TestFifoWriteReadOrder(t *testing.T) {
	t.Parallel()

	f := qpsim.NewFifo(4)
	b1 := qpsim.NewDataByte(qpsim.WordData, 0, 0, 1, nil, nil)
	b2 := qpsim.NewDataByte(qpsim.WordData, 0, 0, 2, nil, nil)

	f.Write(b1)
	f.Write(b2)

	if got := f.CurSize(); got != 2 {
		t.Fatalf("CurSize = %d, want 2", got)
	}

	if got := f.Read(); got != b1 {
		t.Errorf("first Read did not return b1")
	}
	if got := f.Read(); got != b2 {
		t.Errorf("second Read did not return b2")
	}
	if got := f.Read(); got != nil {
		t.Errorf("Read on empty fifo = %v, want nil", got)
	}
}

// TestFifoSoftOverflow verifies overflow is soft: writes past maxDepth still
// succeed but the sticky Full flag is set and never clears.
func TestFifoSoftOverflow(t *testing.T) {
	t.Parallel()

	f := qpsim.NewFifo(2)
	for i := 0; i < 4; i++ {
		f.Write(qpsim.NewDataByte(qpsim.WordData, 0, 0, uint32(i), nil, nil))
	}

	if !f.Full() {
		t.Error("Full() = false, want true after exceeding maxDepth")
	}
	if got := f.TotalWrites(); got != 4 {
		t.Errorf("TotalWrites = %d, want 4", got)
	}
	if got := f.MaxSize(); got != 4 {
		t.Errorf("MaxSize = %d, want 4", got)
	}

	f.Read()
	f.Read()
	f.Read()
	f.Read()
	if !f.Full() {
		t.Error("Full() cleared after drain, want sticky true")
	}
}

func TestDaqFifoTalliesByWordType(t *testing.T) {
	t.Parallel()

	f := qpsim.NewDaqFifo(16)
	f.Write(qpsim.DaqRecord{WordType: qpsim.WordData, Byte: &qpsim.Byte{}})
	f.Write(qpsim.DaqRecord{WordType: qpsim.WordData, Byte: &qpsim.Byte{}})
	f.Write(qpsim.DaqRecord{WordType: qpsim.WordEvtEnd, Byte: &qpsim.Byte{}})
	f.Write(qpsim.DaqRecord{WordType: qpsim.WordRegReq, Byte: &qpsim.Byte{}})
	f.Write(qpsim.DaqRecord{WordType: qpsim.WordRegResp, Byte: &qpsim.Byte{}})

	if got := f.DataWords(); got != 2 {
		t.Errorf("DataWords = %d, want 2", got)
	}
	if got := f.EndWords(); got != 1 {
		t.Errorf("EndWords = %d, want 1", got)
	}
	if got := f.ReqWords(); got != 1 {
		t.Errorf("ReqWords = %d, want 1", got)
	}
	if got := f.RespWords(); got != 1 {
		t.Errorf("RespWords = %d, want 1", got)
	}

	// Tallies are lifetime counts — draining must not reduce them.
	for {
		if _, ok := f.Read(); !ok {
			break
		}
	}
	if got := f.DataWords(); got != 2 {
		t.Errorf("DataWords after drain = %d, want 2 (lifetime tally)", got)
	}
}

func TestDaqRecordTimestamp(t *testing.T) {
	t.Parallel()

	r := qpsim.DaqRecord{Byte: &qpsim.Byte{TimeStamp: 42}}
	if got := r.Timestamp(); got != 42 {
		t.Errorf("Timestamp() = %d, want 42", got)
	}
}
