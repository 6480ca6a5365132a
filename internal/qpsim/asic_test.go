package qpsim_test

import (
	"testing"

	"github.com/dantte-lp/qpixsim/internal/qpsim"
)

func TestNewAsicStartsIdle(t *testing.T) {
	t.Parallel()

	a := qpsim.NewAsic(0, 0, qpsim.DefaultConfig(qpsim.North), 1)
	if a.State != qpsim.StateIdle {
		t.Errorf("initial State = %s, want Idle", a.State)
	}
	if a.LocalFifo().CurSize() != 0 {
		t.Errorf("initial local fifo size = %d, want 0", a.LocalFifo().CurSize())
	}
	history := a.StateHistory()
	if len(history) != 1 || history[0].State != qpsim.StateIdle {
		t.Errorf("initial state history = %v, want single Idle entry", history)
	}
}

func TestCalcTicksIsMonotonic(t *testing.T) {
	t.Parallel()

	a := qpsim.NewAsic(0, 0, qpsim.DefaultConfig(qpsim.North), 7)
	t1 := a.CalcTicks(0.001)
	t2 := a.CalcTicks(0.002)
	if t2 <= t1 {
		t.Errorf("CalcTicks not monotonic: t1=%d t2=%d", t1, t2)
	}
}

// TestReceiveOnAbsentDirectionIsDropped verifies Receive silently drops (no
// error, no outbound entries) a delivery whose ingress direction has no
// wired neighbor, rather than panicking on the unpopulated Link.
func TestReceiveOnAbsentDirectionIsDropped(t *testing.T) {
	t.Parallel()

	a := qpsim.NewAsic(0, 0, qpsim.DefaultConfig(qpsim.North), 1)
	out, err := a.Receive(qpsim.QueueEntry{
		IngressDir: qpsim.North, // (0,0) was built standalone, has no Links wired
		Byte:       qpsim.NewDataByte(qpsim.WordData, 1, 1, 0, nil, nil),
	})
	if err != nil {
		t.Fatalf("Receive returned error: %v", err)
	}
	if out != nil {
		t.Errorf("Receive returned outbound entries for a dropped delivery: %v", out)
	}
}

// TestReceiveRegReqDedup verifies a second REGREQ with the same ReqID is
// silently ignored, the broadcast-dedup guard against routing loops.
func TestReceiveRegReqDedup(t *testing.T) {
	t.Parallel()

	mesh, err := qpsim.NewMesh(1, 2, 0, 0, qpsim.DefaultConfig(qpsim.North), 1)
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	asic, err := mesh.AsicAt(0, 1)
	if err != nil {
		t.Fatalf("AsicAt: %v", err)
	}

	req := qpsim.NewRegReq(0, 1, false, false, false, false, 0, 1, 42, nil)
	first, err := asic.Receive(qpsim.QueueEntry{IngressDir: qpsim.West, Byte: req, DeliveryTime: 0, Command: qpsim.CommandInterrogate})
	if err != nil {
		t.Fatalf("first Receive: %v", err)
	}
	if asic.State != qpsim.StateTransmitLocal && asic.State != qpsim.StateTransmitRemote {
		t.Errorf("state after first REGREQ = %s, want TransmitLocal or TransmitRemote", asic.State)
	}

	state := asic.State
	second, err := asic.Receive(qpsim.QueueEntry{IngressDir: qpsim.West, Byte: req, DeliveryTime: 0.0001, Command: qpsim.CommandInterrogate})
	if err != nil {
		t.Fatalf("second Receive: %v", err)
	}
	if second != nil {
		t.Errorf("duplicate REGREQ produced outbound entries: %v", second)
	}
	if asic.State != state {
		t.Errorf("duplicate REGREQ changed state from %s to %s", state, asic.State)
	}
	_ = first
}

// TestReceiveLearnsDirMaskFromIngress verifies a non-manual-routing Asic
// adopts the REGREQ's ingress direction as its DirMask, the dynamic
// direction-learning behavior. Uses a 1x3 mesh so the middle Asic has a
// real East neighbor to receive from.
func TestReceiveLearnsDirMaskFromIngress(t *testing.T) {
	t.Parallel()

	cfg := qpsim.DefaultConfig(qpsim.North)
	cfg.ManRoute = false
	mesh, err := qpsim.NewMesh(1, 3, 0, 0, cfg, 1)
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	a, err := mesh.AsicAt(0, 1)
	if err != nil {
		t.Fatalf("AsicAt: %v", err)
	}

	req := qpsim.NewRegReq(0, 1, false, false, false, false, 0, 1, 1, nil)
	if _, err := a.Receive(qpsim.QueueEntry{IngressDir: qpsim.East, Byte: req}); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if a.Config.DirMask != qpsim.East {
		t.Errorf("DirMask = %s, want East (learned from ingress)", a.Config.DirMask)
	}
}

// TestReceiveManRouteIgnoresIngress verifies ManRoute disables dynamic
// DirMask learning — the configured DirMask survives a REGREQ from a
// different direction.
func TestReceiveManRouteIgnoresIngress(t *testing.T) {
	t.Parallel()

	cfg := qpsim.DefaultConfig(qpsim.North)
	cfg.ManRoute = true
	mesh, err := qpsim.NewMesh(1, 3, 0, 0, cfg, 1)
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	a, err := mesh.AsicAt(0, 1)
	if err != nil {
		t.Fatalf("AsicAt: %v", err)
	}

	req := qpsim.NewRegReq(0, 1, false, false, false, false, 0, 1, 1, nil)
	if _, err := a.Receive(qpsim.QueueEntry{IngressDir: qpsim.East, Byte: req}); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if a.Config.DirMask != qpsim.North {
		t.Errorf("DirMask = %s, want North (ManRoute must not learn)", a.Config.DirMask)
	}
}

// TestInjectHitsRejectsMismatchedChannels verifies InjectHits rejects a
// channels slice whose length disagrees with times.
func TestInjectHitsRejectsMismatchedChannels(t *testing.T) {
	t.Parallel()

	a := qpsim.NewAsic(0, 0, qpsim.DefaultConfig(qpsim.North), 1)
	err := a.InjectHits([]float64{0.001, 0.002}, [][]uint8{{1}})
	if err == nil {
		t.Fatal("InjectHits with mismatched lengths returned nil error")
	}
}

// TestInjectHitsDefaultChannels verifies a nil channels slice defaults each
// hit to channels {1,3,8}.
func TestInjectHitsDefaultChannels(t *testing.T) {
	t.Parallel()

	cfg := qpsim.DefaultConfig(qpsim.West)
	mesh, err := qpsim.NewMesh(1, 2, 0, 0, cfg, 1)
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	a, err := mesh.AsicAt(0, 1)
	if err != nil {
		t.Fatalf("AsicAt: %v", err)
	}
	if err := a.InjectHits([]float64{0.0001}, nil); err != nil {
		t.Fatalf("InjectHits: %v", err)
	}

	req := qpsim.NewRegReq(0, 1, false, false, false, false, 0, 1, 1, nil)
	if _, err := a.Receive(qpsim.QueueEntry{IngressDir: qpsim.West, Byte: req, DeliveryTime: 0.001, Command: qpsim.CommandInterrogate}); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if a.LocalFifo().CurSize() == 0 {
		t.Fatal("interrogation did not read the injected hit into the local fifo")
	}

	want := uint16((1 << 1) | (1 << 3) | (1 << 8))
	b := a.LocalFifo().Read()
	if b.ChannelMask != want {
		t.Errorf("ChannelMask = %#x, want %#x (default {1,3,8})", b.ChannelMask, want)
	}
}

// TestTimedOutSendRemoteDrainsOnForcedMode verifies the SendRemote
// configuration flag forces a drain of the remote fifo from Process itself,
// and that the dwell semantics toggle to an empty-fifo check rather than a
// wall-clock deadline once the forced drain begins.
func TestTimedOutSendRemoteDrainsOnForcedMode(t *testing.T) {
	t.Parallel()

	cfg := qpsim.DefaultConfig(qpsim.West)
	cfg.SendRemote = true
	mesh, err := qpsim.NewMesh(1, 2, 0, 0, cfg, 1)
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	asic, err := mesh.AsicAt(0, 1)
	if err != nil {
		t.Fatalf("AsicAt: %v", err)
	}

	asic.RemoteFifo().Write(qpsim.NewDataByte(qpsim.WordData, 1, 1, 0, nil, nil))

	out, err := asic.Process(0.01)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Process produced %d outbound entries, want 1", len(out))
	}
	if asic.RemoteFifo().CurSize() != 0 {
		t.Errorf("remote fifo size after drain = %d, want 0", asic.RemoteFifo().CurSize())
	}
	if asic.State != qpsim.StateTransmitRemote {
		t.Errorf("final state = %s, want TransmitRemote", asic.State)
	}
}
