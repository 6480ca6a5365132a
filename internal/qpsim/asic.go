package qpsim

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
)

// StateRecorder receives Asic FSM state transitions for observability.
// internal/metrics implements this without qpsim importing it back — the
// simulation core stays free of the ambient stack.
type StateRecorder interface {
	RecordStateTransition(row, col int, from, to string)
}

// StateTransition is one entry in an Asic's state-history log, used by
// tests to assert the FSM walked the expected path.
type StateTransition struct {
	State   State
	RelTime float64
	AbsTime float64
}

// pendingHit is one entry in an Asic's sorted injected-hit queue.
type pendingHit struct {
	time float64
	mask uint16
}

// Asic is one Q-Pix readout chip: a clock, a routing FSM, local/remote
// FIFOs, and four cardinal Links. DaqNode embeds Asic and overrides
// Receive/Process to behave as the distinguished sink.
type Asic struct {
	Row, Col int
	FOsc     float64
	TOsc     float64

	RandomRate float64
	rng        *rand.Rand

	Config Config

	AbsTimeNow  float64
	RelTimeNow  float64
	startTime   float64
	RelTicksNow uint64

	lastAbsHitTime [DefaultChannelCount]float64

	State      State
	stateTimes []StateTransition

	IsDaqNode bool
	reqID     int64
	intID     int64
	intTick   uint32
	command   Command

	localFifo  *Fifo
	remoteFifo *Fifo
	Links      [4]Link

	pending []pendingHit

	timeoutStart  float64
	pTimeoutStart float64
	transferTime  float64 // reference full-byte duration, default-ticks based

	logger   *slog.Logger
	recorder StateRecorder
}

// AsicOption configures optional collaborators on an Asic at construction.
type AsicOption func(*Asic)

// WithLogger attaches a structured logger. A nil logger defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) AsicOption {
	return func(a *Asic) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithStateRecorder attaches a StateRecorder for FSM transition metrics.
func WithStateRecorder(r StateRecorder) AsicOption {
	return func(a *Asic) { a.recorder = r }
}

// newAsic builds the common Asic fields shared by regular Asics and the
// embedded base of DaqNode.
func newAsic(row, col int, fOsc float64, cfg Config, seed uint64, opts ...AsicOption) *Asic {
	tOsc := 1.0 / fOsc
	rng := newCellRNG(seed, row, col)
	phase := randomPhase(rng, tOsc)

	a := &Asic{
		Row:          row,
		Col:          col,
		FOsc:         fOsc,
		TOsc:         tOsc,
		RandomRate:   DefaultRandomRate,
		rng:          rng,
		Config:       cfg,
		RelTimeNow:   phase,
		startTime:    phase,
		State:        StateIdle,
		reqID:        -1,
		intID:        -1,
		localFifo:    NewFifo(DefaultFifoDepth),
		remoteFifo:   NewFifo(DefaultFifoDepth),
		transferTime: FixedTransferTicks * tOsc,
		logger:       slog.Default(),
	}
	a.stateTimes = append(a.stateTimes, StateTransition{State: a.State, RelTime: a.RelTimeNow, AbsTime: a.AbsTimeNow})
	for i := range a.Links {
		a.Links[i] = newLink(a.transferTime)
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("row", row, "col", col)
	return a
}

// NewAsic constructs a regular (non-DAQ) Asic.
func NewAsic(row, col int, cfg Config, seed uint64, opts ...AsicOption) *Asic {
	return newAsic(row, col, DefaultAsicOscillatorHz, cfg, seed, opts...)
}

// LocalFifo exposes the local hit FIFO for inspection.
func (a *Asic) LocalFifo() *Fifo { return a.localFifo }

// RemoteFifo exposes the remote forwarding FIFO for inspection.
func (a *Asic) RemoteFifo() *Fifo { return a.remoteFifo }

// StateHistory returns a copy of the recorded state-transition log.
func (a *Asic) StateHistory() []StateTransition {
	out := make([]StateTransition, len(a.stateTimes))
	copy(out, a.stateTimes)
	return out
}

// eventFor finds the Event that fsmTable maps from state "from" to state
// "to", if any. changeState uses this to verify every runtime transition it
// makes against the pure transition table rather than picking states ad hoc.
func eventFor(from, to State) (Event, bool) {
	for se, next := range fsmTable {
		if se.state == from && next == to {
			return se.event, true
		}
	}
	return 0, false
}

// changeState transitions the FSM, recording the dwell-timer anchor and a
// state-history entry on any actual change. Every transition is checked
// against fsmTable via ApplyEvent; a transition with no corresponding table
// entry still happens (Asic's guard logic is the source of truth) but is
// logged, since it means the table is missing an edge the implementation
// actually takes.
func (a *Asic) changeState(newState State) {
	if newState == StateTransmitRemote && (a.State == StateFinish || a.State == StateIdle) {
		a.timeoutStart = a.AbsTimeNow
	}
	if a.State == newState {
		return
	}
	old := a.State
	if ev, ok := eventFor(old, newState); ok {
		if confirmed, tableOK := ApplyEvent(old, ev); !tableOK || confirmed != newState {
			a.logger.Warn("fsm table disagrees with runtime transition", "from", old, "to", newState)
		}
	} else {
		a.logger.Debug("state transition has no fsm table entry", "from", old, "to", newState)
	}
	a.State = newState
	a.stateTimes = append(a.stateTimes, StateTransition{State: newState, RelTime: a.RelTimeNow, AbsTime: a.AbsTimeNow})
	if a.recorder != nil {
		a.recorder.RecordStateTransition(a.Row, a.Col, old.String(), newState.String())
	}
	a.logger.Debug("state transition", "from", old, "to", newState)
}

// CalcTicks computes the 32-bit tick-count timestamp for absTime, anchored
// to this Asic's own random start phase rather than its current relative
// time.
func (a *Asic) CalcTicks(absTime float64) uint32 {
	cycles := math.Floor((absTime-a.startTime)/a.TOsc) + 1
	return uint32(cycles)
}

// updateTimeCore is the monotonic clock advance shared by every UpdateTime
// variant: a no-op if absTime has already been passed.
func (a *Asic) updateTimeCore(absTime float64) {
	if absTime <= a.AbsTimeNow {
		return
	}
	cycles := math.Floor((absTime-a.RelTimeNow)/a.TOsc) + 1
	a.AbsTimeNow = absTime
	a.RelTimeNow += cycles * a.TOsc
	a.RelTicksNow += uint64(cycles)
}

// UpdateTime advances the clock to absTime with no link side effect. This
// is the path DaqNode uses on every receive, and the path TransmitRemote
// processing uses while waiting out its dwell timer.
func (a *Asic) UpdateTime(absTime float64) {
	a.updateTimeCore(absTime)
}

// updateTimeTx advances the clock and marks Links[dir]'s transmitter busy,
// retrying once against an overlapping send before raising ErrLinkBusy.
// The clock itself always advances against the original absTime, not the
// corrected send time — preserved from the reference semantics even though
// it means the returned delivery time can exceed the Asic's own advanced
// clock.
func (a *Asic) updateTimeTx(absTime float64, dir Direction) (float64, error) {
	link := &a.Links[dir]
	transT := absTime
	if link.Send(absTime) {
		retryT := link.TxBusyUntil() + link.transferTime + a.TOsc
		if link.Send(retryT) {
			return 0, fmt.Errorf("asic (%d,%d) dir %s: %w", a.Row, a.Col, dir, ErrLinkBusy)
		}
		transT = retryT
	}
	a.updateTimeCore(absTime)
	return transT, nil
}

// buildOutEntry constructs the outbound QueueEntry for a byte leaving this
// Asic in direction dir, addressed to the neighbor the Link resolves to.
func (a *Asic) buildOutEntry(dir Direction, b *Byte, deliveryTime float64, cmd Command) QueueEntry {
	link := a.Links[dir]
	return QueueEntry{
		DestRow:      link.NeighborRow,
		DestCol:      link.NeighborCol,
		IngressDir:   dir.Opposite(),
		Byte:         b,
		DeliveryTime: deliveryTime,
		Command:      cmd,
	}
}

// Receive processes one inbound QueueEntry, mirroring the routing FSM's
// ReceiveByte behavior. It returns any outbound entries the byte generated
// (rebroadcasts, register responses) and advances no clock state beyond
// what updateTimeTx performs while emitting them.
func (a *Asic) Receive(e QueueEntry) ([]QueueEntry, error) {
	if !a.Links[e.IngressDir].Present {
		a.logger.Warn("receive on direction with no neighbor", "dir", e.IngressDir)
		return nil, nil
	}

	b := e.Byte
	if b.WordType != WordRegReq {
		// Non-REGREQ traffic is unconditionally queued for remote
		// forwarding; there is no immediate response or rebroadcast.
		a.remoteFifo.Write(b)
		return nil, nil
	}

	if a.reqID == b.ReqID {
		// Already seen this broadcast; deduplicate.
		return nil, nil
	}
	a.reqID = b.ReqID
	if !a.Config.ManRoute {
		a.Config.DirMask = e.IngressDir
	}

	var out []QueueEntry

	isBroadcast := !b.Dest
	forThisAsic := isBroadcast || (int(b.XDest) == a.Row && int(b.YDest) == a.Col)
	if forThisAsic {
		switch {
		case b.OpWrite:
			a.Config = *b.Config
		case b.OpRead:
			resp := NewRegResp(uint8(a.Row), uint8(a.Col), &a.Config)
			completion := e.DeliveryTime + a.TOsc*float64(resp.TransferTicks)
			dir := a.Config.DirMask
			sendT, err := a.updateTimeTx(completion, dir)
			if err != nil {
				return nil, err
			}
			out = append(out, a.buildOutEntry(dir, resp, sendT, CommandNone))
		default:
			switch e.Command {
			case CommandInterrogate, CommandHardInterrogate:
				a.readHits(e.DeliveryTime)
				a.intID = b.ReqID
				a.intTick = a.CalcTicks(e.DeliveryTime)
			case CommandCalibrate:
				a.localFifo.Write(NewRegRespCalibrate(uint8(a.Row), uint8(a.Col), a.CalcTicks(e.DeliveryTime), e.DeliveryTime))
			}
			if a.localFifo.CurSize() > 0 || e.Command == CommandHardInterrogate {
				a.changeState(StateTransmitLocal)
			} else {
				a.changeState(StateTransmitRemote)
			}
			a.command = e.Command
		}
	}

	// Rebroadcast to every present neighbor except the ingress direction;
	// all register requests are broadcast regardless of forThisAsic.
	for dir := Direction(0); dir < 4; dir++ {
		if dir == e.IngressDir || !a.Links[dir].Present {
			continue
		}
		completion := e.DeliveryTime + float64(b.TransferTicks)*a.TOsc
		sendT, err := a.updateTimeTx(completion, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, a.buildOutEntry(dir, b, sendT, e.Command))
	}

	return out, nil
}

// Process advances the routing FSM toward targetTime, draining FIFOs into
// outbound transmissions as each state's guard conditions allow.
func (a *Asic) Process(targetTime float64) ([]QueueEntry, error) {
	if a.IsDaqNode || a.AbsTimeNow >= targetTime {
		return nil, nil
	}

	switch a.command {
	case CommandCalibrate, CommandInterrogate:
		a.command = CommandNone
	default:
		if a.Config.EnablePush {
			if a.readHits(targetTime) > 0 {
				a.pTimeoutStart = targetTime
				a.changeState(StateTransmitLocal)
			}
		} else if a.Config.SendRemote && a.remoteFifo.CurSize() > 0 {
			a.changeState(StateTransmitRemoteFull)
		}
	}

	switch a.State {
	case StateIdle:
		a.updateTimeCore(targetTime)
		return nil, nil
	case StateTransmitLocal:
		return a.processTransmitLocal(targetTime)
	case StateFinish:
		return a.processFinish(targetTime)
	case StateTransmitRemote, StateTransmitRemoteFull:
		return a.processTransmitRemote(targetTime)
	default:
		a.logger.Warn("asic in undefined state", "state", a.State)
		a.changeState(StateIdle)
		return nil, ErrUndefinedState
	}
}

func (a *Asic) processTransmitLocal(targetTime float64) ([]QueueEntry, error) {
	var out []QueueEntry
	for a.AbsTimeNow < targetTime && a.localFifo.CurSize() > 0 {
		hit := a.localFifo.Read()
		completion := a.AbsTimeNow + a.TOsc*float64(hit.TransferTicks)
		dir := a.Config.DirMask
		sendT, err := a.updateTimeTx(completion, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, a.buildOutEntry(dir, hit, sendT, CommandNone))
	}
	if a.localFifo.CurSize() == 0 {
		a.changeState(StateFinish)
	}
	return out, nil
}

func (a *Asic) processFinish(float64) ([]QueueEntry, error) {
	finishByte := NewDataByteMask(WordEvtEnd, uint8(a.Row), uint8(a.Col), a.intTick, 0, a.intID)
	completion := a.AbsTimeNow + a.TOsc*float64(finishByte.TransferTicks)
	dir := a.Config.DirMask
	sendT, err := a.updateTimeTx(completion, dir)
	if err != nil {
		return nil, err
	}
	a.changeState(StateTransmitRemote)
	return []QueueEntry{a.buildOutEntry(dir, finishByte, sendT, CommandNone)}, nil
}

func (a *Asic) processTransmitRemote(targetTime float64) ([]QueueEntry, error) {
	if a.timedOut() {
		a.changeState(StateIdle)
		return nil, nil
	}

	if a.remoteFifo.CurSize() == 0 {
		deadline := a.timeoutStart + float64(a.Config.Timeout)*a.TOsc
		if targetTime > deadline {
			a.updateTimeCore(deadline)
			a.changeState(StateIdle)
		} else {
			a.updateTimeCore(targetTime)
		}
		return nil, nil
	}

	var out []QueueEntry
	completion := a.AbsTimeNow + a.transferTime
	a.changeState(StateTransmitRemoteFull)

	for a.remoteFifo.CurSize() > 0 && !a.timedOut() {
		hit := a.remoteFifo.Read()
		dir := a.Config.DirMask
		sendT, err := a.updateTimeTx(completion, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, a.buildOutEntry(dir, hit, sendT, CommandNone))
		completion = a.AbsTimeNow + a.transferTime
	}
	a.changeState(StateTransmitRemote)
	return out, nil
}

// timedOut reports whether the TransmitRemote dwell has expired. When
// SendRemote is set this toggles to an empty-remote-FIFO check instead of
// the wall-clock dwell — preserved as-is from the reference implementation,
// including for long SendRemote runs where the wall-clock dwell never
// otherwise applies.
func (a *Asic) timedOut() bool {
	if a.Config.SendRemote {
		return a.remoteFifo.CurSize() == 0
	}
	return a.AbsTimeNow-a.timeoutStart > float64(a.Config.Timeout)*a.TOsc
}

// InjectHits preloads deterministic hits for later readout. channels may be
// nil, defaulting each hit to channel list {1,3,8}.
func (a *Asic) InjectHits(times []float64, channels [][]uint8) error {
	if len(times) == 0 {
		return nil
	}
	if channels == nil {
		channels = make([][]uint8, len(times))
		for i := range channels {
			channels[i] = []uint8{1, 3, 8}
		}
	}
	if len(channels) != len(times) {
		return fmt.Errorf("asic (%d,%d): %w", a.Row, a.Col, ErrMismatchedChannels)
	}
	for i, t := range times {
		var mask uint16
		for _, ch := range channels[i] {
			mask |= 1 << ch
		}
		a.pending = append(a.pending, pendingHit{time: t, mask: mask})
	}
	sort.Slice(a.pending, func(i, j int) bool { return a.pending[i].time < a.pending[j].time })
	return nil
}

// readHits pops the prefix of pending injected hits with time <= targetTime,
// writing one DATA byte per hit into the local FIFO, and returns how many
// were read.
func (a *Asic) readHits(targetTime float64) int {
	n := 0
	for len(a.pending) > 0 && a.pending[0].time <= targetTime {
		h := a.pending[0]
		a.pending = a.pending[1:]
		ts := a.CalcTicks(h.time)
		a.localFifo.Write(NewDataByteMask(WordData, uint8(a.Row), uint8(a.Col), ts, h.mask, h.time))
		n++
	}
	return n
}

// GeneratePoissonHits draws Poisson-distributed background hits per channel
// up to targetTime, grouping coincident hits (equal tick) into a single
// DATA byte with an OR-combined channel mask, and writes them into the
// local FIFO in ascending time order. Returns the number of hits generated.
func (a *Asic) GeneratePoissonHits(targetTime float64) int {
	type rawHit struct {
		ch   uint8
		tick uint32
	}
	var hits []rawHit

	for ch := 0; ch < DefaultChannelCount; ch++ {
		cur := a.lastAbsHitTime[ch]
		for cur < targetTime {
			p := a.rng.Float64()
			next := cur + (-math.Log(1.0-p) / a.RandomRate)
			if next < targetTime {
				hits = append(hits, rawHit{uint8(ch), uint32(math.Floor(next / a.TOsc))})
				cur = next
				a.lastAbsHitTime[ch] = cur
			} else {
				cur = targetTime
				a.lastAbsHitTime[ch] = targetTime
			}
		}
	}
	if len(hits) == 0 {
		return 0
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].tick < hits[j].tick })

	var prev *Byte
	for _, h := range hits {
		switch {
		case prev == nil:
			prev = NewDataByte(WordData, uint8(a.Row), uint8(a.Col), h.tick, []uint8{h.ch}, nil)
		case h.tick == prev.TimeStamp:
			prev.AddChannel(h.ch)
		default:
			a.localFifo.Write(prev)
			prev = NewDataByte(WordData, uint8(a.Row), uint8(a.Col), h.tick, []uint8{h.ch}, nil)
		}
	}
	a.localFifo.Write(prev)
	return len(hits)
}
