package qpsim

import "math/bits"

// Endeavor serialization constants (oscillator ticks). Bit-exact, required
// for wire-tick cost parity with the reference implementation.
const (
	NZer = 8  // ticks to serialize a zero bit
	NOne = 24 // ticks to serialize a one bit
	NGap = 16 // inter-bit gap ticks
	NFin = 40 // end-of-frame ticks
	NBits = 64 // logical word width in bits; L = NBits - popcount

	// FixedTransferTicks is the wire-tick cost of every REGREQ and
	// REGRESP byte. Neither word type carries a channelMask, so the
	// popcount rule in TransferTicks never applies to them — this
	// mirrors the reference implementation exactly, where channelMask
	// stays unset for both of those word types.
	FixedTransferTicks = 1700
)

// WordType is the 4-bit logical type tag of a Byte.
type WordType uint8

const (
	WordData    WordType = 1
	WordRegReq  WordType = 3
	WordRegResp WordType = 4
	WordEvtEnd  WordType = 5
)

func (w WordType) String() string {
	switch w {
	case WordData:
		return "DATA"
	case WordRegReq:
		return "REGREQ"
	case WordRegResp:
		return "REGRESP"
	case WordEvtEnd:
		return "EVTEND"
	default:
		return "UNKNOWN"
	}
}

// Byte is the 64-bit logical word exchanged between Asics. It is a tagged
// variant: only the fields relevant to WordType are meaningful, guarded by
// the tag rather than modeled as an inheritance hierarchy.
//
// Invariant: TransferTicks is fixed once, either at construction or by the
// last AddChannel call made before the Byte is written into a FIFO. Once
// queued for transmission a Byte must not be mutated again.
type Byte struct {
	WordType  WordType
	OriginRow uint8
	OriginCol uint8
	SrcDaq    bool // true if this byte originated at the DAQ node

	// DATA / EVTEND payload.
	TimeStamp   uint32
	ChannelMask uint16
	Data        any // simulation-only payload, never serialized

	// REGREQ payload.
	Dest    bool // true = unicast to (XDest,YDest); false = broadcast
	OpWrite bool
	OpRead  bool
	XDest   uint8
	YDest   uint8
	ReqID   int64

	// Config embedded for REGREQ (when OpWrite) or REGRESP (read response).
	Config *Config

	TransferTicks uint64
}

// transferTicks computes the Endeavor wire-tick cost for a DATA/EVTEND byte
// from its field popcount, per the serialization model: H = popcount over
// {channelMask, timeStamp, originCol, originRow, wordType}, L = 64 - H,
// cost = H*NOne + L*NZer + 63*NGap + NFin.
func transferTicks(wordType WordType, row, col uint8, timeStamp uint32, channelMask uint16) uint64 {
	h := bits.OnesCount16(channelMask) +
		bits.OnesCount32(timeStamp) +
		bits.OnesCount8(col) +
		bits.OnesCount8(row) +
		bits.OnesCount8(uint8(wordType))
	l := NBits - h

	numGap := (NBits - 1) * NGap
	numOnes := h * NOne
	numZeros := l * NZer
	return uint64(numOnes + numZeros + numGap + NFin)
}

// NewDataByte builds a DATA or EVTEND byte from an explicit channel list,
// computing its channelMask and TransferTicks at construction.
func NewDataByte(wordType WordType, row, col uint8, timeStamp uint32, channels []uint8, data any) *Byte {
	var mask uint16
	for _, ch := range channels {
		mask |= 1 << ch
	}
	return NewDataByteMask(wordType, row, col, timeStamp, mask, data)
}

// NewDataByteMask builds a DATA or EVTEND byte from a precomputed channel
// bitmask, as used by injected-hit readout where the mask is already known.
func NewDataByteMask(wordType WordType, row, col uint8, timeStamp uint32, mask uint16, data any) *Byte {
	return &Byte{
		WordType:      wordType,
		OriginRow:     row,
		OriginCol:     col,
		TimeStamp:     timeStamp,
		ChannelMask:   mask,
		Data:          data,
		TransferTicks: transferTicks(wordType, row, col, timeStamp, mask),
	}
}

// AddChannel OR-combines ch into the channelMask and recomputes
// TransferTicks. Must only be called before the Byte is written into a
// FIFO — once queued for transmission its tick cost is frozen.
func (b *Byte) AddChannel(ch uint8) {
	b.ChannelMask |= 1 << ch
	b.TransferTicks = transferTicks(b.WordType, b.OriginRow, b.OriginCol, b.TimeStamp, b.ChannelMask)
}

// NewRegReq builds a register-request byte. REGREQ never carries a
// channelMask, so its cost is always FixedTransferTicks.
func NewRegReq(row, col uint8, srcDaq, dest, opWrite, opRead bool, xDest, yDest uint8, reqID int64, cfg *Config) *Byte {
	return &Byte{
		WordType:      WordRegReq,
		OriginRow:     row,
		OriginCol:     col,
		SrcDaq:        srcDaq,
		Dest:          dest,
		OpWrite:       opWrite,
		OpRead:        opRead,
		XDest:         xDest,
		YDest:         yDest,
		ReqID:         reqID,
		Config:        cfg,
		TransferTicks: FixedTransferTicks,
	}
}

// NewRegResp builds a register-read-response byte carrying the responder's
// current Config. Like REGREQ, its cost is always FixedTransferTicks.
func NewRegResp(row, col uint8, cfg *Config) *Byte {
	return &Byte{
		WordType:      WordRegResp,
		OriginRow:     row,
		OriginCol:     col,
		Config:        cfg,
		TransferTicks: FixedTransferTicks,
	}
}

// NewRegRespCalibrate builds a calibration-response byte carrying a
// timestamp instead of a Config. Still fixed-cost: calibration REGRESP
// bytes never set channelMask either.
func NewRegRespCalibrate(row, col uint8, timeStamp uint32, data any) *Byte {
	return &Byte{
		WordType:      WordRegResp,
		OriginRow:     row,
		OriginCol:     col,
		TimeStamp:     timeStamp,
		Data:          data,
		TransferTicks: FixedTransferTicks,
	}
}
