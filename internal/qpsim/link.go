package qpsim

// Direction is a cardinal neighbor direction, indexing an Asic's four Links.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	default:
		return "?"
	}
}

// Opposite returns the direction a neighbor sees traffic arrive from when
// this ASIC transmits in direction d.
func (d Direction) Opposite() Direction {
	return (d + 2) % 4
}

// Link is one of an Asic's four cardinal neighbor connections. It holds no
// owning reference to the neighbor — per the mesh's cyclic topology, the
// neighbor is addressed by (row, col) index into the owning Mesh rather
// than through a direct pointer.
type Link struct {
	Present      bool
	NeighborRow  int
	NeighborCol  int
	transferTime float64 // reference full-byte duration (s), spaces back-to-back sends

	txBusyUntil float64
	rxBusyUntil float64
}

// newLink builds an absent Link with the given reference transfer time.
func newLink(transferTime float64) Link {
	return Link{transferTime: transferTime}
}

// Send attempts to mark the transmitter busy until absolute time t. It
// returns true if the line is still busy (t is too soon after the last
// send given transferTime), leaving txBusyUntil unchanged; otherwise it
// commits txBusyUntil = t and returns false.
func (l *Link) Send(t float64) bool {
	if l.txBusyUntil > t-l.transferTime {
		return true
	}
	l.txBusyUntil = t
	return false
}

// Recv marks the receiver busy until absolute time t. A receive on an
// already-busy line is not fatal — it is surfaced to the caller as a
// warning-worthy condition via the returned bool, the asymmetric
// counterpart to Send's blocking behavior.
func (l *Link) Recv(t float64) (wasBusy bool) {
	wasBusy = l.rxBusyUntil > t
	l.rxBusyUntil = t
	return wasBusy
}

// TxBusyUntil returns the last committed transmitter-busy time.
func (l *Link) TxBusyUntil() float64 { return l.txBusyUntil }

// RxBusyUntil returns the last committed receiver-busy time.
func (l *Link) RxBusyUntil() float64 { return l.rxBusyUntil }
