package qpsim

import "errors"

// Sentinel errors for the simulation core. Fatal errors (WrongByteType,
// LinkBusy) abort the run when returned from Receive/Process; BadDirection
// is logged and dropped; FifoOverflow is soft and only sets a sticky flag on
// the affected FIFO.
var (
	// ErrWrongByteType indicates an attempt to write a value of the wrong
	// concrete type into a FIFO. Programmer error; fatal.
	ErrWrongByteType = errors.New("qpsim: wrong byte type for this fifo")

	// ErrFifoOverflow names the condition of a FIFO exceeding its configured
	// maxDepth. Fifo.Write never returns it: the byte is still stored and
	// Full() becomes sticky.
	ErrFifoOverflow = errors.New("qpsim: fifo exceeded max depth")

	// ErrLinkBusy indicates a send was attempted on a transmitter still
	// busy after one retry window. Fatal; indicates a scheduling bug.
	ErrLinkBusy = errors.New("qpsim: link busy on retry, overlapping transmission")

	// ErrUndefinedState indicates the routing FSM reached a state with no
	// defined handler. Recovered by forcing Idle.
	ErrUndefinedState = errors.New("qpsim: asic reached undefined state")

	// ErrBadDirection indicates a receive on a direction with no wired
	// neighbor. Logged and dropped, not fatal.
	ErrBadDirection = errors.New("qpsim: receive on direction with no neighbor")

	// ErrMismatchedChannels indicates InjectHits was called with a
	// channel-list slice whose length does not match the times slice.
	ErrMismatchedChannels = errors.New("qpsim: injected times and channels must be the same length")

	// ErrNoNeighbor indicates a Driver tried to seed an event into a cell
	// that has no wired link in any direction (a 1x1 mesh).
	ErrNoNeighbor = errors.New("qpsim: no neighbor wired in requested direction")

	// ErrOutOfBounds indicates a mesh coordinate request fell outside the
	// constructed grid.
	ErrOutOfBounds = errors.New("qpsim: mesh coordinate out of bounds")

	// ErrInvalidMeshSize indicates NewMesh was asked to build a grid with
	// a non-positive dimension.
	ErrInvalidMeshSize = errors.New("qpsim: mesh rows and cols must be positive")

	// ErrDaqOutOfBounds indicates the requested DAQ cell is outside the mesh.
	ErrDaqOutOfBounds = errors.New("qpsim: daq coordinate out of bounds")
)
