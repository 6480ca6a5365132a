package qpsim

import (
	"fmt"
	"log/slog"
)

// Node is anything the Mesh/Driver can route a QueueEntry to: a regular
// Asic or the embedding DaqNode. Both satisfy it through Asic's own
// Receive/Process or DaqNode's overrides.
type Node interface {
	Receive(e QueueEntry) ([]QueueEntry, error)
	Process(targetTime float64) ([]QueueEntry, error)
	Coords() (row, col int)
}

// Coords reports an Asic's grid position, satisfying Node.
func (a *Asic) Coords() (row, col int) { return a.Row, a.Col }

// MeshOption configures optional Mesh-wide collaborators at construction.
type MeshOption func(*meshOptions)

type meshOptions struct {
	logger   *slog.Logger
	recorder StateRecorder
}

// WithMeshLogger attaches a base logger every constructed Node derives its
// own child logger from.
func WithMeshLogger(logger *slog.Logger) MeshOption {
	return func(o *meshOptions) { o.logger = logger }
}

// WithMeshStateRecorder attaches a StateRecorder every constructed Asic
// reports its FSM transitions to.
func WithMeshStateRecorder(r StateRecorder) MeshOption {
	return func(o *meshOptions) { o.recorder = r }
}

// Mesh is a 2D grid of Asics with exactly one cell designated the DaqNode.
// Links are wired between every orthogonally adjacent pair; edge cells
// simply have Present=false Links toward the missing side.
type Mesh struct {
	Rows, Cols     int
	DaqRow, DaqCol int

	nodes [][]Node
}

// NewMesh builds a Rows x Cols grid of Asics, replacing the cell at
// (daqRow, daqCol) with a DaqNode, and wires North/East/South/West Links
// between every adjacent pair. cfg is the starting Config every cell
// receives; seed derives each cell's independent, reproducible RNG stream.
func NewMesh(rows, cols, daqRow, daqCol int, cfg Config, seed uint64, opts ...MeshOption) (*Mesh, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrInvalidMeshSize
	}
	if daqRow < 0 || daqRow >= rows || daqCol < 0 || daqCol >= cols {
		return nil, ErrDaqOutOfBounds
	}

	var o meshOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	var asicOpts []AsicOption
	asicOpts = append(asicOpts, WithLogger(o.logger))
	if o.recorder != nil {
		asicOpts = append(asicOpts, WithStateRecorder(o.recorder))
	}

	m := &Mesh{Rows: rows, Cols: cols, DaqRow: daqRow, DaqCol: daqCol}
	m.nodes = make([][]Node, rows)
	for r := 0; r < rows; r++ {
		m.nodes[r] = make([]Node, cols)
		for c := 0; c < cols; c++ {
			if r == daqRow && c == daqCol {
				m.nodes[r][c] = NewDaqNode(r, c, cfg, seed, asicOpts...)
			} else {
				m.nodes[r][c] = NewAsic(r, c, cfg, seed, asicOpts...)
			}
		}
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.wireCell(r, c)
		}
	}
	return m, nil
}

// wireCell populates Present/NeighborRow/NeighborCol for every direction
// (row, col) has an adjacent cell for.
func (m *Mesh) wireCell(row, col int) {
	links := m.linksOf(row, col)
	neighbors := [4]struct {
		dir      Direction
		dr, dc   int
	}{
		{North, -1, 0},
		{East, 0, 1},
		{South, 1, 0},
		{West, 0, -1},
	}
	for _, n := range neighbors {
		nr, nc := row+n.dr, col+n.dc
		if nr < 0 || nr >= m.Rows || nc < 0 || nc >= m.Cols {
			continue
		}
		links[n.dir].Present = true
		links[n.dir].NeighborRow = nr
		links[n.dir].NeighborCol = nc
	}
}

// linksOf returns the four-element Links array belonging to the node at
// (row, col), regardless of whether it's a plain Asic or a DaqNode.
func (m *Mesh) linksOf(row, col int) *[4]Link {
	switch n := m.nodes[row][col].(type) {
	case *Asic:
		return &n.Links
	case *DaqNode:
		return &n.Links
	default:
		panic(fmt.Sprintf("qpsim: unknown node type at (%d,%d)", row, col))
	}
}

// NodeAt returns the Node at (row, col), or an error if out of bounds.
func (m *Mesh) NodeAt(row, col int) (Node, error) {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return nil, ErrOutOfBounds
	}
	return m.nodes[row][col], nil
}

// AsicAt returns the concrete *Asic at (row, col). It returns an error if
// out of bounds, or if the cell holds the DaqNode instead.
func (m *Mesh) AsicAt(row, col int) (*Asic, error) {
	n, err := m.NodeAt(row, col)
	if err != nil {
		return nil, err
	}
	a, ok := n.(*Asic)
	if !ok {
		return nil, fmt.Errorf("qpsim: (%d,%d) is the daq node, not a plain asic", row, col)
	}
	return a, nil
}

// DaqNode returns the mesh's single DaqNode.
func (m *Mesh) DaqNode() *DaqNode {
	n, _ := m.NodeAt(m.DaqRow, m.DaqCol)
	return n.(*DaqNode)
}

// FirstPresentDirection returns the first cardinal direction (N, E, S, W
// order) the cell at (row, col) has a wired neighbor in, for use as the
// ingress direction of an externally-injected command. ok is false if the
// cell has no neighbors at all (only possible in a 1x1 mesh).
func (m *Mesh) FirstPresentDirection(row, col int) (dir Direction, ok bool) {
	links := m.linksOf(row, col)
	for d := Direction(0); d < 4; d++ {
		if links[d].Present {
			return d, true
		}
	}
	return 0, false
}

// Each calls fn for every Node in the mesh, in row-major order.
func (m *Mesh) Each(fn func(row, col int, n Node)) {
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			fn(r, c, m.nodes[r][c])
		}
	}
}
