package mesh

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CellRef locates one decoded element inside its homogeneous block
type CellRef struct {
	Type  ElementType
	Index int // Row within Cells[Type]
}

// Field is one named result quantity at one time step, one row per node
type Field struct {
	Name       string
	Time       float64
	Components []string   // Column labels
	Data       *mat.Dense // [npoints][ncomponents], node table order
}

// Mesh holds one decoded result file
type Mesh struct {
	// Geometry
	Points *mat.Dense // Node coordinates [npoints][3]
	NodeID []int      // Original node id for each point

	// Element data
	Cells      map[ElementType][][]int // Connectivity blocks, zero-based point indices
	CellOrder  []CellRef               // Decode order of the element stream
	ElementID  []int                   // Element id for each cell, decode order
	MaterialID []int                   // Material id for each cell, decode order

	// Results, keyed by FieldKey
	Fields map[string]*Field

	// xxhash64 of the source buffer
	Digest uint64
}

// NewMesh creates an empty mesh
func NewMesh() *Mesh {
	return &Mesh{
		Cells:  make(map[ElementType][][]int),
		Fields: make(map[string]*Field),
	}
}

// FieldKey formats the key a result is stored under
func FieldKey(name string, time float64) string {
	return fmt.Sprintf("%s_%.3f", name, time)
}

// NumPoints returns the number of nodes
func (m *Mesh) NumPoints() int {
	return len(m.NodeID)
}

// NumCells returns the number of decoded elements over all blocks
func (m *Mesh) NumCells() int {
	return len(m.CellOrder)
}

// AddCell appends one element to the block of its type
func (m *Mesh) AddCell(etype ElementType, conn []int, elemID, matID int) {
	m.CellOrder = append(m.CellOrder, CellRef{Type: etype, Index: len(m.Cells[etype])})
	m.Cells[etype] = append(m.Cells[etype], conn)
	m.ElementID = append(m.ElementID, elemID)
	m.MaterialID = append(m.MaterialID, matID)
}

// Cell returns the connectivity of the i-th cell in decode order
func (m *Mesh) Cell(i int) (ElementType, []int) {
	ref := m.CellOrder[i]
	return ref.Type, m.Cells[ref.Type][ref.Index]
}

// CellTypes returns the element types present, in enum order
func (m *Mesh) CellTypes() []ElementType {
	types := make([]ElementType, 0, len(m.Cells))
	for t, blk := range m.Cells {
		if len(blk) > 0 {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// SetField stores f under its key, replacing any earlier block with the same key
func (m *Mesh) SetField(f *Field) string {
	key := FieldKey(f.Name, f.Time)
	m.Fields[key] = f
	return key
}

// FieldNames returns the sorted field keys
func (m *Mesh) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PrintStatistics prints mesh statistics
func (m *Mesh) PrintStatistics() {
	m.FprintStatistics(os.Stdout)
}

func (m *Mesh) FprintStatistics(w io.Writer) {
	fmt.Fprintf(w, "Mesh Statistics:\n")
	fmt.Fprintf(w, "  Points: %d\n", m.NumPoints())
	fmt.Fprintf(w, "  Cells: %d\n", m.NumCells())

	fmt.Fprintf(w, "  Element types:\n")
	for _, t := range m.CellTypes() {
		fmt.Fprintf(w, "    %s: %d\n", t, len(m.Cells[t]))
	}

	fmt.Fprintf(w, "  Fields:\n")
	for _, name := range m.FieldNames() {
		_, nc := m.Fields[name].Data.Dims()
		fmt.Fprintf(w, "    %s: %d components\n", name, nc)
	}
}
