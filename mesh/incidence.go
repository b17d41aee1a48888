package mesh

import (
	"github.com/james-bowman/sparse"
)

// Incidence builds the cell to point incidence matrix [ncells][npoints], with
// a one wherever a cell references a point. Cells are in decode order. Returns
// nil for a mesh without cells.
func (m *Mesh) Incidence() *sparse.CSR {
	var (
		nc = m.NumCells()
		np = m.NumPoints()
	)
	if nc == 0 || np == 0 {
		return nil
	}
	dok := sparse.NewDOK(nc, np)
	for k := 0; k < nc; k++ {
		_, conn := m.Cell(k)
		for _, p := range conn {
			dok.Set(k, p, 1)
		}
	}
	return dok.ToCSR()
}

// PointValence returns the number of cells referencing each point
func (m *Mesh) PointValence() (valence []int) {
	valence = make([]int, m.NumPoints())
	inc := m.Incidence()
	if inc == nil {
		return
	}
	inc.DoNonZero(func(i, j int, v float64) {
		valence[j]++
	})
	return
}

// OrphanNodes returns the original ids of nodes no element references. These
// are the rows a result block commonly omits.
func (m *Mesh) OrphanNodes() (ids []int) {
	for p, n := range m.PointValence() {
		if n == 0 {
			ids = append(ids, m.NodeID[p])
		}
	}
	return
}
