package mesh

import (
	"fmt"
	"io"
	"math"

	"github.com/ghodss/yaml"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Writer serializes a mesh to an output container
type Writer interface {
	// Extension is appended to the output file base name, e.g. ".yaml"
	Extension() string
	WriteMesh(w io.Writer, m *Mesh) error
}

type FieldSummary struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Time       float64   `json:"time"`
	Components []string  `json:"components"`
	Min        []float64 `json:"min"` // Over finite values, zero when there are none
	Max        []float64 `json:"max"`
	NonFinite  []int     `json:"nonFinite,omitempty"` // NaN and Inf count per component, omitted when all zero
}

// CellBlockSummary is one homogeneous connectivity block, tagged by VTK cell type
type CellBlockSummary struct {
	VTKCellType  int    `json:"vtkCellType"`
	Type         string `json:"type"`
	NodesPerCell int    `json:"nodesPerCell"`
	Quadratic    bool   `json:"quadratic"`
	Cells        int    `json:"cells"`
}

// Summary is the point/cell/field inventory of a mesh
type Summary struct {
	Digest     string             `json:"digest"`
	NumPoints  int                `json:"numPoints"`
	NumCells   int                `json:"numCells"`
	CellBlocks []CellBlockSummary `json:"cellBlocks"` // Element type order
	Orphans    int                `json:"orphanNodes"`
	Fields     []FieldSummary     `json:"fields"`
}

// Summary computes the inventory, fields sorted by key
func (m *Mesh) Summary() *Summary {
	s := &Summary{
		Digest:    fmt.Sprintf("%016x", m.Digest),
		NumPoints: m.NumPoints(),
		NumCells:  m.NumCells(),
		Orphans:   len(m.OrphanNodes()),
	}
	for _, t := range m.CellTypes() {
		s.CellBlocks = append(s.CellBlocks, CellBlockSummary{
			VTKCellType:  t.VTKCellType(),
			Type:         t.String(),
			NodesPerCell: t.GetNumNodes(),
			Quadratic:    t.IsQuadratic(),
			Cells:        len(m.Cells[t]),
		})
	}
	for _, key := range m.FieldNames() {
		f := m.Fields[key]
		fs := FieldSummary{
			Key:        key,
			Name:       f.Name,
			Time:       f.Time,
			Components: f.Components,
		}
		nr, nc := f.Data.Dims()
		nonFinite := make([]int, nc)
		var bad bool
		for j := 0; j < nc; j++ {
			col := finite(mat.Col(nil, j, f.Data))
			nonFinite[j] = nr - len(col)
			bad = bad || nonFinite[j] > 0
			if len(col) == 0 {
				fs.Min, fs.Max = append(fs.Min, 0), append(fs.Max, 0)
				continue
			}
			fs.Min = append(fs.Min, floats.Min(col))
			fs.Max = append(fs.Max, floats.Max(col))
		}
		if bad {
			fs.NonFinite = nonFinite
		}
		s.Fields = append(s.Fields, fs)
	}
	return s
}

// finite drops NaN and Inf in place, the encoder rejects them
func finite(v []float64) []float64 {
	out := v[:0]
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// FieldNames returns the field keys in summary order
func (s *Summary) FieldNames() (names []string) {
	for _, f := range s.Fields {
		names = append(names, f.Key)
	}
	return
}

// SummaryWriter writes the mesh summary as YAML
type SummaryWriter struct{}

func (SummaryWriter) Extension() string { return ".yaml" }

func (SummaryWriter) WriteMesh(w io.Writer, m *Mesh) error {
	data, err := yaml.Marshal(m.Summary())
	if err != nil {
		return fmt.Errorf("marshal mesh summary: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ReadSummary parses a summary written by SummaryWriter
func ReadSummary(r io.Reader) (*Summary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s := &Summary{}
	if err = yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse mesh summary: %w", err)
	}
	return s, nil
}
