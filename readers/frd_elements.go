package readers

import (
	"fmt"

	"github.com/notargets/gofrd/mesh"
)

// Element records in the stream are [id, kind, group, material, nodes...]
const (
	elemHeaderWords = 4
	elemIDWord      = 0
	elemKindWord    = 1
	elemMatWord     = 3
)

// elementKind describes the record layout of one frd element type code
type elementKind struct {
	Type        mesh.ElementType
	NodeCount   int
	Stride      int   // NodeCount + header words
	Permutation []int // Raw connectivity position for each output position, nil for identity
}

func newElementKind(etype mesh.ElementType, perm []int) elementKind {
	nn := etype.GetNumNodes()
	return elementKind{
		Type:        etype,
		NodeCount:   nn,
		Stride:      nn + elemHeaderWords,
		Permutation: perm,
	}
}

// hex20Permutation moves the frd mid-edge order [0:12][12:16][16:20] to the
// vertex-then-edge order [0:12][16:20][12:16]
var hex20Permutation = func() []int {
	perm := make([]int, 0, 20)
	for i := 0; i < 12; i++ {
		perm = append(perm, i)
	}
	for i := 16; i < 20; i++ {
		perm = append(perm, i)
	}
	for i := 12; i < 16; i++ {
		perm = append(perm, i)
	}
	return perm
}()

// elementKinds maps the frd element type code to its layout
var elementKinds = map[int32]elementKind{
	1:  newElementKind(mesh.Hex, nil),
	2:  newElementKind(mesh.Prism, nil),
	3:  newElementKind(mesh.Tet, nil),
	4:  newElementKind(mesh.Hex20, hex20Permutation),
	5:  newElementKind(mesh.Prism15, nil),
	6:  newElementKind(mesh.Tet10, nil),
	7:  newElementKind(mesh.Triangle, nil),
	8:  newElementKind(mesh.Triangle6, nil),
	9:  newElementKind(mesh.Quad, nil),
	10: newElementKind(mesh.Quad8, nil),
	11: newElementKind(mesh.Line, nil),
	12: newElementKind(mesh.Line3, nil),
}

// remapConnectivity permutes and translates raw node ids to point indices
func (ek elementKind) remapConnectivity(raw []int32, remap IndexRemap) ([]int, error) {
	conn := make([]int, ek.NodeCount)
	for i := range conn {
		src := i
		if ek.Permutation != nil {
			src = ek.Permutation[i]
		}
		row, ok := remap.Lookup(raw[src])
		if !ok {
			return nil, fmt.Errorf("%w: node id %d not in node table", ErrMalformedElement, raw[src])
		}
		conn[i] = row
	}
	return conn, nil
}

// decodeElements scans the element stream sequentially. An unknown kind code,
// or a record running past the stream, ends the scan and is reported as a
// truncation.
func decodeElements(b []byte, remap IndexRemap, msh *mesh.Mesh, report *DecodeReport) error {
	var (
		words  = int32Words(b)
		cursor = 0
	)
	for cursor < len(words) {
		if cursor+elemKindWord >= len(words) {
			report.Truncation = &Truncation{WordOffset: cursor, RemainingWords: len(words) - cursor}
			break
		}
		code := words[cursor+elemKindWord]
		ek, ok := elementKinds[code]
		if !ok {
			report.Truncation = &Truncation{KindCode: code, WordOffset: cursor,
				RemainingWords: len(words) - cursor}
			break
		}
		if cursor+ek.Stride > len(words) {
			report.Truncation = &Truncation{WordOffset: cursor, RemainingWords: len(words) - cursor}
			break
		}
		rec := words[cursor : cursor+ek.Stride]
		conn, err := ek.remapConnectivity(rec[elemHeaderWords:], remap)
		if err != nil {
			return fmt.Errorf("element %d: %w", rec[elemIDWord], err)
		}
		msh.AddCell(ek.Type, conn, int(rec[elemIDWord]), int(rec[elemMatWord]))
		cursor += ek.Stride
	}
	report.Elements = msh.NumCells()
	return nil
}
