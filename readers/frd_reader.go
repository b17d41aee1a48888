package readers

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofrd/mesh"
)

var (
	ErrNotBinaryFormat  = errors.New("frd format not binary")
	ErrMalformedSection = errors.New("malformed frd section")
	ErrMalformedElement = errors.New("malformed frd element")
	ErrMalformedHeader  = errors.New("malformed frd result header")
	ErrMalformedResult  = errors.New("malformed frd result block")
	ErrTruncatedPayload = errors.New("truncated frd result payload")
)

// DefaultSkipFields are result quantities not carried into the mesh
var DefaultSkipFields = []string{"NORM", "SENMISE", "SENPS1", "SDV"}

// nodeRecordSize is int32 id + 3 float64 coordinates
const nodeRecordSize = 4 + 3*8

var le = binary.LittleEndian

// Node is one entry of the node table
type Node struct {
	ID      int32
	X, Y, Z float64
}

// IndexRemap maps an external node id to its node table row, -1 when absent
type IndexRemap []int

// NewIndexRemap builds the remap sized max(id)+1
func NewIndexRemap(nodes []Node) (IndexRemap, error) {
	maxID := int32(-1)
	for _, n := range nodes {
		if n.ID < 0 {
			return nil, fmt.Errorf("%w: negative node id %d", ErrMalformedSection, n.ID)
		}
		if n.ID > maxID {
			maxID = n.ID
		}
	}
	remap := make(IndexRemap, int(maxID)+1)
	for i := range remap {
		remap[i] = -1
	}
	for i, n := range nodes {
		if remap[n.ID] != -1 {
			return nil, fmt.Errorf("%w: duplicate node id %d", ErrMalformedSection, n.ID)
		}
		remap[n.ID] = i
	}
	return remap, nil
}

// Lookup returns the row for id
func (r IndexRemap) Lookup(id int32) (row int, ok bool) {
	if id < 0 || int(id) >= len(r) || r[id] < 0 {
		return -1, false
	}
	return r[id], true
}

// Truncation describes where the element scan stopped early
type Truncation struct {
	KindCode       int32 // Offending kind code, 0 when the stream ended mid record
	WordOffset     int   // Cursor position in int32 words
	RemainingWords int
}

// BlockInfo records one result block header as seen by the decoder
type BlockInfo struct {
	Key        string
	Name       string
	Time       float64
	NodeCount  int
	Components int
	Skipped    bool
	PaddedRows int
}

// DecodeReport lists the observable, non-fatal outcomes of a decode
type DecodeReport struct {
	Elements   int
	Truncation *Truncation
	Blocks     []BlockInfo
}

// SkippedFields returns the names of blocks that were not materialized
func (r *DecodeReport) SkippedFields() (names []string) {
	for _, b := range r.Blocks {
		if b.Skipped {
			names = append(names, b.Name)
		}
	}
	return
}

// FRDDecoder decodes binary CalculiX .frd buffers into meshes
type FRDDecoder struct {
	SkipFields map[string]bool
}

// NewFRDDecoder creates a decoder skipping the named fields, DefaultSkipFields
// when none are given
func NewFRDDecoder(skipFields ...string) *FRDDecoder {
	if len(skipFields) == 0 {
		skipFields = DefaultSkipFields
	}
	d := &FRDDecoder{SkipFields: make(map[string]bool)}
	for _, name := range skipFields {
		d.SkipFields[name] = true
	}
	return d
}

// DecodeFRD decodes buf with the default skip set
func DecodeFRD(buf []byte) (*mesh.Mesh, *DecodeReport, error) {
	return NewFRDDecoder().Decode(buf)
}

// Decode converts one binary frd buffer. A buffer without a node section
// yields ErrNotBinaryFormat. No mesh is returned with any error.
func (d *FRDDecoder) Decode(buf []byte) (*mesh.Mesh, *DecodeReport, error) {
	bs := LocateBlocks(buf)
	if bs == nil {
		return nil, nil, ErrNotBinaryFormat
	}
	var (
		msh    = mesh.NewMesh()
		report = &DecodeReport{}
	)
	msh.Digest = xxhash.Sum64(buf)

	nodeBytes, elemBytes, err := sectionBytes(buf, bs)
	if err != nil {
		return nil, nil, err
	}
	nodes, err := decodeNodes(nodeBytes)
	if err != nil {
		return nil, nil, err
	}
	remap, err := NewIndexRemap(nodes)
	if err != nil {
		return nil, nil, err
	}
	setPoints(msh, nodes)

	if err = decodeElements(elemBytes, remap, msh, report); err != nil {
		return nil, nil, err
	}
	if err = d.decodeResults(buf, bs, remap, msh, report); err != nil {
		return nil, nil, err
	}
	return msh, report, nil
}

// sectionBytes slices the node table and the element stream out of buf
func sectionBytes(buf []byte, bs *BlockSpans) (nodeBytes, elemBytes []byte, err error) {
	var (
		nodeSpan = bs.Get(NodeSection)[0]
		elems    = bs.Get(ElementSection)
	)
	if len(elems) == 0 {
		return nil, nil, fmt.Errorf("%w: no element section", ErrMalformedSection)
	}
	elemSpan := elems[0]
	if elemSpan.Start < nodeSpan.End {
		return nil, nil, fmt.Errorf("%w: element section at %d precedes node table end %d",
			ErrMalformedSection, elemSpan.Start, nodeSpan.End)
	}
	nodeBytes = buf[nodeSpan.End:elemSpan.Start]

	// The element stream runs to the first result header, or to the end
	// marker for a mesh without results
	elemEnd := len(buf)
	if hdr, ok := nextSpan(bs.Get(ResultHeader), elemSpan.End); ok {
		elemEnd = hdr.Start
	} else if eof, ok := nextSpan(bs.Get(EndOfFile), elemSpan.End); ok {
		elemEnd = eof.Start
	}
	elemBytes = buf[elemSpan.End:elemEnd]
	return
}

func decodeNodes(b []byte) (nodes []Node, err error) {
	if len(b)%nodeRecordSize != 0 {
		return nil, fmt.Errorf("%w: node table of %d bytes is not a multiple of %d",
			ErrMalformedSection, len(b), nodeRecordSize)
	}
	n := len(b) / nodeRecordSize
	if n == 0 {
		return nil, fmt.Errorf("%w: empty node table", ErrMalformedSection)
	}
	nodes = make([]Node, n)
	for i := range nodes {
		rec := b[i*nodeRecordSize:]
		nodes[i] = Node{
			ID: int32(le.Uint32(rec[0:])),
			X:  math.Float64frombits(le.Uint64(rec[4:])),
			Y:  math.Float64frombits(le.Uint64(rec[12:])),
			Z:  math.Float64frombits(le.Uint64(rec[20:])),
		}
	}
	return
}

func setPoints(msh *mesh.Mesh, nodes []Node) {
	coords := make([]float64, 0, 3*len(nodes))
	msh.NodeID = make([]int, len(nodes))
	for i, n := range nodes {
		coords = append(coords, n.X, n.Y, n.Z)
		msh.NodeID[i] = int(n.ID)
	}
	msh.Points = mat.NewDense(len(nodes), 3, coords)
}

// int32Words decodes b as little-endian int32, dropping a trailing partial word
func int32Words(b []byte) []int32 {
	words := make([]int32, len(b)/4)
	for i := range words {
		words[i] = int32(le.Uint32(b[4*i:]))
	}
	return words
}
