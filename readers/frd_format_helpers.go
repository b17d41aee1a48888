package readers

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ResultRow is one node record of a result payload
type ResultRow struct {
	ID     int32
	Values []float32
}

type testResult struct {
	name   string
	time   float64
	code   int
	labels []string
	rows   []ResultRow
	modal  bool

	nodeCount  int  // Declared node count, -1 writes len(rows)
	gluedTime  bool // Run the step label into the timestamp
	boundaryV1 bool // End the header on "3    1" instead of "0    0" or "1ALL"
}

// FRDTestBuilder assembles binary frd buffers for tests
type FRDTestBuilder struct {
	nodes    bytes.Buffer
	numNodes int
	elems    []int32
	numElems int
	results  []testResult
}

// NewFRDTestBuilder creates an empty builder
func NewFRDTestBuilder() *FRDTestBuilder {
	return &FRDTestBuilder{}
}

// AddNode appends a node table record
func (b *FRDTestBuilder) AddNode(id int32, x, y, z float64) *FRDTestBuilder {
	var rec [nodeRecordSize]byte
	binary.LittleEndian.PutUint32(rec[0:], uint32(id))
	binary.LittleEndian.PutUint64(rec[4:], math.Float64bits(x))
	binary.LittleEndian.PutUint64(rec[12:], math.Float64bits(y))
	binary.LittleEndian.PutUint64(rec[20:], math.Float64bits(z))
	b.nodes.Write(rec[:])
	b.numNodes++
	return b
}

// AddElement appends an element record [id, kind, group, material, nodes...]
func (b *FRDTestBuilder) AddElement(id, kind, material int32, nodes ...int32) *FRDTestBuilder {
	b.elems = append(b.elems, id, kind, 0, material)
	b.elems = append(b.elems, nodes...)
	b.numElems++
	return b
}

// AddElementWords appends raw words to the element stream
func (b *FRDTestBuilder) AddElementWords(words ...int32) *FRDTestBuilder {
	b.elems = append(b.elems, words...)
	return b
}

// AddResult appends a result block. Each row must carry the stored number of
// values for code.
func (b *FRDTestBuilder) AddResult(name string, time float64, code int, labels []string,
	rows ...ResultRow) *FRDTestBuilder {
	b.results = append(b.results, testResult{name: name, time: time, code: code,
		labels: labels, rows: rows, nodeCount: -1})
	return b
}

// WithNodeCount overrides the node count declared by the last result header
func (b *FRDTestBuilder) WithNodeCount(n int) *FRDTestBuilder {
	b.results[len(b.results)-1].nodeCount = n
	return b
}

// WithGluedTimestamp writes the last result's timestamp directly after the
// step label with no separating space, as some platforms do
func (b *FRDTestBuilder) WithGluedTimestamp() *FRDTestBuilder {
	b.results[len(b.results)-1].gluedTime = true
	return b
}

// WithBoundaryV1 ends the last result header with a "3    1" component line
func (b *FRDTestBuilder) WithBoundaryV1() *FRDTestBuilder {
	b.results[len(b.results)-1].boundaryV1 = true
	return b
}

// AddModalResult appends a result block with the modal analysis description lines
func (b *FRDTestBuilder) AddModalResult(name string, time float64, code int, labels []string,
	rows ...ResultRow) *FRDTestBuilder {
	b.AddResult(name, time, code, labels, rows...)
	b.results[len(b.results)-1].modal = true
	return b
}

// Build returns the binary frd buffer
func (b *FRDTestBuilder) Build() []byte {
	var buf bytes.Buffer
	buf.WriteString("    1C\n")
	buf.WriteString("    1UUSER\n")
	fmt.Fprintf(&buf, "    2C%28d%37d\n", b.numNodes, 3)
	buf.Write(b.nodes.Bytes())
	fmt.Fprintf(&buf, "    3C%28d%37d\n", b.numElems, 2)
	for _, w := range b.elems {
		_ = binary.Write(&buf, binary.LittleEndian, w)
	}
	for n, r := range b.results {
		b.writeResult(&buf, n+1, r)
	}
	buf.WriteString(" 9999\n")
	return buf.Bytes()
}

func (b *FRDTestBuilder) writeResult(buf *bytes.Buffer, step int, r testResult) {
	fmt.Fprintf(buf, "    1PSTEP%25d%12d%12d\n", step, 1, 1)
	if r.modal {
		buf.WriteString("    1PGM                0.000000E+00\n")
		buf.WriteString("    1PGK                0.000000E+00\n")
		buf.WriteString("    1PHID                         -1\n")
		buf.WriteString("    1PSUBC MODAL\n")
		fmt.Fprintf(buf, "    1PMODE%26d\n", step)
	}
	nn := r.nodeCount
	if nn < 0 {
		nn = len(r.rows)
	}
	timeFormat := "%12.5E"
	if r.gluedTime {
		timeFormat = "%.5E"
	}
	fmt.Fprintf(buf, "  100CL%5d"+timeFormat+"%12d%20s%2d%5d%10s%2d\n",
		100+step, r.time, nn, "", 2, step, "", 1)
	fmt.Fprintf(buf, " -4  %-8s%4d%5d\n", r.name, r.code, 1)

	// Intermediate component lines end in "    2" so only the last line
	// carries a header boundary marker
	labels := r.labels
	if r.code == 4 {
		for _, l := range labels {
			fmt.Fprintf(buf, " -5  %-8s%4d%5d%5d%5d\n", l, 1, 2, 1, 2)
		}
		if r.boundaryV1 {
			fmt.Fprintf(buf, " -5  %-8s%4d%5d%5d%5d\n", "ALL", 1, 2, 3, 1)
		} else {
			fmt.Fprintf(buf, " -5  %-8s%4d%5d%5d%5d%5dALL\n", "ALL", 1, 2, 0, 0, 1)
		}
	} else {
		for i, l := range labels {
			if i == len(labels)-1 && r.boundaryV1 {
				fmt.Fprintf(buf, " -5  %-8s%4d%5d%5d%5d\n", l, 1, 1, 3, 1)
			} else if i == len(labels)-1 {
				fmt.Fprintf(buf, " -5  %-8s%4d%5d%5d%5d\n", l, 1, 1, 0, 0)
			} else {
				fmt.Fprintf(buf, " -5  %-8s%4d%5d%5d%5d\n", l, 1, 1, 1, 2)
			}
		}
	}
	for _, row := range r.rows {
		_ = binary.Write(buf, binary.LittleEndian, row.ID)
		_ = binary.Write(buf, binary.LittleEndian, row.Values)
	}
}

// BuildASCII returns a minimal text-format frd buffer
func (b *FRDTestBuilder) BuildASCII() []byte {
	var buf bytes.Buffer
	buf.WriteString("    1C\n")
	fmt.Fprintf(&buf, "    2C%28d%37d\n", 1, 1)
	buf.WriteString(" -1         1 0.00000E+00 0.00000E+00 0.00000E+00\n")
	buf.WriteString(" -3\n")
	buf.WriteString(" 9999\n")
	return buf.Bytes()
}
