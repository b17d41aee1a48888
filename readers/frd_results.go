package readers

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofrd/mesh"
)

// storedComponents maps the header component count to the number of float32
// values stored per node. Code 4 is a displacement-like vector whose fourth
// declared component (ALL) is a derived magnitude not present in the payload.
var storedComponents = map[int]int{1: 1, 4: 3, 6: 6, 20: 20}

// timestampColumn is where the step value starts on the second header line.
// Some platforms run the analysis type label into the value without a space.
const timestampColumn = 12

// modalHeaderLines is the count of extra descriptive lines in modal
// displacement headers
const modalHeaderLines = 5

type resultHeader struct {
	Name      string
	Time      float64
	NodeCount int
	Code      int
	codeErr   error
	Labels    []string // Names declared by the " -5" component lines
}

func parseResultHeader(text []byte) (h *resultHeader, err error) {
	lines := strings.Split(string(text), "\n")
	if bytes.Contains(text, []byte("MODAL")) && bytes.Contains(text, []byte("DISP")) {
		if len(lines) < modalHeaderLines {
			return nil, fmt.Errorf("%w: short modal header", ErrMalformedHeader)
		}
		lines = lines[modalHeaderLines:]
	}
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: expected at least 3 lines, got %d", ErrMalformedHeader, len(lines))
	}
	if len(lines[1]) < timestampColumn {
		return nil, fmt.Errorf("%w: step line too short: %q", ErrMalformedHeader, lines[1])
	}
	parts := strings.Fields(lines[1][timestampColumn:])
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: invalid step line: %q", ErrMalformedHeader, lines[1])
	}
	h = &resultHeader{}
	if h.Time, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrMalformedHeader, err)
	}
	if h.NodeCount, err = strconv.Atoi(parts[1]); err != nil {
		return nil, fmt.Errorf("%w: node count: %v", ErrMalformedHeader, err)
	}
	if h.NodeCount < 0 {
		return nil, fmt.Errorf("%w: negative node count %d", ErrMalformedHeader, h.NodeCount)
	}

	parts = strings.Fields(lines[2])
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: invalid field line: %q", ErrMalformedHeader, lines[2])
	}
	h.Name = parts[1]
	// Only needed for materialized blocks, checked by the caller
	if len(parts) < 3 {
		h.codeErr = fmt.Errorf("%w: missing component count: %q", ErrMalformedHeader, lines[2])
	} else if h.Code, err = strconv.Atoi(parts[2]); err != nil {
		h.codeErr = fmt.Errorf("%w: component count: %v", ErrMalformedHeader, err)
	}

	for _, line := range lines[3:] {
		f := strings.Fields(line)
		if len(f) >= 2 && f[0] == "-5" {
			h.Labels = append(h.Labels, f[1])
		}
	}
	return h, nil
}

// componentLabels returns the column labels for n stored components
func (h *resultHeader) componentLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		if len(h.Labels) >= n {
			labels[i] = h.Labels[i]
		} else {
			labels[i] = "c_" + strconv.Itoa(i)
		}
	}
	return labels
}

// decodeResults decodes every result block. Each header runs from its marker
// to the nearest following boundary marker, and the payload follows.
func (d *FRDDecoder) decodeResults(buf []byte, bs *BlockSpans, remap IndexRemap,
	msh *mesh.Mesh, report *DecodeReport) error {
	bounds := bs.Boundaries()
	for n, hdrSpan := range bs.Get(ResultHeader) {
		bnd, ok := nextSpan(bounds, hdrSpan.End)
		if !ok {
			return fmt.Errorf("result block %d: %w: no end of header", n, ErrMalformedHeader)
		}
		h, err := parseResultHeader(buf[hdrSpan.Start:bnd.End])
		if err != nil {
			return fmt.Errorf("result block %d: %w", n, err)
		}
		info := BlockInfo{
			Key:        mesh.FieldKey(h.Name, h.Time),
			Name:       h.Name,
			Time:       h.Time,
			NodeCount:  h.NodeCount,
			Components: h.Code,
			Skipped:    d.SkipFields[h.Name],
		}
		if info.Skipped {
			report.Blocks = append(report.Blocks, info)
			continue
		}
		if h.codeErr != nil {
			return fmt.Errorf("result block %d (%s): %w", n, h.Name, h.codeErr)
		}
		f, padded, err := decodePayload(buf, bnd.End, h, remap, msh.NumPoints())
		if err != nil {
			return fmt.Errorf("result block %d (%s): %w", n, h.Name, err)
		}
		info.PaddedRows = padded
		msh.SetField(f)
		report.Blocks = append(report.Blocks, info)
	}
	return nil
}

// decodePayload reads exactly h.NodeCount records of (int32 id, float32...)
// starting at start. Rows are placed in node table order and nodes absent from
// the payload are left at zero.
func decodePayload(buf []byte, start int, h *resultHeader, remap IndexRemap, npts int) (
	f *mesh.Field, padded int, err error) {
	stored, ok := storedComponents[h.Code]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unsupported component count %d", ErrMalformedHeader, h.Code)
	}
	recSize := 4 + 4*stored
	// Bounded by division, a declared count near MaxInt overflows the product
	if h.NodeCount > (len(buf)-start)/recSize {
		return nil, 0, fmt.Errorf("%w: %d records of %d bytes from %d exceed buffer length %d",
			ErrTruncatedPayload, h.NodeCount, recSize, start, len(buf))
	}
	var (
		data = make([]float64, npts*stored)
		seen = make([]bool, npts)
	)
	for r := 0; r < h.NodeCount; r++ {
		rec := buf[start+r*recSize:]
		id := int32(le.Uint32(rec))
		row, ok := remap.Lookup(id)
		if !ok {
			return nil, 0, fmt.Errorf("%w: node id %d not in node table", ErrMalformedResult, id)
		}
		seen[row] = true
		for c := 0; c < stored; c++ {
			data[row*stored+c] = float64(math.Float32frombits(le.Uint32(rec[4+4*c:])))
		}
	}
	for _, s := range seen {
		if !s {
			padded++
		}
	}
	f = &mesh.Field{
		Name:       h.Name,
		Time:       h.Time,
		Components: h.componentLabels(stored),
		Data:       mat.NewDense(npts, stored, data),
	}
	return
}
