package readers

import (
	"bytes"
	"sort"
)

// maxMarkerGap bounds the wildcard run inside a marker line. FRD record lines
// are at most a few hundred characters.
const maxMarkerGap = 256

// MarkerSpan is one located occurrence of a marker, Match is buf[Start:End]
type MarkerSpan struct {
	Start, End int
	Match      []byte
}

// markerPattern matches Prefix, then a lazy run of non-newline bytes, then
// Suffix. Literal patterns have no wildcard.
type markerPattern struct {
	Prefix   []byte
	Suffix   []byte
	Wildcard bool
}

type Marker int

const (
	NodeSection Marker = iota
	ElementSection
	ResultHeader
	AllStep
	BoundaryV1
	BoundaryV2
	EndOfFile
	numMarkers
)

func (mk Marker) String() string {
	return [...]string{"NodeSection", "ElementSection", "ResultHeader",
		"AllStep", "BoundaryV1", "BoundaryV2", "EndOfFile"}[mk]
}

var markerPatterns = [numMarkers]markerPattern{
	NodeSection:    {Prefix: []byte("    2C  "), Suffix: []byte("3\n"), Wildcard: true},
	ElementSection: {Prefix: []byte("    3C  "), Suffix: []byte("\n"), Wildcard: true},
	ResultHeader:   {Prefix: []byte("    1PSTEP"), Suffix: []byte("\n"), Wildcard: true},
	AllStep:        {Prefix: []byte("1ALL\n")},
	BoundaryV1:     {Prefix: []byte("3    1\n")},
	BoundaryV2:     {Prefix: []byte("0    0\n")},
	EndOfFile:      {Prefix: []byte(" 9999")},
}

// BlockSpans holds the spans of every marker, each slice in buffer order
type BlockSpans struct {
	Spans [numMarkers][]MarkerSpan
}

func (bs *BlockSpans) Get(mk Marker) []MarkerSpan { return bs.Spans[mk] }

// Boundaries merges every "ascii header ends here" span, sorted by start
func (bs *BlockSpans) Boundaries() []MarkerSpan {
	var out []MarkerSpan
	for _, mk := range []Marker{AllStep, BoundaryV1, BoundaryV2} {
		out = append(out, bs.Spans[mk]...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// LocateBlocks scans buf for every marker. It returns nil when there is no
// node section, meaning buf is not a binary frd file.
func LocateBlocks(buf []byte) *BlockSpans {
	bs := &BlockSpans{}
	for mk := Marker(0); mk < numMarkers; mk++ {
		bs.Spans[mk] = markerPatterns[mk].findAll(buf)
	}
	if len(bs.Spans[NodeSection]) == 0 {
		return nil
	}
	return bs
}

func (p markerPattern) findAll(buf []byte) (spans []MarkerSpan) {
	pos := 0
	for pos < len(buf) {
		i := bytes.Index(buf[pos:], p.Prefix)
		if i < 0 {
			break
		}
		start := pos + i
		end, ok := p.matchAt(buf, start)
		if !ok {
			pos = start + 1
			continue
		}
		spans = append(spans, MarkerSpan{Start: start, End: end, Match: buf[start:end]})
		pos = end
		if end == start {
			pos++
		}
	}
	return
}

// matchAt returns the end of the match beginning at start with Prefix
func (p markerPattern) matchAt(buf []byte, start int) (end int, ok bool) {
	end = start + len(p.Prefix)
	if !p.Wildcard {
		return end, true
	}
	limit := end + maxMarkerGap
	for j := end; j <= limit && j < len(buf); j++ {
		if bytes.HasPrefix(buf[j:], p.Suffix) {
			return j + len(p.Suffix), true
		}
		if buf[j] == '\n' {
			return 0, false
		}
	}
	return 0, false
}

// nextSpan returns the first span starting at or after offset
func nextSpan(spans []MarkerSpan, offset int) (MarkerSpan, bool) {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].Start >= offset })
	if i == len(spans) {
		return MarkerSpan{}, false
	}
	return spans[i], true
}
