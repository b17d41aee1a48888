package readers

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofrd/mesh"
)

func TestDecodeFRD_SingleLineElement(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddElement(1, 11, 1, 1, 1).
		AddResult("DISP", 0.5, 4, []string{"D1", "D2", "D3"},
			ResultRow{1, []float32{0.1, 0.2, 0.3}}).
		Build()

	msh, report, err := DecodeFRD(buf)
	require.NoError(t, err)
	require.NotNil(t, msh)
	require.NotNil(t, report)

	assert.Equal(t, 1, msh.NumPoints())
	assert.Equal(t, 1, msh.NumCells())
	require.Len(t, msh.Cells[mesh.Line], 1)
	assert.Equal(t, []int{0, 0}, msh.Cells[mesh.Line][0])
	assert.Equal(t, []int{1}, msh.ElementID)
	assert.Equal(t, []int{1}, msh.MaterialID)
	assert.Equal(t, []int{1}, msh.NodeID)
	assert.Nil(t, report.Truncation)

	f, ok := msh.Fields["DISP_0.500"]
	require.True(t, ok, "fields: %v", msh.FieldNames())
	r, c := f.Data.Dims()
	assert.Equal(t, 1, r)
	assert.Equal(t, 3, c)
	assert.InDelta(t, 0.1, f.Data.At(0, 0), 1e-7)
	assert.InDelta(t, 0.2, f.Data.At(0, 1), 1e-7)
	assert.InDelta(t, 0.3, f.Data.At(0, 2), 1e-7)
	assert.Equal(t, []string{"D1", "D2", "D3"}, f.Components)
	assert.Equal(t, "DISP", f.Name)
	assert.Equal(t, 0.5, f.Time)
}

func TestDecodeFRD_NotBinary(t *testing.T) {
	msh, report, err := DecodeFRD(NewFRDTestBuilder().BuildASCII())
	assert.Nil(t, msh)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrNotBinaryFormat)
}

func TestIndexRemap_Bijection(t *testing.T) {
	nodes := []Node{{ID: 7}, {ID: 3}, {ID: 12}, {ID: 1}}
	remap, err := NewIndexRemap(nodes)
	require.NoError(t, err)
	assert.Len(t, remap, 13)
	for i, n := range nodes {
		row, ok := remap.Lookup(n.ID)
		require.True(t, ok)
		assert.Equal(t, i, row)
	}
	_, ok := remap.Lookup(2)
	assert.False(t, ok)
	_, ok = remap.Lookup(13)
	assert.False(t, ok)
	_, ok = remap.Lookup(-1)
	assert.False(t, ok)

	_, err = NewIndexRemap([]Node{{ID: 1}, {ID: 1}})
	assert.ErrorIs(t, err, ErrMalformedSection)
	_, err = NewIndexRemap([]Node{{ID: -4}})
	assert.ErrorIs(t, err, ErrMalformedSection)
}

func TestDecodeFRD_SparseNodeIDs(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(10, 1, 2, 3).
		AddNode(4, 4, 5, 6).
		AddNode(99, 7, 8, 9).
		AddElement(5, 7, 2, 99, 10, 4).
		Build()

	msh, _, err := DecodeFRD(buf)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 4, 99}, msh.NodeID)
	assert.Equal(t, []int{2, 0, 1}, msh.Cells[mesh.Triangle][0])
	assert.Equal(t, []float64{4, 5, 6}, mat.Row(nil, 1, msh.Points))
	assert.Equal(t, []int{2}, msh.MaterialID)
	assert.Equal(t, []int{5}, msh.ElementID)
}

func TestDecodeFRD_Hex20Permutation(t *testing.T) {
	b := NewFRDTestBuilder()
	raw := make([]int32, 20)
	for i := range raw {
		// Node ids run backwards so remap is not the identity
		id := int32(100 - i)
		b.AddNode(id, float64(i), 0, 0)
		raw[i] = id
	}
	b.AddElement(1, 4, 1, raw...)
	msh, _, err := DecodeFRD(b.Build())
	require.NoError(t, err)
	require.Len(t, msh.Cells[mesh.Hex20], 1)

	// Node id 100-i sits at row i
	expected := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 16, 17, 18, 19, 12, 13, 14, 15}
	if diff := cmp.Diff(expected, msh.Cells[mesh.Hex20][0]); diff != "" {
		t.Errorf("hex20 connectivity mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeFRD_AllKinds(t *testing.T) {
	b := NewFRDTestBuilder()
	for i := int32(1); i <= 20; i++ {
		b.AddNode(i, float64(i), 0, 0)
	}
	conn := func(n int) []int32 {
		c := make([]int32, n)
		for i := range c {
			c[i] = int32(i + 1)
		}
		return c
	}
	for code := int32(1); code <= 12; code++ {
		ek := elementKinds[code]
		b.AddElement(100+code, code, code, conn(ek.NodeCount)...)
	}
	msh, report, err := DecodeFRD(b.Build())
	require.NoError(t, err)
	assert.Nil(t, report.Truncation)
	assert.Equal(t, 12, report.Elements)
	assert.Len(t, msh.CellTypes(), 12)

	for k := 0; k < msh.NumCells(); k++ {
		etype, c := msh.Cell(k)
		assert.Equal(t, etype.GetNumNodes(), len(c), etype.String())
		assert.Equal(t, 101+k, msh.ElementID[k])
		assert.Equal(t, 1+k, msh.MaterialID[k])
	}
	_, c := msh.Cell(4) // Prism15 passes through
	assert.Equal(t, 14, c[14])
}

func TestDecodeFRD_UnknownKindTruncates(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddNode(2, 1, 0, 0).
		AddElement(1, 11, 1, 1, 2).
		AddElementWords(2, 42, 0, 0, 7, 7).
		AddElement(3, 11, 1, 2, 1).
		Build()

	msh, report, err := DecodeFRD(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, msh.NumCells())
	require.NotNil(t, report.Truncation)
	assert.Equal(t, int32(42), report.Truncation.KindCode)
	assert.Equal(t, 6, report.Truncation.WordOffset)
	assert.Equal(t, 12, report.Truncation.RemainingWords)
}

func TestDecodeFRD_PartialRecordTruncates(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddNode(2, 1, 0, 0).
		AddElement(1, 11, 1, 1, 2).
		AddElementWords(2, 1, 0, 1, 1, 2).
		Build()

	msh, report, err := DecodeFRD(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, msh.NumCells())
	require.NotNil(t, report.Truncation)
	assert.Equal(t, int32(0), report.Truncation.KindCode)
	assert.Equal(t, 6, report.Truncation.RemainingWords)
}

func TestDecodeFRD_UnknownConnectivityNode(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddElement(1, 11, 1, 1, 5).
		Build()
	msh, _, err := DecodeFRD(buf)
	assert.Nil(t, msh)
	assert.ErrorIs(t, err, ErrMalformedElement)
}

func TestDecodeFRD_PaddingInNodeOrder(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(3, 0, 0, 0).
		AddNode(1, 1, 0, 0).
		AddNode(2, 2, 0, 0).
		AddElement(1, 11, 1, 3, 1).
		// Payload order differs from node order and node 2 is missing
		AddResult("DISP", 1, 4, []string{"D1", "D2", "D3"},
			ResultRow{1, []float32{1, 1, 1}},
			ResultRow{3, []float32{3, 3, 3}}).
		AddResult("NT", 1, 1, []string{"T"},
			ResultRow{2, []float32{20}}).
		Build()

	msh, report, err := DecodeFRD(buf)
	require.NoError(t, err)

	disp := msh.Fields["DISP_1.000"]
	require.NotNil(t, disp)
	assert.Equal(t, []float64{3, 3, 3, 1, 1, 1, 0, 0, 0}, disp.Data.RawMatrix().Data)

	nt := msh.Fields["NT_1.000"]
	require.NotNil(t, nt)
	assert.Equal(t, []float64{0, 0, 20}, nt.Data.RawMatrix().Data)
	assert.Equal(t, []string{"T"}, nt.Components)

	require.Len(t, report.Blocks, 2)
	assert.Equal(t, 1, report.Blocks[0].PaddedRows)
	assert.Equal(t, 2, report.Blocks[1].PaddedRows)

	for _, f := range msh.Fields {
		r, _ := f.Data.Dims()
		assert.Equal(t, msh.NumPoints(), r, f.Name)
	}
	assert.Equal(t, []int{2}, msh.OrphanNodes())
}

func TestDecodeFRD_SkipFields(t *testing.T) {
	b := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddElement(1, 11, 1, 1, 1)
	for _, name := range DefaultSkipFields {
		b.AddResult(name, 0, 1, []string{"V"}, ResultRow{1, []float32{1}})
	}
	b.AddResult("STRESS", 2, 6, []string{"SXX", "SYY", "SZZ", "SXY", "SYZ", "SZX"},
		ResultRow{1, []float32{1, 2, 3, 4, 5, 6}})

	msh, report, err := DecodeFRD(b.Build())
	require.NoError(t, err)
	assert.Equal(t, []string{"STRESS_2.000"}, msh.FieldNames())
	assert.Equal(t, DefaultSkipFields, report.SkippedFields())

	// A custom skip set replaces the defaults
	msh, _, err = NewFRDDecoder("STRESS").Decode(b.Build())
	require.NoError(t, err)
	assert.Equal(t, []string{"NORM_0.000", "SDV_0.000", "SENMISE_0.000", "SENPS1_0.000"},
		msh.FieldNames())
}

func TestDecodeFRD_ModalDisplacement(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddElement(1, 11, 1, 1, 1).
		AddModalResult("DISP", 0.125, 4, []string{"D1", "D2", "D3"},
			ResultRow{1, []float32{1, 2, 3}}).
		Build()

	msh, _, err := DecodeFRD(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"DISP_0.125"}, msh.FieldNames())
}

func TestDecodeFRD_TimestampRunIntoStepLabel(t *testing.T) {
	b := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddElement(1, 11, 1, 1, 1).
		AddResult("DISP", 0.5, 4, []string{"D1", "D2", "D3"},
			ResultRow{1, []float32{1, 2, 3}}).
		WithGluedTimestamp()
	buf := b.Build()
	require.True(t, bytes.Contains(buf, []byte("  100CL  1015.00000E-01")))

	msh, report, err := DecodeFRD(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"DISP_0.500"}, msh.FieldNames())
	require.Len(t, report.Blocks, 1)
	assert.Equal(t, 1, report.Blocks[0].NodeCount)
	assert.Equal(t, []float64{1, 2, 3}, msh.Fields["DISP_0.500"].Data.RawMatrix().Data)
}

func TestDecodeFRD_HeaderEndingOnBoundaryV1(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddNode(2, 1, 0, 0).
		AddElement(1, 11, 1, 1, 2).
		AddResult("STRESS", 1, 6, []string{"SXX", "SYY", "SZZ", "SXY", "SYZ", "SZX"},
			ResultRow{1, []float32{1, 2, 3, 4, 5, 6}},
			ResultRow{2, []float32{7, 8, 9, 10, 11, 12}}).
		WithBoundaryV1().
		AddResult("DISP", 1, 4, []string{"D1", "D2", "D3"},
			ResultRow{2, []float32{0.5, 0, 0}}).
		WithBoundaryV1().
		AddResult("NT", 1, 1, []string{"T"},
			ResultRow{1, []float32{300}},
			ResultRow{2, []float32{310}}).
		Build()

	bs := LocateBlocks(buf)
	require.NotNil(t, bs)
	assert.Len(t, bs.Get(BoundaryV1), 2)
	assert.Len(t, bs.Get(BoundaryV2), 1)

	msh, _, err := DecodeFRD(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"DISP_1.000", "NT_1.000", "STRESS_1.000"}, msh.FieldNames())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		msh.Fields["STRESS_1.000"].Data.RawMatrix().Data)
	assert.Equal(t, []string{"SXX", "SYY", "SZZ", "SXY", "SYZ", "SZX"},
		msh.Fields["STRESS_1.000"].Components)
	assert.Equal(t, []float64{0, 0, 0, 0.5, 0, 0}, msh.Fields["DISP_1.000"].Data.RawMatrix().Data)
	assert.Equal(t, []float64{300, 310}, msh.Fields["NT_1.000"].Data.RawMatrix().Data)
}

func TestDecodeFRD_ComponentLabelFallback(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddElement(1, 11, 1, 1, 1).
		AddResult("FORC", 0, 4, nil, ResultRow{1, []float32{1, 2, 3}}).
		Build()
	msh, _, err := DecodeFRD(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"c_0", "c_1", "c_2"}, msh.Fields["FORC_0.000"].Components)
}

func TestDecodeFRD_Errors(t *testing.T) {
	base := func() *FRDTestBuilder {
		return NewFRDTestBuilder().AddNode(1, 0, 0, 0).AddElement(1, 11, 1, 1, 1)
	}

	t.Run("unsupported component count", func(t *testing.T) {
		buf := base().AddResult("ODD", 0, 2, []string{"A", "B"},
			ResultRow{1, []float32{1, 2}}).Build()
		_, _, err := DecodeFRD(buf)
		assert.ErrorIs(t, err, ErrMalformedHeader)
	})

	t.Run("result for unknown node", func(t *testing.T) {
		buf := base().AddResult("NT", 0, 1, []string{"T"},
			ResultRow{9, []float32{1}}).Build()
		_, _, err := DecodeFRD(buf)
		assert.ErrorIs(t, err, ErrMalformedResult)
	})

	t.Run("truncated payload", func(t *testing.T) {
		buf := base().AddResult("NT", 0, 1, []string{"T"},
			ResultRow{1, []float32{1}}).Build()
		// Drop the end marker and half of the payload
		buf = buf[:len(buf)-len(" 9999\n")-4]
		_, _, err := DecodeFRD(buf)
		assert.ErrorIs(t, err, ErrTruncatedPayload)
	})

	t.Run("node count overflowing the payload size", func(t *testing.T) {
		buf := base().AddResult("DISP", 0, 4, []string{"D1", "D2", "D3"},
			ResultRow{1, []float32{1, 2, 3}}).WithNodeCount(math.MaxInt / 4).Build()
		// The payload runs to the end of the buffer
		buf = buf[:len(buf)-len(" 9999\n")]
		var (
			msh *mesh.Mesh
			err error
		)
		require.NotPanics(t, func() { msh, _, err = DecodeFRD(buf) })
		assert.Nil(t, msh)
		assert.ErrorIs(t, err, ErrTruncatedPayload)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		buf := base().AddResult("NT", 0, 1, []string{"T"},
			ResultRow{1, []float32{1}}).Build()
		buf = bytes.Replace(buf, []byte("0.00000E+00"), []byte("0.0000QE+00"), 1)
		_, _, err := DecodeFRD(buf)
		assert.ErrorIs(t, err, ErrMalformedHeader)
	})

	t.Run("ragged node table", func(t *testing.T) {
		buf := base().Build()
		i := bytes.Index(buf, []byte("    3C"))
		buf = append(append(append([]byte{}, buf[:i]...), 0), buf[i:]...)
		_, _, err := DecodeFRD(buf)
		assert.ErrorIs(t, err, ErrMalformedSection)
	})

	t.Run("missing element section", func(t *testing.T) {
		buf := []byte("    2C  3\n")
		_, _, err := DecodeFRD(buf)
		assert.ErrorIs(t, err, ErrMalformedSection)
	})
}

func TestDecodeFRD_Deterministic(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(2, 0, 0, 0).
		AddNode(1, 1, 1, 1).
		AddElement(1, 11, 1, 1, 2).
		AddResult("DISP", 0.25, 4, []string{"D1", "D2", "D3"},
			ResultRow{2, []float32{1, 2, 3}}).
		Build()

	m1, r1, err := DecodeFRD(buf)
	require.NoError(t, err)
	m2, r2, err := DecodeFRD(buf)
	require.NoError(t, err)

	assert.Equal(t, m1.Digest, m2.Digest)
	assert.True(t, mat.Equal(m1.Points, m2.Points))
	assert.Equal(t, m1.Cells, m2.Cells)
	assert.Equal(t, m1.FieldNames(), m2.FieldNames())
	for k, f := range m1.Fields {
		assert.True(t, mat.Equal(f.Data, m2.Fields[k].Data), k)
	}
	assert.Equal(t, r1, r2)
}

func TestDecodeFRD_NoResults(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddNode(2, 1, 0, 0).
		AddElement(1, 11, 1, 1, 2).
		Build()
	msh, report, err := DecodeFRD(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, msh.NumCells())
	assert.Empty(t, msh.Fields)
	assert.Nil(t, report.Truncation, "end marker must bound the element stream")
}

func TestReadFRD_Compressed(t *testing.T) {
	buf := NewFRDTestBuilder().
		AddNode(1, 0, 0, 0).
		AddElement(1, 11, 1, 1, 1).
		AddResult("NT", 3, 1, []string{"T"}, ResultRow{1, []float32{42}}).
		Build()
	dir := t.TempDir()

	write := func(name string, wrap func(w *bytes.Buffer) error) string {
		var out bytes.Buffer
		require.NoError(t, wrap(&out))
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
		return path
	}
	files := []string{
		write("plain.frd", func(w *bytes.Buffer) error {
			_, err := w.Write(buf)
			return err
		}),
		write("model.frd.gz", func(w *bytes.Buffer) error {
			zw := gzip.NewWriter(w)
			if _, err := zw.Write(buf); err != nil {
				return err
			}
			return zw.Close()
		}),
		write("model.frd.zst", func(w *bytes.Buffer) error {
			zw, err := zstd.NewWriter(w)
			if err != nil {
				return err
			}
			if _, err = zw.Write(buf); err != nil {
				return err
			}
			return zw.Close()
		}),
		write("model.FRD.lz4", func(w *bytes.Buffer) error {
			zw := lz4.NewWriter(w)
			if _, err := zw.Write(buf); err != nil {
				return err
			}
			return zw.Close()
		}),
	}
	for _, path := range files {
		msh, err := ReadMeshFile(path)
		require.NoError(t, err, path)
		require.NotNil(t, msh, path)
		assert.Equal(t, []string{"NT_3.000"}, msh.FieldNames(), path)
		assert.Equal(t, 42.0, msh.Fields["NT_3.000"].Data.At(0, 0), path)
	}
}

func TestReadMeshFile_Errors(t *testing.T) {
	_, err := ReadMeshFile("model.vtu")
	assert.Error(t, err)

	_, err = ReadMeshFile(filepath.Join(t.TempDir(), "missing.frd"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSplitExt(t *testing.T) {
	base, format, compression := SplitExt("/data/run/beam.frd.zst")
	assert.Equal(t, "/data/run/beam", base)
	assert.Equal(t, ".frd", format)
	assert.Equal(t, ".zst", compression)

	base, format, compression = SplitExt("beam.frd")
	assert.Equal(t, "beam", base)
	assert.Equal(t, ".frd", format)
	assert.Equal(t, "", compression)
}
