package readers

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/notargets/gofrd/mesh"
)

// Compression wrappers accepted around a mesh file
var decompressors = map[string]func(io.Reader) (io.Reader, error){
	".gz": func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	},
	".zst": func(r io.Reader) (io.Reader, error) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	},
	".lz4": func(r io.Reader) (io.Reader, error) {
		return lz4.NewReader(r), nil
	},
}

// SplitExt returns the mesh format extension and the compression extension
// of filename, e.g. ("model", ".frd", ".zst") for model.frd.zst
func SplitExt(filename string) (base, format, compression string) {
	base = filename
	ext := strings.ToLower(filepath.Ext(base))
	if _, ok := decompressors[ext]; ok {
		compression = ext
		base = base[:len(base)-len(ext)]
	}
	format = strings.ToLower(filepath.Ext(base))
	base = base[:len(base)-len(format)]
	return
}

// ReadMeshFile reads a mesh file based on extension
func ReadMeshFile(filename string) (*mesh.Mesh, error) {
	_, format, _ := SplitExt(filename)

	switch format {
	case ".frd":
		msh, _, err := ReadFRD(filename)
		return msh, err
	default:
		return nil, fmt.Errorf("unsupported mesh format: %s", format)
	}
}

// ReadBuffer reads a whole file into memory, decompressing it when the name
// carries a compression extension
func ReadBuffer(filename string) ([]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var r io.Reader = file
	_, _, compression := SplitExt(filename)
	if compression != "" {
		if r, err = decompressors[compression](file); err != nil {
			return nil, fmt.Errorf("%s: open %s stream: %w", filename, compression, err)
		}
		if c, ok := r.(io.Closer); ok {
			defer c.Close()
		}
	}
	var buf bytes.Buffer
	if fi, err := file.Stat(); err == nil && compression == "" {
		buf.Grow(int(fi.Size()))
	}
	if _, err = io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return buf.Bytes(), nil
}

// ReadFRD reads and decodes a binary CalculiX result file
func ReadFRD(filename string) (*mesh.Mesh, *DecodeReport, error) {
	return NewFRDDecoder().ReadFile(filename)
}

// ReadFile reads and decodes filename with this decoder's skip set
func (d *FRDDecoder) ReadFile(filename string) (*mesh.Mesh, *DecodeReport, error) {
	buf, err := ReadBuffer(filename)
	if err != nil {
		return nil, nil, err
	}
	return d.Decode(buf)
}
