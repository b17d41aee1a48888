// Package convert runs the frd decoder over single files and batches of files.
// Every file is independent: a file that cannot be read or decoded is reported
// in its Result and never stops the rest of a batch.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notargets/gofrd/ctxlog"
	"github.com/notargets/gofrd/mesh"
	"github.com/notargets/gofrd/readers"
	"github.com/notargets/gofrd/utils"
)

type Status int

const (
	Converted     Status = iota
	NotApplicable        // Unreadable, or not a binary frd file
	Failed               // Malformed content or output failure
)

func (s Status) String() string {
	return [...]string{"Converted", "NotApplicable", "Failed"}[s]
}

// Result is the outcome of one file
type Result struct {
	Path    string
	Output  string // Empty unless a file was written
	Status  Status
	Mesh    *mesh.Mesh // Only retained with Converter.KeepMeshes
	Report  *readers.DecodeReport
	Err     error
	Elapsed time.Duration
}

type Converter struct {
	Workers    int         // Concurrent files, <= 0 means one per CPU
	Writer     mesh.Writer // nil decodes without writing output
	OutputDir  string      // Empty writes beside the input
	KeepMeshes bool
	decoder    *readers.FRDDecoder
}

// NewConverter creates a converter skipping the named fields, the decoder
// defaults when none are given
func NewConverter(workers int, writer mesh.Writer, skipFields ...string) *Converter {
	return &Converter{
		Workers: workers,
		Writer:  writer,
		decoder: readers.NewFRDDecoder(skipFields...),
	}
}

// OutputPath replaces the frd and compression extensions of path with the
// writer extension
func (c *Converter) OutputPath(path string) string {
	base, _, _ := readers.SplitExt(path)
	if c.OutputDir != "" {
		base = filepath.Join(c.OutputDir, filepath.Base(base))
	}
	ext := ""
	if c.Writer != nil {
		ext = c.Writer.Extension()
	}
	return base + ext
}

// ConvertFile reads, decodes and writes one file
func (c *Converter) ConvertFile(ctx context.Context, path string) (res Result) {
	var (
		start  = time.Now()
		logger = ctxlog.FromContext(ctx).With("file", path)
	)
	res.Path = path
	defer func() {
		if r := recover(); r != nil {
			res = Result{Path: path, Status: Failed, Err: fmt.Errorf("panic: %v", r)}
		}
		res.Elapsed = time.Since(start)
		if res.Status == Failed {
			logger.Error("Conversion failed", "error", res.Err)
		}
	}()
	logger.Info("Converting")

	buf, err := readers.ReadBuffer(path)
	if err != nil {
		logger.Info("Error reading file", "error", err)
		res.Status, res.Err = NotApplicable, err
		return
	}
	msh, report, err := c.decoder.Decode(buf)
	switch {
	case errors.Is(err, readers.ErrNotBinaryFormat):
		logger.Info("frd format not binary")
		res.Status, res.Err = NotApplicable, err
		return
	case err != nil:
		res.Status, res.Err = Failed, err
		return
	}
	logReport(logger, report)

	if c.Writer != nil {
		out := c.OutputPath(path)
		if err = writeMesh(c.Writer, out, msh); err != nil {
			res.Status, res.Err = Failed, err
			return
		}
		res.Output = out
		logger.Info("Saved", "output", out)
	}
	res.Status, res.Report = Converted, report
	if c.KeepMeshes {
		res.Mesh = msh
	}
	logger.Info("Elapsed time", "elapsed", time.Since(start), "mem", utils.GetMemUsage())
	return
}

// ConvertFiles converts every path on a pool of Workers goroutines. Results
// are returned in completion order. Once ctx is done no new file is started
// and the remaining paths are reported as Failed.
func (c *Converter) ConvertFiles(ctx context.Context, paths []string) []Result {
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var (
		g       errgroup.Group
		results = make(chan Result, len(paths))
	)
	g.SetLimit(workers)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			results <- Result{Path: path, Status: Failed, Err: err}
			continue
		}
		g.Go(func() error {
			results <- c.ConvertFile(ctx, path)
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	out := make([]Result, 0, len(paths))
	for r := range results {
		out = append(out, r)
	}
	return out
}

// Tally counts results by status
func Tally(results []Result) (counts map[Status]int) {
	counts = make(map[Status]int)
	for _, r := range results {
		counts[r.Status]++
	}
	return
}

func writeMesh(w mesh.Writer, out string, msh *mesh.Mesh) (err error) {
	file, err := os.Create(out)
	if err != nil {
		return err
	}
	if err = w.WriteMesh(file, msh); err != nil {
		file.Close()
		os.Remove(out)
		return fmt.Errorf("write %s: %w", out, err)
	}
	return file.Close()
}

func logReport(logger *slog.Logger, report *readers.DecodeReport) {
	for _, b := range report.Blocks {
		if b.Skipped {
			logger.Info("Skipping result block", "name", b.Name,
				"timestamp", fmt.Sprintf("%.3f", b.Time))
			continue
		}
		logger.Info("Result block", "timestamp", fmt.Sprintf("%.3f", b.Time),
			"nn", b.NodeCount, "name", b.Name, "padded", b.PaddedRows)
	}
	if tr := report.Truncation; tr != nil {
		logger.Warn("Element stream truncated", "kindCode", tr.KindCode,
			"wordOffset", tr.WordOffset, "remainingWords", tr.RemainingWords,
			"elements", report.Elements)
	}
}
