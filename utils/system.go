package utils

import (
	"fmt"
	"log/slog"
	"runtime"
)

// MemUsage is a snapshot of the Go runtime memory statistics, sizes in MiB
type MemUsage struct {
	Alloc, TotalAlloc, Sys uint64
	NumGC                  uint32
}

func GetMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	// For info on each, see: https://golang.org/pkg/runtime/#MemStats
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}
	return MemUsage{
		Alloc:      bToMb(m.Alloc),
		TotalAlloc: bToMb(m.TotalAlloc),
		Sys:        bToMb(m.Sys),
		NumGC:      m.NumGC,
	}
}

func (mu MemUsage) String() string {
	return fmt.Sprintf("Alloc = %v MiB TotalAlloc = %v MiB Sys = %v MiB NumGC = %v",
		mu.Alloc, mu.TotalAlloc, mu.Sys, mu.NumGC)
}

// LogValue implements slog.LogValuer
func (mu MemUsage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("allocMiB", mu.Alloc),
		slog.Uint64("sysMiB", mu.Sys),
		slog.Uint64("numGC", uint64(mu.NumGC)),
	)
}
