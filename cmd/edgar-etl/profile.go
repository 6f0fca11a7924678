package main

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/akhil324/sec-edgar-filings/pkg/errors"
)

// profiler writes pprof profiles of one command invocation
type profiler struct {
	cpuFile string
	memFile string

	cpu *os.File
}

func (p *profiler) start() error {
	if p.cpuFile == "" {
		return nil
	}
	f, err := os.Create(p.cpuFile)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create CPU profile").
			WithDetail("path", p.cpuFile)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to start CPU profile")
	}
	p.cpu = f
	return nil
}

// stop ends CPU profiling and writes the heap profile
func (p *profiler) stop() error {
	if p.cpu != nil {
		pprof.StopCPUProfile()
		_ = p.cpu.Close()
		p.cpu = nil
	}
	if p.memFile == "" {
		return nil
	}

	f, err := os.Create(p.memFile)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create memory profile").
			WithDetail("path", p.memFile)
	}
	defer f.Close()

	runtime.GC() // up-to-date statistics
	if err := pprof.WriteHeapProfile(f); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write memory profile")
	}
	return nil
}
