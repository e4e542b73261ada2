// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package gcn composes specialized shader variants for a GCN-class GPU from
// independently compiled parts.
//
// A shader stage is split into a prolog, a main part, and an epilog. Prologs
// and epilogs are selected by small fixed-size keys derived from pipeline
// state and cached process-wide; main parts are shared between variants that
// agree on their hardware role. A stitcher composes the pieces into one
// callable program, and a selector picks the right variant per draw,
// compiling optimized variants in the background.
//
// The packages divide the work:
//   - ir — the register-class IR parts are built in, plus the backend
//     (Compile) and a lockstep workgroup interpreter for tests
//   - abi — argument lists and the scalar-before-vector register convention
//   - parts — shader keys, the part cache, the five part compilers, the
//     wrapper/stitcher
//   - ngg — workgroup scans, streamout bookkeeping, vertex compaction for
//     primitive shaders
//   - variant — selectors, variant lists, the background compile queue
//
// Example usage:
//
//	screen := gcn.NewScreen(gcn.DefaultOptions())
//	defer screen.Destroy()
//
//	prolog, err := screen.VSProlog(parts.VSPrologKey{
//	    NumInputSGPRs: 6,
//	    NumInputVGPRs: 4,
//	    NumInputs:     2,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = prolog.Usage
package gcn

import (
	"runtime"
	"sync"

	"github.com/gogpu/gcn/ir"
	"github.com/gogpu/gcn/parts"
	"github.com/gogpu/gcn/variant"
)

// Options configures a Screen.
type Options struct {
	// WaveSize is the lane count of one wave.
	WaveSize int

	// MaxWaves bounds the waves of one workgroup.
	MaxWaves int

	// Workers sizes the background compilation pool.
	Workers int

	// SynchronousCompile disables background compilation; every variant
	// compiles on the calling goroutine.
	SynchronousCompile bool

	// AllowLargeComputeSGPRs disables the fatal compute SGPR budget check.
	// Test harnesses only.
	AllowLargeComputeSGPRs bool
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		WaveSize: 64,
		MaxWaves: 8,
		Workers:  runtime.GOMAXPROCS(0),
	}
}

// Screen is the process-wide registry: the IR module everything compiles
// into, the part caches, and the background compile queue. Create one per
// device; Destroy tears down every selector created from it.
type Screen struct {
	opts  Options
	cache *parts.Cache
	queue *variant.Queue

	// mu guards the IR module; part builds and stitching append to it.
	mu     sync.Mutex
	module *ir.Module

	selMu     sync.Mutex
	selectors []*variant.Selector
}

// NewScreen creates a screen.
func NewScreen(opts Options) *Screen {
	s := &Screen{
		opts:   opts,
		cache:  &parts.Cache{},
		module: ir.NewModule("screen"),
	}
	if !opts.SynchronousCompile {
		s.queue = variant.NewQueue(opts.Workers)
	}
	return s
}

// Options returns the screen's configuration.
func (s *Screen) Options() Options { return s.opts }

// Module exposes the screen's IR module. Callers building main parts must
// serialize with WithModule.
func (s *Screen) Module() *ir.Module { return s.module }

// WithModule runs fn with exclusive access to the IR module.
func (s *Screen) WithModule(fn func(m *ir.Module) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.module)
}

// NewSelector creates a stage selector backed by this screen's queue and
// registers it for teardown.
func (s *Screen) NewSelector(stage parts.Stage, compile variant.CompileFunc) *variant.Selector {
	sel := variant.NewSelector(stage, compile, s.queue)
	s.selMu.Lock()
	s.selectors = append(s.selectors, sel)
	s.selMu.Unlock()
	return sel
}

// Destroy tears down every selector, drains the compile queue, and drops the
// part caches.
func (s *Screen) Destroy() {
	s.selMu.Lock()
	sels := s.selectors
	s.selectors = nil
	s.selMu.Unlock()
	for _, sel := range sels {
		sel.Destroy()
	}
	if s.queue != nil {
		s.queue.Destroy()
	}
	s.cache.Destroy()
}

func (s *Screen) getPart(kind parts.Kind, key any, build func() (*parts.CompiledPart, error)) (*parts.CompiledPart, error) {
	return s.cache.GetOrCompile(kind, key, func() (*parts.CompiledPart, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return build()
	})
}

// VSProlog returns the cached vertex prolog for key, compiling on first use.
func (s *Screen) VSProlog(key parts.VSPrologKey) (*parts.CompiledPart, error) {
	return s.getPart(parts.KindVSProlog, key, func() (*parts.CompiledPart, error) {
		return parts.BuildVSProlog(s.module, key)
	})
}

// TCSEpilog returns the cached tessellation-control epilog for key.
func (s *Screen) TCSEpilog(key parts.TCSEpilogKey) (*parts.CompiledPart, error) {
	return s.getPart(parts.KindTCSEpilog, key, func() (*parts.CompiledPart, error) {
		return parts.BuildTCSEpilog(s.module, key)
	})
}

// GSProlog returns the cached geometry prolog for key.
func (s *Screen) GSProlog(key parts.GSPrologKey) (*parts.CompiledPart, error) {
	return s.getPart(parts.KindGSProlog, key, func() (*parts.CompiledPart, error) {
		return parts.BuildGSProlog(s.module, key)
	})
}

// PSProlog returns the cached pixel prolog for key.
func (s *Screen) PSProlog(key parts.PSPrologKey) (*parts.CompiledPart, error) {
	return s.getPart(parts.KindPSProlog, key, func() (*parts.CompiledPart, error) {
		return parts.BuildPSProlog(s.module, key)
	})
}

// PSEpilog returns the cached pixel epilog for key.
func (s *Screen) PSEpilog(key parts.PSEpilogKey) (*parts.CompiledPart, error) {
	return s.getPart(parts.KindPSEpilog, key, func() (*parts.CompiledPart, error) {
		return parts.BuildPSEpilog(s.module, key)
	})
}

// Link stitches an ordered part list into one program and compiles it.
// nextShaderFirstPart > 0 marks where the second logical stage of a merged
// shader begins.
func (s *Screen) Link(partFns []ir.FuncHandle, mainPart, nextShaderFirstPart int) (ir.FuncHandle, *ir.Binary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fh, err := parts.BuildWrapper(s.module, partFns, mainPart, nextShaderFirstPart)
	if err != nil {
		return 0, nil, err
	}
	bin, err := ir.Compile(s.module, fh)
	if err != nil {
		return 0, nil, err
	}
	return fh, bin, nil
}

// ValidateUsage enforces stage-specific register budgets on a final,
// aggregated usage summary.
func (s *Screen) ValidateUsage(stage parts.Stage, u ir.RegisterUsage) error {
	if stage == parts.StageCompute {
		return parts.CheckComputeSGPRs(u, s.opts.AllowLargeComputeSGPRs)
	}
	return nil
}
