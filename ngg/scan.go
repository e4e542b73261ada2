// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package ngg builds the workgroup-level control flow of primitive shaders:
// multi-wave prefix sums, transform-feedback emission with overflow
// correction, and vertex compaction with the final export sequence.
package ngg

import (
	"github.com/gogpu/gcn/ir"
)

// MaxScanWaves bounds the scratch slots of one scan invocation.
const MaxScanWaves = 8

// WGScan computes a reduction and/or prefix sums of a per-invocation value
// across all waves of a workgroup. The algorithm has two halves: Top runs
// before a workgroup barrier and publishes each wave's partial to shared
// scratch; Bottom runs after the barrier and folds the other waves'
// partials in. The caller owns the barrier so several scans can share one.
//
// At least one of EnableReduce, EnableExclusive, EnableInclusive must be
// set. Results are valid after Bottom returns.
type WGScan struct {
	Op ir.CombineOp

	EnableReduce    bool
	EnableExclusive bool
	EnableInclusive bool

	// MaxWaves sizes the scratch region; zero means MaxScanWaves.
	MaxWaves int

	// WaveID is this wave's index within the workgroup, NumWaves the live
	// wave count.
	WaveID   ir.Value
	NumWaves ir.Value

	// Src is the per-invocation contribution.
	Src ir.Value

	// Result holds the workgroup reduction, ResultExclusive/ResultInclusive
	// the prefix sums at this invocation.
	Result          ir.Value
	ResultExclusive ir.Value
	ResultInclusive ir.Value

	scratch    int
	inWaveIncl ir.Value
	inWaveExcl ir.Value
}

func (s *WGScan) maxWaves() int {
	if s.MaxWaves == 0 {
		return MaxScanWaves
	}
	return s.MaxWaves
}

// Top emits the per-wave half: an in-wave scan plus one shared-scratch store
// of the wave's total, performed by the lane whose index equals the wave's
// own index so every wave writes a distinct slot.
func (s *WGScan) Top(b *ir.Builder) {
	if !s.EnableReduce && !s.EnableExclusive && !s.EnableInclusive {
		panic("ngg: scan with no result requested")
	}
	if s.maxWaves() > MaxScanWaves {
		panic("ngg: scan over more waves than the scratch region holds")
	}

	if s.EnableInclusive {
		s.inWaveIncl = b.WaveInclScan(s.Op, s.Src)
	}
	if s.EnableExclusive {
		s.inWaveExcl = b.WaveExclScan(s.Op, s.Src)
	}
	waveTotal := b.WaveReduce(s.Op, s.Src)

	s.scratch = b.AllocLDS("wg_scan_scratch", uint32(s.maxWaves()))
	designated := b.ICmp(ir.CmpEQ, b.MBCnt(), s.WaveID)
	b.IfBegin(designated)
	b.LDSStore(s.scratch, s.WaveID, waveTotal)
	b.EndIf()
}

// Bottom emits the combine half. It must run after a workgroup barrier that
// orders every wave's Top store before any wave's loads here.
func (s *WGScan) Bottom(b *ir.Builder) {
	identity := b.ConstI32(uint32(s.Op.Identity()))

	total := identity
	before := identity
	for w := 0; w < s.maxWaves(); w++ {
		wc := b.ConstI32(uint32(w))
		partial := b.LDSLoad(s.scratch, wc)
		live := b.ICmp(ir.CmpULT, wc, s.NumWaves)
		partial = b.Select(live, partial, identity)
		total = combine(b, s.Op, total, partial)

		mine := b.ICmp(ir.CmpULT, wc, s.WaveID)
		before = combine(b, s.Op, before, b.Select(mine, partial, identity))
	}

	if s.EnableReduce {
		s.Result = total
	}
	if s.EnableExclusive {
		s.ResultExclusive = combine(b, s.Op, before, s.inWaveExcl)
	}
	if s.EnableInclusive {
		s.ResultInclusive = combine(b, s.Op, before, s.inWaveIncl)
	}
}

// Run emits the whole scan with its own barrier between the halves.
func (s *WGScan) Run(b *ir.Builder) {
	s.Top(b)
	b.Barrier()
	s.Bottom(b)
}

func combine(b *ir.Builder, op ir.CombineOp, x, y ir.Value) ir.Value {
	switch op {
	case ir.CombineUMin:
		return b.UMin(x, y)
	case ir.CombineUMax:
		return b.Select(b.ICmp(ir.CmpUGT, x, y), x, y)
	default:
		return b.IAdd(x, y)
	}
}
