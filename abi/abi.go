// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package abi declares the register-level calling convention of shader
// parts. An argument list is an ordered sequence of typed arguments, each in
// the scalar or vector register class, with every scalar argument preceding
// every vector argument. The stitcher depends on that ordering to split a
// part's parameter list into its SGPR and VGPR halves.
package abi

import (
	"fmt"

	"github.com/gogpu/gcn/ir"
)

// MaxArgs bounds the argument list of any single part. The set of possible
// per-stage arguments is fixed by the driver, so running past this limit is a
// driver bug, not a property of the shader being compiled.
const MaxArgs = 64

// List accumulates the argument list for one function under construction.
// The zero value is ready to use; Begin resets it for reuse.
type List struct {
	params []ir.Param
	bound  []*ir.Value

	numSGPRs int
	numVGPRs int
	vectors  bool
}

// Begin resets the list to the empty state.
func (l *List) Begin() {
	l.params = l.params[:0]
	l.bound = l.bound[:0]
	l.numSGPRs = 0
	l.numVGPRs = 0
	l.vectors = false
}

// Add appends a typed argument and returns its index.
func (l *List) Add(c ir.Class, t ir.Type) int {
	return l.AddBound(c, t, nil)
}

// AddBound appends a typed argument and records a slot that Finalize fills
// with the materialized parameter value.
func (l *List) AddBound(c ir.Class, t ir.Type, slot *ir.Value) int {
	if len(l.params) >= MaxArgs {
		panic(fmt.Sprintf("abi: more than %d arguments", MaxArgs))
	}
	if c == ir.Scalar && l.vectors {
		panic("abi: scalar argument added after a vector argument")
	}
	attrs := ir.ParamAttr(0)
	switch c {
	case ir.Scalar:
		attrs |= ir.AttrInReg
		if t.Kind == ir.KindPtr || t.Kind == ir.KindPtr32 {
			// Descriptor-table pointers never alias each other and are
			// always safe to load through, which lets the backend hoist
			// and coalesce descriptor loads.
			attrs |= ir.AttrNoAlias | ir.AttrDereferenceable
		}
		l.numSGPRs += t.DwordSize()
	case ir.Vector:
		l.vectors = true
		l.numVGPRs += t.DwordSize()
	}
	l.params = append(l.params, ir.Param{Class: c, Type: t, Attrs: attrs})
	l.bound = append(l.bound, slot)
	return len(l.params) - 1
}

// NumSGPRs reports the accumulated scalar register footprint in dwords.
func (l *List) NumSGPRs() int { return l.numSGPRs }

// NumVGPRs reports the accumulated vector register footprint in dwords.
func (l *List) NumVGPRs() int { return l.numVGPRs }

// Params returns the accumulated parameter list.
func (l *List) Params() []ir.Param { return l.params }

// Finalize creates the function with the accumulated argument list, fills
// every bound slot with its parameter value, and returns a builder positioned
// at the function entry.
func (l *List) Finalize(m *ir.Module, name string, results []ir.RetType) (*ir.Builder, ir.FuncHandle) {
	b, h := ir.NewFunc(m, name, l.params, results)
	fn := m.Func(h)
	for i, slot := range l.bound {
		if slot != nil {
			*slot = fn.ParamValue(i)
		}
	}
	return b, h
}

// SplitRets builds the return-type list a part advertises to the stitcher:
// one i32 slot per scalar output dword followed by one per vector output
// dword.
func SplitRets(numSGPRs, numVGPRs int) []ir.RetType {
	rets := make([]ir.RetType, 0, numSGPRs+numVGPRs)
	for i := 0; i < numSGPRs; i++ {
		rets = append(rets, ir.RetType{Class: ir.Scalar, Type: ir.TI32})
	}
	for i := 0; i < numVGPRs; i++ {
		rets = append(rets, ir.RetType{Class: ir.Vector, Type: ir.TI32})
	}
	return rets
}
