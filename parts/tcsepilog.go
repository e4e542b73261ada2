// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"github.com/gogpu/gcn/abi"
	"github.com/gogpu/gcn/ir"
)

// Scalar slot 1 of the TCS epilog carries the byte offset of this draw's
// region in the tessellation-factor ring.
const tcsSGPRRingBase = 1

// tcsMaxPatches bounds the per-workgroup factor staging area in shared
// memory that the general path reads from.
const tcsMaxPatches = 64

// factorCounts returns the outer and inner tessellation factor counts of a
// topology.
func factorCounts(mode PrimMode) (outer, inner int) {
	switch mode {
	case PrimIsolines:
		return 2, 0
	case PrimTriangles:
		return 3, 1
	default:
		return 4, 2
	}
}

// BuildTCSEpilog compiles a tessellation-control epilog: it gathers the
// patch's tessellation factors and writes them to the factor ring at an
// offset derived from the relative patch ID. Only invocation 0 of each patch
// performs the write, and the first patch of a draw writes the ring's
// one-time header word before its factors.
func BuildTCSEpilog(m *ir.Module, key TCSEpilogKey) (*CompiledPart, error) {
	numSGPRs := int(key.NumInputSGPRs)
	outer, inner := factorCounts(key.PrimMode)

	var list abi.List
	list.Begin()
	sgprs := make([]ir.Value, numSGPRs)
	for i := range sgprs {
		list.AddBound(ir.Scalar, ir.TI32, &sgprs[i])
	}
	var relPatchID, invocationID ir.Value
	list.AddBound(ir.Vector, ir.TI32, &relPatchID)
	list.AddBound(ir.Vector, ir.TI32, &invocationID)

	// The six factor registers are declared even on the shared-memory path
	// so the epilog's register layout does not depend on how the main part
	// produced the factors.
	factorRegs := make([]ir.Value, 6)
	for i := range factorRegs {
		list.AddBound(ir.Vector, ir.TF32, &factorRegs[i])
	}

	b, fh := list.Finalize(m, "tcs_epilog", nil)

	numFactors := outer + inner
	factors := make([]ir.Value, numFactors)
	if key.InvocZeroDefinesFactors {
		copy(factors, factorRegs[:numFactors])
	} else {
		// General case: the factors of this patch were staged in shared
		// memory by whichever invocation computed them.
		lds := b.AllocLDS("tess_factor_stage", tcsMaxPatches*6)
		base := b.IMul(relPatchID, b.ConstI32(6))
		for i := range factors {
			factors[i] = b.AsF32(b.LDSLoad(lds, b.IAdd(base, b.ConstI32(uint32(i)))))
		}
	}

	if key.PrimMode == PrimIsolines {
		// The hardware consumes isoline outer factors in reversed order.
		factors[0], factors[1] = factors[1], factors[0]
	}

	ring := b.LoadDesc(sgprs[0], b.ConstI32(SlotTessFactorRing))
	ringBase := sgprs[tcsSGPRRingBase]
	stride := uint32(numFactors) * 4

	isInvocZero := b.ICmp(ir.CmpEQ, invocationID, b.ConstI32(0))
	patchOffset := b.IAdd(ringBase, b.IAdd(b.IMul(relPatchID, b.ConstI32(stride)), b.ConstI32(4)))

	b.IfBegin(isInvocZero)
	isFirstPatch := b.ICmp(ir.CmpEQ, relPatchID, b.ConstI32(0))
	b.IfBegin(isFirstPatch)
	b.BufferStore(ring, ringBase, b.ConstI32(0x80000000))
	b.EndIf()
	for i, f := range factors {
		b.BufferStore(ring, b.IAdd(patchOffset, b.ConstI32(uint32(i)*4)), b.AsI32(f))
	}
	b.EndIf()
	b.Ret()

	return finishPart(m, KindTCSEpilog, fh, numSGPRs, 8)
}
