// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/gcn/abi"
	"github.com/gogpu/gcn/ir"
)

// Fixed layout of the pixel-shader input vector registers. Each barycentric
// pair occupies two slots (i, j).
const (
	psInPerspSample    = 0
	psInPerspCenter    = 2
	psInPerspCentroid  = 4
	psInLinearSample   = 6
	psInLinearCenter   = 8
	psInLinearCentroid = 10
	psInFrontFace      = 12
	psInAncillary      = 13
	psInSampleCoverage = 14
	psInPosFixedPt     = 15

	psNumFixedInputVGPRs = 16
)

// psIterMasks[n] is the coverage pattern owned by one invocation when
// shading at 2^n samples per invocation.
var psIterMasks = [5]uint32{0xffff, 0x5555, 0x1111, 0x0101, 0x0001}

// FlatColorFlag marks a selected color attribute index as flat-shaded, so
// the consumer reads the provoking vertex attribute without interpolation.
const FlatColorFlag = 0x100

// backColorOffset separates front and back color attribute indices.
const backColorOffset = 2

// BuildPSProlog compiles a pixel-shader prolog. It rewrites the incoming
// interpolation-weight registers per the force/bc-optimize bits, narrows the
// coverage register for per-sample shading, appends per-color attribute
// selections for two-sided lighting, and emits the polygon-stipple discard.
func BuildPSProlog(m *ir.Module, key PSPrologKey) (*CompiledPart, error) {
	if key.ForcePerspSampleInterp && key.ForcePerspCenterInterp {
		panic("parts: ps prolog forces both sample and center perspective interpolation")
	}
	if key.ForceLinearSampleInterp && key.ForceLinearCenterInterp {
		panic("parts: ps prolog forces both sample and center linear interpolation")
	}
	if key.BCOptimizeForPersp && (key.ForcePerspSampleInterp || key.ForcePerspCenterInterp) {
		panic("parts: ps prolog combines bc-optimize with forced perspective interpolation")
	}
	if key.BCOptimizeForLinear && (key.ForceLinearSampleInterp || key.ForceLinearCenterInterp) {
		panic("parts: ps prolog combines bc-optimize with forced linear interpolation")
	}
	if key.NumInputVGPRs < psNumFixedInputVGPRs {
		panic(fmt.Sprintf("parts: ps prolog declares %d input VGPRs, need %d", key.NumInputVGPRs, psNumFixedInputVGPRs))
	}

	numSGPRs := int(key.NumInputSGPRs)
	numVGPRs := int(key.NumInputVGPRs)
	numColors := bits.OnesCount8(key.ColorsRead)

	var list abi.List
	list.Begin()
	sgprs := make([]ir.Value, numSGPRs)
	for i := range sgprs {
		list.AddBound(ir.Scalar, ir.TI32, &sgprs[i])
	}
	vgprs := make([]ir.Value, numVGPRs)
	for i := range vgprs {
		list.AddBound(ir.Vector, ir.TI32, &vgprs[i])
	}

	b, fh := list.Finalize(m, "ps_prolog", abi.SplitRets(numSGPRs, numVGPRs+numColors))

	// The rasterizer state word rides in the last scalar input; bit 31 set
	// means every pixel of the wave is fully covered.
	primMask := sgprs[numSGPRs-1]

	copyPair := func(dst, src int) {
		vgprs[dst] = vgprs[src]
		vgprs[dst+1] = vgprs[src+1]
	}
	selectPair := func(cond ir.Value, dst, a, c int) {
		vgprs[dst] = b.Select(cond, vgprs[a], vgprs[c])
		vgprs[dst+1] = b.Select(cond, vgprs[a+1], vgprs[c+1])
	}

	if key.BCOptimizeForPersp || key.BCOptimizeForLinear {
		fullyCovered := b.ICmp(ir.CmpNE, b.And(primMask, b.ConstI32(1<<31)), b.ConstI32(0))
		if key.BCOptimizeForPersp {
			selectPair(fullyCovered, psInPerspCentroid, psInPerspCenter, psInPerspCentroid)
		}
		if key.BCOptimizeForLinear {
			selectPair(fullyCovered, psInLinearCentroid, psInLinearCenter, psInLinearCentroid)
		}
	}

	if key.ForcePerspSampleInterp {
		copyPair(psInPerspCenter, psInPerspSample)
		copyPair(psInPerspCentroid, psInPerspSample)
	}
	if key.ForceLinearSampleInterp {
		copyPair(psInLinearCenter, psInLinearSample)
		copyPair(psInLinearCentroid, psInLinearSample)
	}
	if key.ForcePerspCenterInterp {
		copyPair(psInPerspSample, psInPerspCenter)
		copyPair(psInPerspCentroid, psInPerspCenter)
	}
	if key.ForceLinearCenterInterp {
		copyPair(psInLinearSample, psInLinearCenter)
		copyPair(psInLinearCentroid, psInLinearCenter)
	}

	if key.PolyStipple {
		// Sample the 32x32 stipple pattern at the fragment's fixed-point
		// position, masked to 5 bits per axis for wraparound, and discard
		// when the pattern bit is clear.
		pos := vgprs[psInPosFixedPt]
		x := b.And(pos, b.ConstI32(31))
		y := b.And(b.LShr(pos, b.ConstI32(16)), b.ConstI32(31))
		pattern := b.LoadDesc(sgprs[0], b.ConstI32(SlotPolyStipple))
		row := b.BufferLoad(pattern, b.Shl(y, b.ConstI32(2)))
		bit := b.And(b.LShr(row, x), b.ConstI32(1))
		b.Kill(b.ICmp(ir.CmpNE, bit, b.ConstI32(0)))
	}

	if key.SamplemaskLogPSIter > 0 {
		// Per-sample shading: this invocation owns only every 2^n-th
		// sample, starting at its own sample index.
		mask := b.ConstI32(psIterMasks[key.SamplemaskLogPSIter])
		sampleID := b.UnpackBits(vgprs[psInAncillary], 8, 4)
		vgprs[psInSampleCoverage] = b.And(vgprs[psInSampleCoverage], b.Shl(mask, sampleID))
	}

	// Two-sided lighting: pick the front or back attribute index for every
	// color the shader reads. Flat-shaded colors carry a flag so the reader
	// skips interpolation.
	colorSel := make([]ir.Value, 0, numColors)
	if numColors > 0 {
		isFront := b.ICmp(ir.CmpNE, vgprs[psInFrontFace], b.ConstI32(0))
		for c := 0; c < 8; c++ {
			if key.ColorsRead&(1<<uint(c)) == 0 {
				continue
			}
			front := uint32(c)
			back := uint32(c + backColorOffset)
			if key.FlatshadeColors {
				front |= FlatColorFlag
				back |= FlatColorFlag
			}
			sel := b.ConstI32(front)
			if key.ColorTwoSide {
				sel = b.Select(isFront, b.ConstI32(front), b.ConstI32(back))
			}
			colorSel = append(colorSel, sel)
		}
	}

	rets := make([]ir.Value, 0, numSGPRs+numVGPRs+numColors)
	rets = append(rets, sgprs...)
	rets = append(rets, vgprs...)
	rets = append(rets, colorSel...)
	b.Ret(rets...)

	return finishPart(m, KindPSProlog, fh, numSGPRs, numVGPRs)
}
