// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"github.com/gogpu/gcn/abi"
	"github.com/gogpu/gcn/ir"
)

// numSmoothAASamples is the sample count the smoothing alpha ramp is
// normalized to.
const numSmoothAASamples = 8

type pendingExport struct {
	target uint32
	flags  uint32
	mask   uint32
	vals   [4]ir.Value
}

// BuildPSEpilog compiles a pixel-shader epilog: alpha test, alpha-to-one,
// color clamping, line/polygon smoothing, per-target format packing, and the
// final export sequence. Exactly the last export carries the done bit, and a
// key that produces no export at all still emits the null export.
func BuildPSEpilog(m *ir.Module, key PSEpilogKey) (*CompiledPart, error) {
	numSGPRs := int(key.NumInputSGPRs)

	var list abi.List
	list.Begin()
	sgprs := make([]ir.Value, numSGPRs)
	for i := range sgprs {
		list.AddBound(ir.Scalar, ir.TI32, &sgprs[i])
	}
	// The alpha-test reference value rides in the last scalar input.
	alphaRef := &sgprs[numSGPRs-1]

	written := key.ColorsWritten
	if key.LastCbuf > 0 {
		// One written color broadcast to several targets.
		written = 1
	}

	var colors [8][4]ir.Value
	numVGPRs := 0
	for c := 0; c < 8; c++ {
		if written&(1<<uint(c)) == 0 {
			continue
		}
		for j := 0; j < 4; j++ {
			list.AddBound(ir.Vector, ir.TF32, &colors[c][j])
		}
		numVGPRs += 4
	}
	var depth, stencil, samplemask, coverage ir.Value
	if key.WritesZ {
		list.AddBound(ir.Vector, ir.TF32, &depth)
		numVGPRs++
	}
	if key.WritesStencil {
		list.AddBound(ir.Vector, ir.TI32, &stencil)
		numVGPRs++
	}
	if key.WritesSampleMask {
		list.AddBound(ir.Vector, ir.TI32, &samplemask)
		numVGPRs++
	}
	if key.PolyLineSmoothing {
		list.AddBound(ir.Vector, ir.TI32, &coverage)
		numVGPRs++
	}

	b, fh := list.Finalize(m, "ps_epilog", nil)

	if key.AlphaToOne {
		one := b.ConstF32(1)
		for c := 0; c < 8; c++ {
			if written&(1<<uint(c)) != 0 {
				colors[c][3] = one
			}
		}
	}

	if key.AlphaFunc != FuncAlways {
		if first := firstWritten(written); first >= 0 {
			emitAlphaTest(b, key.AlphaFunc, colors[first][3], b.AsF32(*alphaRef))
		} else if key.AlphaFunc == FuncNever {
			// No color to test, but "never" still discards everything.
			b.Kill(b.ConstBool(false))
		}
	}

	if key.PolyLineSmoothing {
		// The smoothed edge fades out by coverage: scale alpha by the
		// population count of the coverage mask.
		covered := b.UIToFP(b.PopCount(coverage))
		scale := b.FMul(covered, b.ConstF32(1.0/numSmoothAASamples))
		for c := 0; c < 8; c++ {
			if written&(1<<uint(c)) != 0 {
				colors[c][3] = b.FMul(colors[c][3], scale)
			}
		}
	}

	var exps []pendingExport

	if key.WritesZ || key.WritesStencil || key.WritesSampleMask {
		e := pendingExport{target: ir.ExpMRTZ}
		for j := range e.vals {
			e.vals[j] = b.Undef(ir.TF32, ir.Vector)
		}
		if key.WritesZ {
			e.mask |= 0x1
			e.vals[0] = depth
		}
		if key.WritesStencil {
			e.mask |= 0x2
			e.vals[1] = b.AsF32(stencil)
		}
		if key.WritesSampleMask {
			e.mask |= 0x4
			e.vals[2] = b.AsF32(samplemask)
		}
		exps = append(exps, e)
	}

	lastTarget := 0
	if key.LastCbuf > 0 {
		lastTarget = int(key.LastCbuf)
	}
	for mrt := 0; mrt < 8; mrt++ {
		src := mrt
		if key.LastCbuf > 0 {
			if mrt > lastTarget {
				break
			}
			src = 0
		} else if written&(1<<uint(mrt)) == 0 {
			continue
		}
		format := key.SPIShaderColFormat >> (4 * uint(mrt)) & 0xf
		if format == ColFormatZero {
			continue
		}
		color := colors[src]
		if key.ClampColor && !isIntFormat(format) {
			for j := range color {
				color[j] = b.FClamp(color[j])
			}
		}
		if e, ok := packColor(b, key, mrt, format, color); ok {
			exps = append(exps, e)
		}
	}

	if len(exps) == 0 {
		// Nothing written at all; the hardware still requires one export
		// from every pixel shader.
		exps = append(exps, pendingExport{
			target: ir.ExpNull,
			vals: [4]ir.Value{
				b.Undef(ir.TF32, ir.Vector), b.Undef(ir.TF32, ir.Vector),
				b.Undef(ir.TF32, ir.Vector), b.Undef(ir.TF32, ir.Vector),
			},
		})
	}

	for i, e := range exps {
		flags := e.flags
		if i == len(exps)-1 {
			flags |= ir.ExpDone | ir.ExpValidMask
		}
		b.Export(e.target, flags, e.mask, e.vals[0], e.vals[1], e.vals[2], e.vals[3])
	}
	b.Ret()

	return finishPart(m, KindPSEpilog, fh, numSGPRs, numVGPRs)
}

func firstWritten(written uint8) int {
	for c := 0; c < 8; c++ {
		if written&(1<<uint(c)) != 0 {
			return c
		}
	}
	return -1
}

func isIntFormat(format uint32) bool {
	return format == ColFormatUint16ABGR || format == ColFormatSint16ABGR
}

// emitAlphaTest discards pixels failing the comparison against the reference
// value. "Never" must still emit an unconditional discard rather than skip
// the stage, so the required export discipline downstream is preserved.
func emitAlphaTest(b *ir.Builder, fn CompareFunc, alpha, ref ir.Value) {
	var pred uint32
	switch fn {
	case FuncNever:
		b.Kill(b.ConstBool(false))
		return
	case FuncLess:
		pred = ir.CmpOLT
	case FuncEqual:
		pred = ir.CmpOEQ
	case FuncLEqual:
		pred = ir.CmpOLE
	case FuncGreater:
		pred = ir.CmpOGT
	case FuncNotEqual:
		pred = ir.CmpONE
	case FuncGEqual:
		pred = ir.CmpOGE
	default:
		return
	}
	b.Kill(b.FCmp(pred, alpha, ref))
}

// packColor converts four components into one export in the target's
// programmed format.
func packColor(b *ir.Builder, key PSEpilogKey, mrt int, format uint32, c [4]ir.Value) (pendingExport, bool) {
	e := pendingExport{target: ir.ExpMRT0 + uint32(mrt)}
	undef := func() ir.Value { return b.Undef(ir.TF32, ir.Vector) }

	packPair := func(pack func(x, y ir.Value) ir.Value) {
		e.flags = ir.ExpCompressed
		e.mask = 0xf
		e.vals = [4]ir.Value{pack(c[0], c[1]), pack(c[2], c[3]), undef(), undef()}
	}

	switch format {
	case ColFormatFP16ABGR:
		packPair(b.PackHalf)
	case ColFormatUnorm16ABGR:
		packPair(b.PackUnorm16)
	case ColFormatSnorm16ABGR:
		packPair(b.PackSnorm16)
	case ColFormatUint16ABGR:
		max := uint32(0xffff)
		if key.ColorIsInt8&(1<<uint(mrt)) != 0 {
			max = 0xff
		} else if key.ColorIsInt10&(1<<uint(mrt)) != 0 {
			max = 0x3ff
		}
		packPair(func(x, y ir.Value) ir.Value {
			lo := b.UMin(b.AsI32(x), b.ConstI32(max))
			hi := b.UMin(b.AsI32(y), b.ConstI32(max))
			return b.Or(lo, b.Shl(hi, b.ConstI32(16)))
		})
	case ColFormatSint16ABGR:
		packPair(func(x, y ir.Value) ir.Value {
			lo := b.And(b.AsI32(x), b.ConstI32(0xffff))
			return b.Or(lo, b.Shl(b.AsI32(y), b.ConstI32(16)))
		})
	case ColFormat32R:
		e.mask = 0x1
		e.vals = [4]ir.Value{c[0], undef(), undef(), undef()}
	case ColFormat32GR:
		e.mask = 0x3
		e.vals = [4]ir.Value{c[0], c[1], undef(), undef()}
	case ColFormat32AR:
		e.mask = 0x9
		e.vals = [4]ir.Value{c[0], undef(), undef(), c[3]}
	case ColFormat32ABGR:
		e.mask = 0xf
		e.vals = c
	default:
		return e, false
	}
	return e, true
}
