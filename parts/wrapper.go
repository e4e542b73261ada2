// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"fmt"

	"github.com/gogpu/gcn/abi"
	"github.com/gogpu/gcn/ir"
)

// wrapSGPRMergedWaveInfo is the raw scalar slot carrying the merged-wave
// info word; its low bits hold the first stage's live-thread count.
const wrapSGPRMergedWaveInfo = 3

// BuildWrapper stitches an ordered list of compiled parts into one callable.
// The wrapper's own arguments mirror the first part's raw register layout,
// slot for slot, but are typed after the main part's corresponding arguments
// so descriptor pointers keep their attributes. Each part consumes the
// current raw scalar slots first, then the vector slots; its outputs become
// the slots for the next part.
//
// nextShaderFirstPart > 0 marks a merged two-stage shader: the parts before
// that index run under a live-thread-count predicate, and when the predicate
// closes the slots rewind to the wrapper's original inputs, because values
// produced inside the conditional region do not exist outside it.
func BuildWrapper(m *ir.Module, partFns []ir.FuncHandle, mainPart, nextShaderFirstPart int) (ir.FuncHandle, error) {
	if len(partFns) == 0 {
		return 0, &Error{Kind: ErrInternalError, Message: "wrapper of zero parts"}
	}
	if mainPart < 0 || mainPart >= len(partFns) {
		return 0, &Error{Kind: ErrInternalError, Message: fmt.Sprintf("main part %d out of range", mainPart)}
	}

	first := m.Func(partFns[0])
	mainFn := m.Func(partFns[mainPart])
	last := m.Func(partFns[len(partFns)-1])

	numSGPRs, numVGPRs := 0, 0
	for _, p := range first.Params {
		if p.Class == ir.Scalar {
			numSGPRs += p.Type.DwordSize()
		} else {
			numVGPRs += p.Type.DwordSize()
		}
	}

	var list abi.List
	list.Begin()
	params := declareRawParams(&list, mainFn, numSGPRs, numVGPRs)

	b, fh := list.Finalize(m, "shader", last.Results)

	// Flatten the typed parameters into raw 32-bit slots per class.
	var sgpr, vgpr []ir.Value
	fn := m.Func(fh)
	for i, p := range params {
		raw := paramToRaw(b, p, fn.ParamValue(i))
		if p.Class == ir.Scalar {
			sgpr = append(sgpr, raw...)
		} else {
			vgpr = append(vgpr, raw...)
		}
	}
	origSGPR := append([]ir.Value(nil), sgpr...)
	origVGPR := append([]ir.Value(nil), vgpr...)

	merged := nextShaderFirstPart > 0
	var lastOuts []ir.Value

	for i, ph := range partFns {
		part := m.Func(ph)

		if merged && i == 0 {
			// The first logical stage may run on fewer threads than the
			// hardware launched; gate it on the live-thread count.
			count := b.UnpackBits(sgpr[wrapSGPRMergedWaveInfo], 0, 8)
			b.IfBegin(b.ICmp(ir.CmpULT, b.MBCnt(), count))
		}
		if merged && i == nextShaderFirstPart {
			// Close the first stage's predicate. Its parts ran
			// conditionally, so their outputs are not usable here: rewind
			// to the wrapper's original inputs.
			b.EndIf()
			sgpr = append(sgpr[:0], origSGPR...)
			vgpr = append(vgpr[:0], origVGPR...)
		}

		args := make([]ir.Value, len(part.Params))
		sIdx, vIdx := 0, 0
		for j, p := range part.Params {
			size := p.Type.DwordSize()
			var raw []ir.Value
			if p.Class == ir.Scalar {
				if sIdx+size > len(sgpr) {
					return 0, &Error{Kind: ErrInternalError,
						Message: fmt.Sprintf("part %d scalar param %d overruns %d slots", i, j, len(sgpr))}
				}
				raw = sgpr[sIdx : sIdx+size]
				sIdx += size
			} else {
				if vIdx+size > len(vgpr) {
					return 0, &Error{Kind: ErrInternalError,
						Message: fmt.Sprintf("part %d vector param %d overruns %d slots", i, j, len(vgpr))}
				}
				raw = vgpr[vIdx : vIdx+size]
				vIdx += size
			}
			args[j] = rawToParam(b, p, raw)
		}
		// Scalar slots beyond sIdx were declared by an earlier part but not
		// by this one; they are skipped, not an error.

		call := b.Call(ph, args...)

		if n := len(part.Results); n > 0 {
			outs := make([]ir.Value, n)
			var ns, nv []ir.Value
			for r := 0; r < n; r++ {
				v := b.TupleExtract(call, r)
				outs[r] = v
				if part.Results[r].Class == ir.Scalar {
					ns = append(ns, v)
				} else {
					nv = append(nv, v)
				}
			}
			sgpr, vgpr = ns, nv
			lastOuts = outs
		} else {
			lastOuts = nil
		}
	}

	if len(last.Results) == 0 {
		b.Ret()
	} else {
		b.Ret(lastOuts...)
	}
	return fh, nil
}

// declareRawParams builds the wrapper's parameter list: the first part's raw
// slot counts, typed after the main part's arguments as far as they fit,
// with leftover slots as plain dwords.
func declareRawParams(list *abi.List, mainFn *ir.Func, numSGPRs, numVGPRs int) []ir.Param {
	var params []ir.Param
	add := func(c ir.Class, t ir.Type) {
		list.Add(c, t)
		params = append(params, ir.Param{Class: c, Type: t})
	}

	remain := numSGPRs
	for _, p := range mainFn.Params {
		if p.Class != ir.Scalar {
			continue
		}
		size := p.Type.DwordSize()
		if size > remain {
			break
		}
		add(ir.Scalar, p.Type)
		remain -= size
	}
	for ; remain > 0; remain-- {
		add(ir.Scalar, ir.TI32)
	}

	remain = numVGPRs
	for _, p := range mainFn.Params {
		if p.Class != ir.Vector {
			continue
		}
		size := p.Type.DwordSize()
		if size > remain {
			break
		}
		add(ir.Vector, p.Type)
		remain -= size
	}
	for ; remain > 0; remain-- {
		add(ir.Vector, ir.TI32)
	}
	return params
}

// paramToRaw splits one typed parameter into its raw 32-bit slots.
func paramToRaw(b *ir.Builder, p ir.Param, v ir.Value) []ir.Value {
	if p.Type.DwordSize() == 1 {
		switch p.Type.Kind {
		case ir.KindF32:
			return []ir.Value{b.AsI32(v)}
		case ir.KindBool:
			return []ir.Value{b.ZExt(v)}
		case ir.KindPtr32:
			return []ir.Value{b.PtrToInt(v)}
		default:
			return []ir.Value{v}
		}
	}
	x := v
	if p.Type.Kind == ir.KindPtr {
		x = b.PtrToInt(v)
	}
	out := make([]ir.Value, p.Type.DwordSize())
	for i := range out {
		out[i] = b.Extract(x, i)
	}
	return out
}

// rawToParam rebuilds one typed parameter from raw 32-bit slots. Pointers in
// the 32-bit constant space come back through a single dword, never a pair.
func rawToParam(b *ir.Builder, p ir.Param, raw []ir.Value) ir.Value {
	if p.Type.DwordSize() == 1 {
		v := raw[0]
		switch p.Type.Kind {
		case ir.KindF32:
			return b.AsF32(v)
		case ir.KindBool:
			return b.TruncBit(v)
		case ir.KindPtr32:
			return b.IntToPtr(p.Type, v)
		default:
			return v
		}
	}
	switch p.Type.Kind {
	case ir.KindPtr:
		return b.IntToPtr(p.Type, b.Compose(ir.TI64, raw...))
	case ir.KindI64:
		return b.Compose(ir.TI64, raw...)
	default:
		return b.Compose(p.Type, raw...)
	}
}
