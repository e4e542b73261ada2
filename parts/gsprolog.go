// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"github.com/gogpu/gcn/abi"
	"github.com/gogpu/gcn/ir"
)

// gsVGPRPrimID is the vector slot holding the input primitive index, after
// the six vertex-index slots.
const gsVGPRPrimID = 6

// BuildGSProlog compiles a geometry-shader prolog. With TriStripAdjFix set
// it corrects the hardware's vertex ordering for triangle strips with
// adjacency: odd primitives arrive with their six vertex indices rotated, so
// the prolog rotates them back, selecting per primitive on the low bit of
// the primitive index. Without the fix it is a pure pass-through.
func BuildGSProlog(m *ir.Module, key GSPrologKey) (*CompiledPart, error) {
	numSGPRs := int(key.NumInputSGPRs)
	numVGPRs := int(key.NumInputVGPRs)

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

	b, fh := list.Finalize(m, "gs_prolog", abi.SplitRets(numSGPRs, numVGPRs))

	if key.TriStripAdjFix {
		odd := b.ICmp(ir.CmpNE, b.And(vgprs[gsVGPRPrimID], b.ConstI32(1)), b.ConstI32(0))
		rotated := make([]ir.Value, 6)
		for i := 0; i < 6; i++ {
			rotated[i] = vgprs[(i+4)%6]
		}
		for i := 0; i < 6; i++ {
			vgprs[i] = b.Select(odd, rotated[i], vgprs[i])
		}
	}

	rets := make([]ir.Value, 0, numSGPRs+numVGPRs)
	rets = append(rets, sgprs...)
	rets = append(rets, vgprs...)
	b.Ret(rets...)

	return finishPart(m, KindGSProlog, fh, numSGPRs, numVGPRs)
}
