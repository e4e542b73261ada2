// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"fmt"

	"github.com/gogpu/gcn/abi"
	"github.com/gogpu/gcn/ir"
)

// Input register conventions of the vertex prolog. Scalar slot 0 is the
// internal descriptor table; slot 3 carries the merged-wave info word when
// the shader runs merged with a next stage.
const (
	vsSGPRMergedWaveInfo = 3

	vsVGPRVertexID   = 0
	vsVGPRInstanceID = 1
)

// BuildVSProlog compiles a vertex-shader prolog. It forwards every input
// register and appends one vector output per vertex attribute holding the
// fetch index that attribute should load from: the vertex ID for plain
// attributes, the instance ID divided by the attribute's instance divisor
// for instanced ones.
func BuildVSProlog(m *ir.Module, key VSPrologKey) (*CompiledPart, error) {
	numSGPRs := int(key.NumInputSGPRs)
	numVGPRs := int(key.NumInputVGPRs)
	numOutVGPRs := numVGPRs + int(key.NumInputs)

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

	b, fh := list.Finalize(m, fmt.Sprintf("vs_prolog_%x_%x", key.InstanceDivisorIsOne, key.InstanceDivisorIsFetched),
		abi.SplitRets(numSGPRs, numOutVGPRs))

	if key.LSVGPRFix {
		// When the merged group has no next-stage threads, the hardware
		// loads our registers two slots early. Detect the empty group from
		// the merged-wave info and take the shifted registers instead.
		count := b.UnpackBits(sgprs[vsSGPRMergedWaveInfo], 8, 8)
		empty := b.ICmp(ir.CmpEQ, count, b.ConstI32(0))
		vgprs[0] = b.Select(empty, vgprs[2], vgprs[0])
		vgprs[1] = b.Select(empty, vgprs[3], vgprs[1])
	}

	vertexID := vgprs[vsVGPRVertexID]
	instanceID := vgprs[vsVGPRInstanceID]
	if key.UnpackInstanceID {
		// IDs arrive packed 16/16 in one register; split before any divisor
		// arithmetic sees them.
		packed := vgprs[vsVGPRVertexID]
		vertexID = b.And(packed, b.ConstI32(0xffff))
		instanceID = b.LShr(packed, b.ConstI32(16))
		vgprs[vsVGPRVertexID] = vertexID
		vgprs[vsVGPRInstanceID] = instanceID
	}

	var divisors ir.Value
	if key.InstanceDivisorIsFetched != 0 {
		divisors = b.LoadDesc(sgprs[0], b.ConstI32(SlotInstanceDivisors))
	}

	indices := make([]ir.Value, key.NumInputs)
	for i := range indices {
		bit := uint32(1) << uint(i)
		switch {
		case key.InstanceDivisorIsOne&bit != 0:
			indices[i] = instanceID
		case key.InstanceDivisorIsFetched&bit != 0:
			base := uint32(i) * 16
			mult := b.BufferLoad(divisors, b.ConstI32(base))
			pre := b.BufferLoad(divisors, b.ConstI32(base+4))
			post := b.BufferLoad(divisors, b.ConstI32(base+8))
			inc := b.BufferLoad(divisors, b.ConstI32(base+12))
			indices[i] = EmitFastUdiv(b, instanceID, mult, pre, post, inc)
		default:
			indices[i] = vertexID
		}
	}

	rets := make([]ir.Value, 0, numSGPRs+numOutVGPRs)
	rets = append(rets, sgprs...)
	rets = append(rets, vgprs...)
	rets = append(rets, indices...)
	b.Ret(rets...)

	return finishPart(m, KindVSProlog, fh, numSGPRs, numVGPRs)
}
